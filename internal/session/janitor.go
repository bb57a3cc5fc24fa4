package session

// janitor.go runs periodic cleanup for long-running servers.
//
// Each cycle drops expired references and finished runs from the Manager and
// purges registry cache entries older than the cache TTL. Failures are logged
// and never stop the loop.

import (
	"context"
	"log/slog"
	"time"
)

// DefaultJanitorInterval is how often cleanup runs when unset.
const DefaultJanitorInterval = 5 * time.Minute

// Purger removes cache entries fetched before cutoff.
// *registry.MemoryCache and *postgres.RegistryCache implement it.
type Purger interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// JanitorConfig holds configuration for StartJanitor.
type JanitorConfig struct {
	Interval time.Duration // How often to run (default: 5m)
	CacheTTL time.Duration // Registry cache entries older than this are purged
	Cache    Purger        // Optional
}

// StartJanitor runs cleanup immediately and then every Interval until ctx is
// cancelled. It blocks; call it in its own goroutine.
func (m *Manager) StartJanitor(ctx context.Context, cfg JanitorConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultJanitorInterval
	}
	m.logger.Info("janitor started", "interval", cfg.Interval, "cache_ttl", cfg.CacheTTL)

	m.runJanitor(ctx, cfg)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("janitor stopped")
			return
		case <-ticker.C:
			m.runJanitor(ctx, cfg)
		}
	}
}

// runJanitor performs one cleanup cycle.
func (m *Manager) runJanitor(ctx context.Context, cfg JanitorConfig) {
	start := time.Now()

	refs, runs := m.PurgeExpired()

	var purged int64
	if cfg.Cache != nil && cfg.CacheTTL > 0 {
		n, err := cfg.Cache.PurgeExpired(ctx, m.clock().Add(-cfg.CacheTTL))
		if err != nil {
			m.logger.Error("registry cache purge failed", "error", err)
		} else {
			purged = n
		}
	}

	level := slog.LevelDebug
	if refs+runs > 0 || purged > 0 {
		level = slog.LevelInfo
	}
	m.logger.Log(ctx, level, "janitor cycle complete",
		"references_dropped", refs,
		"runs_dropped", runs,
		"cache_entries_purged", purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

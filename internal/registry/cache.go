package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/docvalidate/internal/core"
)

// ErrCacheMiss is returned by a CacheStore with no entry for a tax id.
var ErrCacheMiss = errors.New("registry cache miss")

// DefaultCacheTTL is how long a successful lookup is reused.
const DefaultCacheTTL = 24 * time.Hour

// CacheStore persists successful registry lookups.
type CacheStore interface {
	// Get returns the cached record and when it was fetched, or ErrCacheMiss.
	Get(ctx context.Context, taxID string) (*core.RegistryRecord, time.Time, error)
	Put(ctx context.Context, taxID string, record *core.RegistryRecord, fetchedAt time.Time) error
}

// Cached is a read-through cache in front of a registry.
// Store failures are logged and bypassed; they never fail a lookup.
type Cached struct {
	next   core.Registry
	store  CacheStore
	ttl    time.Duration
	clock  core.Clock
	logger *slog.Logger
}

var _ core.Registry = (*Cached)(nil)

// NewCached wraps next with store. ttl <= 0 uses DefaultCacheTTL.
func NewCached(next core.Registry, store CacheStore, ttl time.Duration, logger *slog.Logger) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{next: next, store: store, ttl: ttl, clock: time.Now, logger: logger}
}

// Lookup serves fresh cache entries and refreshes stale or missing ones.
// Only successful lookups are stored.
func (c *Cached) Lookup(ctx context.Context, taxID string) (*core.RegistryRecord, error) {
	key := core.NormalizeTaxID(taxID)

	record, fetchedAt, err := c.store.Get(ctx, key)
	switch {
	case err == nil && c.clock().Sub(fetchedAt) < c.ttl:
		c.logger.Debug("registry cache hit", "tax_id", key)
		return record, nil
	case err != nil && !errors.Is(err, ErrCacheMiss):
		c.logger.Warn("registry cache read failed", "tax_id", key, "error", err)
	}

	record, err = c.next.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := c.store.Put(ctx, key, record, c.clock()); err != nil {
		c.logger.Warn("registry cache write failed", "tax_id", key, "error", err)
	}
	return record, nil
}

// MemoryCache is a process-local CacheStore used when no database is
// configured.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	record    core.RegistryRecord
	fetchedAt time.Time
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

// Get implements CacheStore.
func (m *MemoryCache) Get(ctx context.Context, taxID string) (*core.RegistryRecord, time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[taxID]
	if !ok {
		return nil, time.Time{}, ErrCacheMiss
	}
	record := e.record
	return &record, e.fetchedAt, nil
}

// Put implements CacheStore.
func (m *MemoryCache) Put(ctx context.Context, taxID string, record *core.RegistryRecord, fetchedAt time.Time) error {
	if record == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[taxID] = memoryEntry{record: *record, fetchedAt: fetchedAt}
	return nil
}

// PurgeExpired removes entries fetched before cutoff and reports how many.
func (m *MemoryCache) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k, e := range m.entries {
		if e.fetchedAt.Before(cutoff) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of cached entries.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Package application assembles the validator's components from
// configuration. Both the HTTP server and the CLI build on it.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/docvalidate/internal/config"
	"github.com/JonMunkholm/docvalidate/internal/core"
	"github.com/JonMunkholm/docvalidate/internal/extract"
	"github.com/JonMunkholm/docvalidate/internal/registry"
	"github.com/JonMunkholm/docvalidate/internal/session"
	"github.com/JonMunkholm/docvalidate/internal/sheet"
	"github.com/JonMunkholm/docvalidate/internal/store/postgres"
)

// App holds the wired component graph.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Sheets       *sheet.Loader
	Orchestrator *core.Orchestrator
	Sessions     *session.Manager

	// Cache is the registry cache store, or nil when caching is disabled.
	Cache session.Purger

	db *postgres.DB
}

// Options adjusts wiring for tests and the CLI.
type Options struct {
	// HTTPClient is used for documents, the registry and remote sheets.
	// Nil uses http.DefaultClient.
	HTTPClient *http.Client

	// SkipDatabase keeps the registry cache in memory even when
	// DATABASE_URL is set.
	SkipDatabase bool
}

// New builds every component. With a database configured it connects,
// applies migrations and uses the postgres registry cache; otherwise the
// cache lives in memory.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}

	var store interface {
		registry.CacheStore
		session.Purger
	}
	if cfg.Registry.CacheTTL > 0 {
		if cfg.Database.Enabled() && !opts.SkipDatabase {
			db, err := postgres.Connect(ctx, cfg.Database.URL, postgres.PoolConfig{
				MaxConns:        cfg.Database.MaxConns,
				MinConns:        cfg.Database.MinConns,
				MaxConnLifetime: cfg.Database.MaxConnLifetime,
				MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
			})
			if err != nil {
				return nil, fmt.Errorf("open registry cache: %w", err)
			}
			if err := db.Migrate(ctx); err != nil {
				db.Close()
				return nil, fmt.Errorf("migrate registry cache: %w", err)
			}
			app.db = db
			store = postgres.NewRegistryCache(db)
			logger.Info("registry cache enabled", "backend", "postgres", "ttl", cfg.Registry.CacheTTL)
		} else {
			store = registry.NewMemoryCache()
			logger.Info("registry cache enabled", "backend", "memory", "ttl", cfg.Registry.CacheTTL)
		}
		app.Cache = store
	}

	client := opts.HTTPClient

	app.Sheets = sheet.NewLoader(sheet.Config{
		MaxSize:   cfg.Sheet.MaxSize,
		Timeout:   cfg.Sheet.Timeout,
		UserAgent: cfg.Extraction.UserAgent,
	}, client, logger.With("component", "sheet"))

	extractor := extract.New(extract.Config{
		MaxDocumentSize: cfg.Extraction.MaxDocumentSize,
		UserAgent:       cfg.Extraction.UserAgent,
	}, client, logger.With("component", "extract"))

	var reg core.Registry = registry.NewReceitaWS(registry.Config{
		BaseURL:           cfg.Registry.BaseURL,
		RequestsPerMinute: cfg.Registry.RequestsPerMinute,
		UserAgent:         cfg.Extraction.UserAgent,
	}, client, logger.With("component", "registry"))
	if store != nil {
		reg = registry.NewCached(reg, store, cfg.Registry.CacheTTL, logger.With("component", "registry_cache"))
	}

	processor := core.NewProcessor(extractor, reg, core.ProcessorConfig{
		ExtractTimeout:  cfg.Validation.ExtractTimeout,
		RegistryTimeout: cfg.Validation.RegistryTimeout,
		Rules: core.RuleSet{
			MaxDocumentAge: cfg.Validation.MaxDocumentAge,
			ActiveStatus:   cfg.Registry.ActiveStatus,
		},
		Logger: logger.With("component", "processor"),
	})

	app.Orchestrator = core.NewOrchestrator(processor, core.OrchestratorConfig{
		MaxBatchSize: cfg.Validation.MaxBatchSize,
		Logger:       logger.With("component", "orchestrator"),
	})

	app.Sessions = session.NewManager(app.Sheets, app.Orchestrator, session.Config{
		ReferenceTTL:      cfg.Session.ReferenceTTL,
		ResultRetention:   cfg.Session.ResultRetention,
		RunTimeout:        cfg.Validation.RunTimeout,
		MaxConcurrentRuns: cfg.Validation.MaxConcurrentRuns,
		MaxWaitTime:       cfg.Validation.MaxWaitTime,
	}, logger.With("component", "session"))

	return app, nil
}

// StartJanitor runs periodic cleanup until ctx ends. It blocks.
func (a *App) StartJanitor(ctx context.Context) {
	a.Sessions.StartJanitor(ctx, session.JanitorConfig{
		Interval: a.Config.Session.JanitorInterval,
		CacheTTL: a.Config.Registry.CacheTTL,
		Cache:    a.Cache,
	})
}

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

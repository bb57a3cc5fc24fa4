// Package web serves the validator over HTTP: a JSON API for loading
// reference spreadsheets and running batches, an SSE progress stream and two
// HTML pages.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/docvalidate/internal/config"
	"github.com/JonMunkholm/docvalidate/internal/core"
	"github.com/JonMunkholm/docvalidate/internal/session"
	"github.com/JonMunkholm/docvalidate/internal/web/middleware"
)

// Sessions is the state the handlers work against. *session.Manager
// implements it.
type Sessions interface {
	LoadReference(ctx context.Context, source string) (session.ReferenceInfo, error)
	References() []session.ReferenceInfo
	StartRun(ctx context.Context, referenceID string, locators []string) (string, error)
	SubscribeProgress(runID string) (<-chan core.Event, error)
	CancelRun(runID string) error
	Report(ctx context.Context, runID string) (*core.BatchReport, error)
	Result(runID string) (*core.BatchReport, error)
	Status(runID string) (session.RunStatus, error)
	Runs() []session.RunStatus
	LimiterStatus() session.LimiterStatus
}

var _ Sessions = (*session.Manager)(nil)

// Server is the HTTP server for the validator.
type Server struct {
	sessions Sessions
	cfg      *config.Config
	router   *chi.Mux
	server   *http.Server

	// stop ends background goroutines owned by the middleware.
	stop context.CancelFunc
}

// NewServer creates a Server with all routes mounted.
func NewServer(sessions Sessions, cfg *config.Config) *Server {
	ctx, stop := context.WithCancel(context.Background())
	s := &Server{
		sessions: sessions,
		cfg:      cfg,
		router:   chi.NewRouter(),
		stop:     stop,
	}
	s.setupMiddleware(ctx)
	s.setupRoutes(ctx)
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware(ctx context.Context) {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		s.router.Use(middleware.NewRateLimiter(ctx, s.cfg.Rate.RequestsPerMinute).Handler)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes(ctx context.Context) {
	s.router.Get("/healthz", s.handleHealth)

	// Request-scoped routes share the request timeout. Batch submission and
	// the event stream manage their own lifetimes.
	s.router.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))

		r.Get("/", s.handleHome)
		r.Get("/runs/{runID}", s.handleRunPage)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.Security))

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))

			r.Get("/references", s.handleListReferences)
			r.Post("/references", s.handleLoadReference)

			r.Get("/batches", s.handleListRuns)
			r.Get("/batches/{runID}", s.handleRunStatus)
			r.Get("/batches/{runID}/report", s.handleReport)
			r.Post("/batches/{runID}/cancel", s.handleCancelRun)
		})

		r.Group(func(r chi.Router) {
			if s.cfg.Rate.Enabled {
				r.Use(middleware.NewRateLimiter(ctx, s.cfg.Rate.BatchLimit).Handler)
			}
			r.Post("/batches", s.handleStartBatch)
		})

		r.Get("/batches/{runID}/events", s.handleRunEvents)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // 0 keeps SSE streams open
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// handleHealth reports liveness and run slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
		"runs":   s.sessions.LimiterStatus(),
	})
}

// securityHeaders adds hardening headers to every response.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if enableCSP {
				// Pages use one inline style block and no scripts.
				h.Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON encodes v with the given status. Encoding errors are only logged
// because headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// Package config provides centralized configuration management for the validator.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Validation ValidationConfig
	Extraction ExtractionConfig
	Registry   RegistryConfig
	Sheet      SheetConfig
	Session    SessionConfig
	Rate       RateLimitConfig
	Security   SecurityConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-streaming requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds settings for the optional registry cache database.
// With no URL the registry cache is kept in memory.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (optional)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a database is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// ValidationConfig holds batch and rule settings.
type ValidationConfig struct {
	// MaxBatchSize is the largest accepted batch (default: 3)
	MaxBatchSize int `env:"VALIDATION_MAX_BATCH_SIZE" default:"3"`

	// MaxDocumentAge is how old a document date may be (default: 720h, 30 days)
	MaxDocumentAge time.Duration `env:"VALIDATION_MAX_DOCUMENT_AGE" default:"720h"`

	// ExtractTimeout bounds one document download and parse (default: 30s)
	ExtractTimeout time.Duration `env:"VALIDATION_EXTRACT_TIMEOUT" default:"30s"`

	// RegistryTimeout bounds one registry lookup (default: 10s)
	RegistryTimeout time.Duration `env:"VALIDATION_REGISTRY_TIMEOUT" default:"10s"`

	// RunTimeout bounds a whole batch run (default: 5m)
	RunTimeout time.Duration `env:"RUN_TIMEOUT" default:"5m"`

	// MaxConcurrentRuns is the number of batches processed in parallel (default: 5)
	MaxConcurrentRuns int `env:"RUN_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long a new batch waits for a run slot (default: 30s)
	MaxWaitTime time.Duration `env:"RUN_MAX_WAIT_TIME" default:"30s"`
}

// ExtractionConfig holds document download settings.
type ExtractionConfig struct {
	// MaxDocumentSize is the largest document accepted in bytes (default: 20MB)
	MaxDocumentSize int64 `env:"EXTRACT_MAX_DOCUMENT_SIZE" default:"20971520"`

	// UserAgent is sent on every outbound request
	UserAgent string `env:"HTTP_USER_AGENT" default:"docvalidate/1.0"`
}

// RegistryConfig holds ReceitaWS settings.
type RegistryConfig struct {
	// BaseURL is the ReceitaWS endpoint (default: https://www.receitaws.com.br)
	BaseURL string `env:"REGISTRY_BASE_URL" default:"https://www.receitaws.com.br"`

	// ActiveStatus is the registration status treated as active (default: ATIVA)
	ActiveStatus string `env:"REGISTRY_ACTIVE_STATUS" default:"ATIVA"`

	// RequestsPerMinute paces outbound lookups (default: 3, the free tier limit)
	RequestsPerMinute int `env:"REGISTRY_REQUESTS_PER_MINUTE" default:"3"`

	// CacheTTL is how long a successful lookup is reused (default: 24h, 0 disables)
	CacheTTL time.Duration `env:"REGISTRY_CACHE_TTL" default:"24h"`
}

// SheetConfig holds reference spreadsheet settings.
type SheetConfig struct {
	// MaxSize is the largest spreadsheet accepted in bytes (default: 10MB)
	MaxSize int64 `env:"SHEET_MAX_SIZE" default:"10485760"`

	// Timeout bounds a spreadsheet download (default: 30s)
	Timeout time.Duration `env:"SHEET_TIMEOUT" default:"30s"`
}

// SessionConfig holds retention settings for server-side state.
type SessionConfig struct {
	// ReferenceTTL is how long a loaded spreadsheet stays usable (default: 2h)
	ReferenceTTL time.Duration `env:"SESSION_REFERENCE_TTL" default:"2h"`

	// ResultRetention is how long finished run reports are kept (default: 30m)
	ResultRetention time.Duration `env:"SESSION_RESULT_RETENTION" default:"30m"`

	// JanitorInterval is how often expired state is purged (default: 5m)
	JanitorInterval time.Duration `env:"SESSION_JANITOR_INTERVAL" default:"5m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// BatchLimit is requests per minute for batch submission (default: 10)
	BatchLimit int `env:"RATE_LIMIT_BATCH" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey enables X-API-Key authentication on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

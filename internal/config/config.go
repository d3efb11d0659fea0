// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Upload   UploadConfig
	Import   ImportConfig
	Watchdog WatchdogConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envDefault:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" envDefault:"60s"`
}

// StoreConfig selects the persistence and dispatch backends.
type StoreConfig struct {
	// Driver is postgres or memory (default: postgres)
	Driver string `env:"STORE_DRIVER" envDefault:"postgres"`

	// Dispatch is local (in-process goroutines) or queue (asynq over Redis) (default: local)
	Dispatch string `env:"DISPATCH_MODE" envDefault:"local"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string, required for the postgres driver.
	// DB_URL is accepted as a fallback for compatibility.
	URL string `env:"DATABASE_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" envDefault:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" envDefault:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`

	// AutoMigrate applies pending migrations on startup (default: false)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" envDefault:"false"`
}

// RedisConfig holds the asynq broker connection.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDRESS" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Queue is the asynq queue for import tasks (default: imports)
	Queue string `env:"REDIS_QUEUE" envDefault:"imports"`
}

// UploadConfig holds upload acceptance settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 50MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" envDefault:"52428800"`

	// MaxConcurrent is the maximum number of imports processed at once (default: 4)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" envDefault:"4"`

	// MaxWaitTime is how long a dispatched job waits for a processing slot (default: 10m)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" envDefault:"10m"`

	// SpoolDir is where accepted files are written before processing (default: ./uploads)
	SpoolDir string `env:"UPLOAD_SPOOL_DIR" envDefault:"./uploads"`

	// Timeout bounds a single pipeline run when dispatched through the queue (default: 30m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" envDefault:"30m"`
}

// ImportConfig tunes the pipeline.
type ImportConfig struct {
	// ProgressEvery is rows between persisted progress updates (default: 100)
	ProgressEvery int `env:"IMPORT_PROGRESS_EVERY" envDefault:"100"`

	// CancelCheckEvery is rows between cancellation checks (default: 50)
	CancelCheckEvery int `env:"IMPORT_CANCEL_CHECK_EVERY" envDefault:"50"`

	// MaxStoredErrors caps the error list kept per job (default: 1000)
	MaxStoredErrors int `env:"IMPORT_MAX_STORED_ERRORS" envDefault:"1000"`
}

// WatchdogConfig holds stuck-job watchdog settings.
type WatchdogConfig struct {
	// Enabled runs the watchdog in serve and worker (default: true)
	Enabled bool `env:"WATCHDOG_ENABLED" envDefault:"true"`

	// Interval is how often to sweep (default: 1m)
	Interval time.Duration `env:"WATCHDOG_INTERVAL" envDefault:"1m"`

	// StaleAfter is the heartbeat age after which a processing job is failed (default: 10m)
	StaleAfter time.Duration `env:"WATCHDOG_STALE_AFTER" envDefault:"10m"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// APIKeys is a comma-separated list of valid API keys
	APIKeys []string `env:"API_KEYS" envSeparator:","`

	// RequireAPIKey enables API key authentication (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" envDefault:"false"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" envDefault:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" envDefault:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" envDefault:"text"`

	// File is an optional path; when set, logs are also written there with rotation.
	File string `env:"LOG_FILE"`

	// FileMaxSizeMB is the size at which the log file is rotated (default: 100)
	FileMaxSizeMB int `env:"LOG_FILE_MAX_SIZE_MB" envDefault:"100"`

	// FileMaxBackups is how many rotated files are kept (default: 5)
	FileMaxBackups int `env:"LOG_FILE_MAX_BACKUPS" envDefault:"5"`

	// FileMaxAgeDays is how long rotated files are kept (default: 30)
	FileMaxAgeDays int `env:"LOG_FILE_MAX_AGE_DAYS" envDefault:"30"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Store.Driver != "postgres" {
		t.Errorf("Store.Driver = %q, want %q", cfg.Store.Driver, "postgres")
	}
	if cfg.Store.Dispatch != "local" {
		t.Errorf("Store.Dispatch = %q, want %q", cfg.Store.Dispatch, "local")
	}
	if cfg.Upload.MaxFileSize != 52428800 {
		t.Errorf("Upload.MaxFileSize = %d, want %d", cfg.Upload.MaxFileSize, 52428800)
	}
	if cfg.Import.ProgressEvery != 100 {
		t.Errorf("Import.ProgressEvery = %d, want %d", cfg.Import.ProgressEvery, 100)
	}
	if cfg.Import.CancelCheckEvery != 50 {
		t.Errorf("Import.CancelCheckEvery = %d, want %d", cfg.Import.CancelCheckEvery, 50)
	}
	if cfg.Import.MaxStoredErrors != 1000 {
		t.Errorf("Import.MaxStoredErrors = %d, want %d", cfg.Import.MaxStoredErrors, 1000)
	}
	if cfg.Watchdog.StaleAfter != 10*time.Minute {
		t.Errorf("Watchdog.StaleAfter = %v, want %v", cfg.Watchdog.StaleAfter, 10*time.Minute)
	}
	if cfg.Redis.Queue != "imports" {
		t.Errorf("Redis.Queue = %q, want %q", cfg.Redis.Queue, "imports")
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("UPLOAD_MAX_CONCURRENT", "10")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("WATCHDOG_INTERVAL", "30s")
	t.Setenv("API_KEYS", "one,two")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}
	if cfg.Upload.MaxConcurrent != 10 {
		t.Errorf("Upload.MaxConcurrent = %d, want %d", cfg.Upload.MaxConcurrent, 10)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Watchdog.Interval != 30*time.Second {
		t.Errorf("Watchdog.Interval = %v, want %v", cfg.Watchdog.Interval, 30*time.Second)
	}
	if len(cfg.Security.APIKeys) != 2 || cfg.Security.APIKeys[1] != "two" {
		t.Errorf("Security.APIKeys = %v, want [one two]", cfg.Security.APIKeys)
	}
}

func TestLoad_AltEnvVar(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "postgres://localhost/alttest")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.URL != "postgres://localhost/alttest" {
		t.Errorf("Database.URL = %q, want %q", cfg.Database.URL, "postgres://localhost/alttest")
	}
}

func TestLoad_MemoryStoreNeedsNoDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "")
	t.Setenv("STORE_DRIVER", "memory")

	if _, err := Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing DATABASE_URL")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("Load() error = %v, want mention of DATABASE_URL", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("WATCHDOG_INTERVAL", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
}

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080, ShutdownTimeout: 30 * time.Second},
		Store:    StoreConfig{Driver: "postgres", Dispatch: "local"},
		Database: DatabaseConfig{URL: "postgres://localhost/test", MaxConns: 10, MinConns: 2},
		Redis:    RedisConfig{Addr: "localhost:6379", Queue: "imports"},
		Upload: UploadConfig{
			MaxFileSize:   1 << 20,
			MaxConcurrent: 2,
			MaxWaitTime:   time.Minute,
			SpoolDir:      "uploads",
		},
		Import:   ImportConfig{ProgressEvery: 100, CancelCheckEvery: 50, MaxStoredErrors: 1000},
		Watchdog: WatchdogConfig{Enabled: true, Interval: time.Minute, StaleAfter: 10 * time.Minute},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "SERVER_PORT"},
		{"bad store driver", func(c *Config) { c.Store.Driver = "sqlite" }, "STORE_DRIVER"},
		{"bad dispatch", func(c *Config) { c.Store.Dispatch = "kafka" }, "DISPATCH_MODE"},
		{"queue with memory store", func(c *Config) {
			c.Store.Driver = "memory"
			c.Store.Dispatch = "queue"
		}, "shared store"},
		{"queue without redis", func(c *Config) {
			c.Store.Dispatch = "queue"
			c.Redis.Addr = ""
		}, "REDIS_ADDRESS"},
		{"max below min conns", func(c *Config) { c.Database.MaxConns = 1 }, "DB_MAX_CONNS"},
		{"zero progress every", func(c *Config) { c.Import.ProgressEvery = 0 }, "IMPORT_PROGRESS_EVERY"},
		{"stale not after interval", func(c *Config) { c.Watchdog.StaleAfter = time.Minute }, "WATCHDOG_STALE_AFTER"},
		{"watchdog disabled skips checks", func(c *Config) {
			c.Watchdog.Enabled = false
			c.Watchdog.Interval = 0
		}, ""},
		{"api key required without keys", func(c *Config) { c.Security.RequireAPIKey = true }, "API_KEYS"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error mentioning %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	if !strings.Contains(err.Error(), "SERVER_PORT") || !strings.Contains(err.Error(), "LOG_FORMAT") {
		t.Errorf("Validate() error = %v, want both failures listed", err)
	}
}

func TestString_MasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Database.URL = "postgres://user:secret@db/app"
	cfg.Redis.Password = "hunter2"

	s := cfg.String()
	if strings.Contains(s, "secret") || strings.Contains(s, "hunter2") {
		t.Errorf("String() leaked a secret: %s", s)
	}
	if !strings.Contains(s, "[MASKED]") {
		t.Errorf("String() = %s, want masked fields", s)
	}
}

func TestServerConfig_Addr(t *testing.T) {
	c := ServerConfig{Host: "127.0.0.1", Port: 9000}
	if got := c.Addr(); got != "127.0.0.1:9000" {
		t.Errorf("Addr() = %q, want %q", got, "127.0.0.1:9000")
	}
}

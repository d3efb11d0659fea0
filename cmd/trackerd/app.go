package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/michalhajok/trackerB-sub000/internal/config"
	"github.com/michalhajok/trackerB-sub000/internal/core"
	"github.com/michalhajok/trackerB-sub000/internal/logging"
	"github.com/michalhajok/trackerB-sub000/internal/store/memory"
	"github.com/michalhajok/trackerB-sub000/internal/store/postgres"
	"github.com/michalhajok/trackerB-sub000/internal/web"
)

// app holds what every subcommand needs: configuration, logging and a store.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	logClose io.Closer
	pool     *pgxpool.Pool
	store    core.Store
	health   web.HealthChecker
}

// bootstrap loads configuration, sets up logging and opens the store.
// storeDriver overrides STORE_DRIVER when not empty.
func bootstrap(ctx context.Context, storeDriver string) (*app, error) {
	cfg, err := config.Parse()
	if err != nil {
		return nil, err
	}
	if storeDriver != "" {
		cfg.Store.Driver = storeDriver
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	log, closer := logging.Setup(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.FileMaxSizeMB,
		MaxBackups: cfg.Logging.FileMaxBackups,
		MaxAgeDays: cfg.Logging.FileMaxAgeDays,
	})
	log.Debug("configuration loaded", "config", cfg.String())

	a := &app{cfg: cfg, log: log, logClose: closer}

	switch strings.ToLower(cfg.Store.Driver) {
	case "memory":
		a.store = memory.New()
		log.Warn("using in-memory store; jobs and records are lost on exit")
	default:
		pool, err := connectDB(ctx, cfg.Database)
		if err != nil {
			closer.Close()
			return nil, err
		}
		pg := postgres.New(pool)
		a.pool = pool
		a.store = pg
		a.health = pg
	}
	return a, nil
}

// Close releases the database pool and the log file.
func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	a.logClose.Close()
}

func (a *app) pipeline() *core.Pipeline {
	return core.NewPipeline(a.store, core.PipelineConfig{
		MaxFileSize:      a.cfg.Upload.MaxFileSize,
		ProgressEvery:    a.cfg.Import.ProgressEvery,
		CancelCheckEvery: a.cfg.Import.CancelCheckEvery,
		MaxStoredErrors:  a.cfg.Import.MaxStoredErrors,
		Logger:           a.log,
		Spool:            core.NewSpoolCleaner(a.cfg.Upload.SpoolDir),
	})
}

func (a *app) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	}
}

// requirePostgres is used by commands that make no sense on a process-local store.
func (a *app) requirePostgres(cmd string) error {
	if a.pool == nil {
		return fmt.Errorf("%s needs STORE_DRIVER=postgres", cmd)
	}
	return nil
}

// startWatchdog runs the stuck-job watchdog in the background until ctx is done.
func (a *app) startWatchdog(ctx context.Context, failer core.JobFailer) {
	if !a.cfg.Watchdog.Enabled {
		return
	}
	wd := core.NewWatchdog(a.store, failer, core.WatchdogConfig{
		Interval:   a.cfg.Watchdog.Interval,
		StaleAfter: a.cfg.Watchdog.StaleAfter,
	}, a.log)
	go func() {
		if err := wd.Start(ctx); err != nil {
			a.log.Error("watchdog stopped", "error", err)
		}
	}()
}

func connectDB(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	if cfg.AutoMigrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return pool, nil
}

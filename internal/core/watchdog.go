package core

// watchdog.go fails import jobs that stopped reporting progress.
//
// A run refreshes its heartbeat on every checkpoint. A job still in
// processing whose heartbeat is older than StaleAfter belongs to a worker
// that crashed or hung; the watchdog moves it to failed so it is never left
// in processing forever. Records it wrote stay in place.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// WatchdogConfig holds configuration for the stuck-job watchdog.
// Zero values take the defaults.
type WatchdogConfig struct {
	Interval   time.Duration // How often to sweep (default: 1m)
	StaleAfter time.Duration // Heartbeat age that counts as stuck (default: 10m)
}

// JobFailer fails a job that has not finished yet.
type JobFailer interface {
	Fail(ctx context.Context, jobID uuid.UUID, cause error) error
}

// Watchdog periodically fails jobs stuck in processing.
type Watchdog struct {
	store  JobStore
	failer JobFailer
	cfg    WatchdogConfig
	log    *slog.Logger
	now    func() time.Time
}

// NewWatchdog creates a watchdog.
func NewWatchdog(store JobStore, failer JobFailer, cfg WatchdogConfig, log *slog.Logger) *Watchdog {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watchdog{store: store, failer: failer, cfg: cfg, log: log, now: time.Now}
}

// Start schedules sweeps until ctx is cancelled. It blocks.
func (w *Watchdog) Start(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", w.cfg.Interval), func() {
		if _, err := w.Sweep(ctx); err != nil {
			w.log.Error("watchdog sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule watchdog: %w", err)
	}

	w.log.Info("watchdog started", "interval", w.cfg.Interval, "stale_after", w.cfg.StaleAfter)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	w.log.Info("watchdog stopped")
	return nil
}

// Sweep fails every stuck job once and returns how many it failed.
func (w *Watchdog) Sweep(ctx context.Context) (int, error) {
	before := w.now().Add(-w.cfg.StaleAfter)
	jobs, err := w.store.ListStuckJobs(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("list stuck jobs: %w", err)
	}

	failed := 0
	for _, job := range jobs {
		cause := fmt.Errorf("%w since %s", ErrJobStalled, derefTime(job.HeartbeatAt, job.UpdatedAt).UTC().Format(time.RFC3339))
		if err := w.failer.Fail(ctx, job.ID, cause); err != nil {
			w.log.Error("watchdog could not fail job", "job_id", job.ID, "error", err)
			continue
		}
		w.log.Warn("stuck import job failed", "job_id", job.ID, "user_id", job.UserID, "heartbeat_at", job.HeartbeatAt)
		recordStalled()
		failed++
	}
	return failed, nil
}

package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Dispatcher hands an accepted job to a background worker. Dispatch must
// return without waiting for the run to finish.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID uuid.UUID) error
}

// JobRunner is the part of the Pipeline dispatchers call.
type JobRunner interface {
	Run(ctx context.Context, jobID uuid.UUID) error
	Fail(ctx context.Context, jobID uuid.UUID, cause error) error
}

// LocalDispatcher runs jobs in goroutines of the current process, bounded by
// an ImportLimiter. A job already in flight is not started twice.
type LocalDispatcher struct {
	runner  JobRunner
	limiter *ImportLimiter
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

// NewLocalDispatcher creates a dispatcher. A nil limiter uses the defaults.
func NewLocalDispatcher(runner JobRunner, limiter *ImportLimiter, log *slog.Logger) *LocalDispatcher {
	if limiter == nil {
		limiter = NewImportLimiter(DefaultMaxConcurrentImports, DefaultMaxSlotWait)
	}
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalDispatcher{
		runner:  runner,
		limiter: limiter,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[uuid.UUID]struct{}),
	}
}

// Dispatch starts the job in the background. The request context is not
// used by the run: it outlives the request that created the job.
func (d *LocalDispatcher) Dispatch(_ context.Context, jobID uuid.UUID) error {
	if err := d.ctx.Err(); err != nil {
		return fmt.Errorf("dispatcher stopped: %w", err)
	}

	d.mu.Lock()
	if _, busy := d.running[jobID]; busy {
		d.mu.Unlock()
		return nil
	}
	d.running[jobID] = struct{}{}
	d.wg.Add(1)
	d.mu.Unlock()

	go d.process(jobID)
	return nil
}

func (d *LocalDispatcher) process(jobID uuid.UUID) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		delete(d.running, jobID)
		d.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic in import worker", "job_id", jobID, "panic", r)
			cause := &UnhandledPipelineError{JobID: jobID, Cause: fmt.Errorf("panic: %v", r)}
			if err := d.runner.Fail(context.Background(), jobID, cause); err != nil {
				d.log.Error("failed to record worker panic", "job_id", jobID, "error", err)
			}
		}
	}()

	if err := d.limiter.Acquire(d.ctx); err != nil {
		d.log.Warn("no import slot available", "job_id", jobID, "error", err)
		if ferr := d.runner.Fail(context.WithoutCancel(d.ctx), jobID, err); ferr != nil {
			d.log.Error("failed to record slot timeout", "job_id", jobID, "error", ferr)
		}
		return
	}
	defer d.limiter.Release()

	if err := d.runner.Run(d.ctx, jobID); err != nil {
		d.log.Error("import run failed", "job_id", jobID, "error", err)
	}
}

// Resume dispatches the jobs a previous process accepted but never started:
// pending jobs created before since. A job that cannot be dispatched is failed.
// It returns how many jobs were handed over.
func (d *LocalDispatcher) Resume(ctx context.Context, store JobStore, since time.Time) (int, error) {
	jobs, err := store.ListPendingJobs(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("list pending jobs: %w", err)
	}

	resumed := 0
	for _, job := range jobs {
		if err := d.Dispatch(ctx, job.ID); err != nil {
			d.log.Error("resume import job failed", "job_id", job.ID, "error", err)
			if ferr := d.runner.Fail(context.WithoutCancel(ctx), job.ID, err); ferr != nil {
				d.log.Error("failed to record resume failure", "job_id", job.ID, "error", ferr)
			}
			continue
		}
		d.log.Info("resumed pending import job", "job_id", job.ID, "user_id", job.UserID, "created_at", job.CreatedAt)
		resumed++
	}
	return resumed, nil
}

// Active returns the number of jobs dispatched and not finished yet.
func (d *LocalDispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.running)
}

// LimiterStatus reports the slot usage of the underlying limiter.
func (d *LocalDispatcher) LimiterStatus() LimiterStatus {
	return d.limiter.Status()
}

// Shutdown stops accepting jobs and waits for running ones. When ctx expires
// first, running jobs are cancelled; they record the cancellation as a failure.
func (d *LocalDispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

// InlineDispatcher runs the job before Dispatch returns. It serves the CLI
// import command and tests.
type InlineDispatcher struct {
	Runner JobRunner
}

// Dispatch runs the job to completion.
func (d InlineDispatcher) Dispatch(ctx context.Context, jobID uuid.UUID) error {
	return d.Runner.Run(ctx, jobID)
}

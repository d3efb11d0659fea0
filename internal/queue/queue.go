// Package queue dispatches import jobs through Redis with asynq, so jobs
// accepted by the API can be processed by separate worker processes.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/michalhajok/trackerB-sub000/internal/core"
)

// TypeProcessImport is the asynq task type of a pipeline run.
const TypeProcessImport = "import:process"

// DefaultQueue is the asynq queue import tasks are sent to.
const DefaultQueue = "imports"

type processImportPayload struct {
	JobID uuid.UUID `json:"jobId"`
}

// NewProcessImportTask builds the task for one job.
func NewProcessImportTask(jobID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(processImportPayload{JobID: jobID})
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return asynq.NewTask(TypeProcessImport, payload), nil
}

func parseProcessImportTask(t *asynq.Task) (uuid.UUID, error) {
	var p processImportPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return uuid.Nil, fmt.Errorf("decode payload: %w", err)
	}
	if p.JobID == uuid.Nil {
		return uuid.Nil, errors.New("payload has no job id")
	}
	return p.JobID, nil
}

// Dispatcher enqueues jobs. The task id is the job id, so a job is queued at
// most once while its task is retained.
type Dispatcher struct {
	client  *asynq.Client
	queue   string
	timeout time.Duration
}

var _ core.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher on the given Redis connection.
func NewDispatcher(opt asynq.RedisConnOpt, queue string, timeout time.Duration) *Dispatcher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &Dispatcher{client: asynq.NewClient(opt), queue: queue, timeout: timeout}
}

// Dispatch enqueues the job. Re-dispatching a queued job is a no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID uuid.UUID) error {
	task, err := NewProcessImportTask(jobID)
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.TaskID(jobID.String()),
		asynq.Queue(d.queue),
		asynq.MaxRetry(0),
		asynq.Retention(24 * time.Hour),
	}
	if d.timeout > 0 {
		opts = append(opts, asynq.Timeout(d.timeout))
	}

	info, err := d.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue import task: %w", err)
	}
	slog.Debug("import task enqueued", "job_id", jobID, "task_id", info.ID, "queue", info.Queue)
	return nil
}

// Close releases the Redis connection.
func (d *Dispatcher) Close() error {
	return d.client.Close()
}

// WorkerConfig tunes a Worker.
type WorkerConfig struct {
	Concurrency int
	Queue       string
	Logger      *slog.Logger
}

// Worker consumes import tasks and runs them through the pipeline.
type Worker struct {
	server *asynq.Server
	runner core.JobRunner
	log    *slog.Logger
}

// NewWorker creates a worker. Nothing is consumed until Start.
func NewWorker(opt asynq.RedisConnOpt, runner core.JobRunner, cfg WorkerConfig) *Worker {
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = core.DefaultMaxConcurrentImports
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	w := &Worker{runner: runner, log: log}
	w.server = asynq.NewServer(opt, asynq.Config{
		Concurrency:  cfg.Concurrency,
		Queues:       map[string]int{cfg.Queue: 1},
		Logger:       slogAdapter{log: log.With("component", "asynq")},
		ErrorHandler: asynq.ErrorHandlerFunc(w.handleError),
	})
	return w
}

// Handler returns the task mux served by the worker.
func (w *Worker) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeProcessImport, w.HandleProcessImport)
	return mux
}

// HandleProcessImport runs one job. Jobs that are no longer pending are
// dropped without retry.
func (w *Worker) HandleProcessImport(ctx context.Context, t *asynq.Task) error {
	jobID, err := parseProcessImportTask(t)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	err = w.runner.Run(ctx, jobID)
	var stateErr *core.InvalidStateError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &stateErr), errors.Is(err, core.ErrJobNotFound):
		w.log.Warn("dropping import task", "job_id", jobID, "error", err)
		return nil
	default:
		return err
	}
}

// handleError fails the job when its task errored or panicked, so the job
// does not stay in processing.
func (w *Worker) handleError(ctx context.Context, t *asynq.Task, err error) {
	jobID, perr := parseProcessImportTask(t)
	if perr != nil {
		w.log.Error("import task failed", "error", err, "payload_error", perr)
		return
	}
	cause := &core.UnhandledPipelineError{JobID: jobID, Cause: err}
	if ferr := w.runner.Fail(context.WithoutCancel(ctx), jobID, cause); ferr != nil {
		w.log.Error("record import task failure", "job_id", jobID, "error", ferr)
	}
}

// Start begins consuming tasks in the background.
func (w *Worker) Start() error {
	if err := w.server.Start(w.Handler()); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	return nil
}

// Shutdown waits for active tasks and stops the worker.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

// slogAdapter satisfies asynq.Logger.
type slogAdapter struct {
	log *slog.Logger
}

func (a slogAdapter) Debug(args ...interface{}) { a.log.Debug(fmt.Sprint(args...)) }
func (a slogAdapter) Info(args ...interface{})  { a.log.Info(fmt.Sprint(args...)) }
func (a slogAdapter) Warn(args ...interface{})  { a.log.Warn(fmt.Sprint(args...)) }
func (a slogAdapter) Error(args ...interface{}) { a.log.Error(fmt.Sprint(args...)) }
func (a slogAdapter) Fatal(args ...interface{}) {
	a.log.Error(fmt.Sprint(args...))
	os.Exit(1)
}

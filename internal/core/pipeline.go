package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// CancelCheckEvery is how many rows are processed between cancellation checks.
// The loop also yields the processor at each check.
var CancelCheckEvery = 50

// DefaultMaxFileSize is the upload size limit used when none is configured (50MB).
const DefaultMaxFileSize int64 = 50 * 1024 * 1024

// PipelineConfig tunes a Pipeline. Zero values take the package defaults.
type PipelineConfig struct {
	MaxFileSize      int64
	ProgressEvery    int
	CancelCheckEvery int
	MaxStoredErrors  int
	Logger           *slog.Logger

	// Spool, when set, removes the job's upload once the job is done with it.
	Spool *SpoolCleaner
}

// Pipeline turns one pending ImportJob into persisted records.
// A Pipeline is safe for concurrent runs of different jobs.
type Pipeline struct {
	store     Store
	validator *Validator
	cfg       PipelineConfig
	log       *slog.Logger
	now       func() time.Time
}

// NewPipeline creates a pipeline backed by store.
func NewPipeline(store Store, cfg PipelineConfig) *Pipeline {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = ProgressEvery
	}
	if cfg.CancelCheckEvery <= 0 {
		cfg.CancelCheckEvery = CancelCheckEvery
	}
	if cfg.MaxStoredErrors <= 0 {
		cfg.MaxStoredErrors = MaxStoredErrors
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		store:     store,
		validator: NewValidator(),
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// Run processes a pending job to a terminal state.
//
// A job that is no longer pending is left alone: a cancelled job returns nil,
// any other status returns an InvalidStateError. Row failures and unreadable
// files are recorded on the job, so Run only returns an error when the job
// itself could not be loaded or saved.
func (p *Pipeline) Run(ctx context.Context, jobID uuid.UUID) (err error) {
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	log := p.log.With("job_id", job.ID, "user_id", job.UserID)

	switch job.Status {
	case StatusPending:
	case StatusCancelled:
		log.Info("skipping cancelled import job")
		p.discardUpload(log, job.File)
		return nil
	default:
		return &InvalidStateError{Op: "process", JobID: job.ID, Status: job.Status, Reason: "job is not pending"}
	}

	started := p.now()
	job.Status = StatusProcessing
	job.StartTime = timePtr(started)
	job.HeartbeatAt = timePtr(started)
	job.UpdatedAt = started
	(&progressReporter{job: job}).phase(StepParsing, pctParsing, "Reading "+job.File.Name)

	if err := p.store.SaveJob(ctx, job, StatusPending); err != nil {
		if errors.Is(err, ErrStatusChanged) {
			log.Info("import job changed before start, skipping")
			return nil
		}
		return fmt.Errorf("start job %s: %w", jobID, err)
	}

	defer trackRunning()()
	// A job is never run twice, so the upload goes once the run returns.
	defer p.discardUpload(log, job.File)
	log.Info("import started", "file", job.File.Name, "size", job.File.Size, "import_type", job.ImportType)

	r := &run{
		p:        p,
		job:      job,
		log:      log,
		started:  started,
		progress: &progressReporter{job: job},
		errors:   newErrorCollector(job, p.cfg.MaxStoredErrors),
		writer:   newRecordWriter(p.store, job, p.now),
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("panic in import pipeline",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			cause := &UnhandledPipelineError{JobID: job.ID, Cause: fmt.Errorf("panic: %v", rec)}
			err = r.fail(context.WithoutCancel(ctx), cause)
		}
	}()

	return r.execute(ctx)
}

func (p *Pipeline) discardUpload(log *slog.Logger, file FileMeta) {
	if err := p.cfg.Spool.Remove(file.Path); err != nil {
		log.Warn("remove spooled upload", "path", file.Path, "error", err)
	}
}

// Fail moves a job that has not finished yet to failed. It is used by
// dispatchers that cannot start a run and by the watchdog. A job that already
// reached a terminal status is left unchanged.
func (p *Pipeline) Fail(ctx context.Context, jobID uuid.UUID, cause error) error {
	for attempt := 0; attempt < 3; attempt++ {
		job, err := p.store.GetJob(ctx, jobID)
		if err != nil {
			return fmt.Errorf("load job %s: %w", jobID, err)
		}
		if job.Status.Terminal() {
			return nil
		}

		prev := job.Status
		finalizeFailed(job, cause, p.now())
		err = p.store.SaveJob(ctx, job, prev)
		if errors.Is(err, ErrStatusChanged) {
			continue
		}
		if err != nil {
			return fmt.Errorf("fail job %s: %w", jobID, err)
		}

		p.log.Warn("import job failed", "job_id", jobID, "previous_status", prev, "error", cause)
		recordJobFinished(job, derefTime(job.StartTime, job.CreatedAt))
		p.discardUpload(p.log.With("job_id", jobID), job.File)
		return nil
	}
	return fmt.Errorf("fail job %s: %w", jobID, ErrStatusChanged)
}

// run is the state of one pipeline execution.
type run struct {
	p        *Pipeline
	job      *ImportJob
	log      *slog.Logger
	started  time.Time
	progress *progressReporter
	errors   *errorCollector
	writer   *recordWriter
}

// stopError reports that the stored job left processing while the run was
// still going, either by cancellation or by the watchdog.
type stopError struct {
	stored *ImportJob
}

func (e *stopError) Error() string {
	return fmt.Sprintf("job is %s", e.stored.Status)
}

func (r *run) execute(ctx context.Context) error {
	wb, err := ReadWorkbookFile(ctx, r.job.File, r.p.cfg.MaxFileSize)
	if err != nil {
		return r.fail(context.WithoutCancel(ctx), err)
	}

	r.progress.phase(StepValidating, pctValidating, fmt.Sprintf("Classifying %d sheet(s)", len(wb.Sheets)))
	plans := make([]*sheetPlan, 0, len(wb.Sheets))
	total := 0
	for _, sheet := range wb.Sheets {
		plan := classifySheet(sheet, r.job.ImportType, r.job.HasHeaders)
		plans = append(plans, plan)
		total += len(plan.data)
		r.log.Debug("sheet classified",
			"sheet", plan.sheet,
			"kind", plan.kind,
			"mixed", plan.mixed,
			"header_row", plan.headerRow,
			"rows", len(plan.data),
		)
	}
	r.job.Processing.TotalRows = total
	if err := r.flush(ctx); err != nil {
		return r.stop(ctx, err)
	}

	r.progress.phase(StepImporting, pctImporting, fmt.Sprintf("Importing %d rows", total))
	for _, plan := range plans {
		if err := r.checkpoint(ctx); err != nil {
			return r.stop(ctx, err)
		}

		for _, row := range plan.data {
			if err := ctx.Err(); err != nil {
				return r.stop(ctx, err)
			}

			r.processRow(ctx, plan, row)

			processed := r.job.Processing.ProcessedRows
			if processed%r.p.cfg.CancelCheckEvery == 0 {
				if err := r.checkCancelled(ctx); err != nil {
					return r.stop(ctx, err)
				}
				runtime.Gosched()
			}
			if processed%r.p.cfg.ProgressEvery == 0 {
				if err := r.checkpoint(ctx); err != nil {
					return r.stop(ctx, err)
				}
			}
		}
	}

	done := r.job.Clone()
	finalizeCompleted(done, r.p.now())
	if err := r.p.store.SaveJob(context.WithoutCancel(ctx), done, StatusProcessing); err != nil {
		if errors.Is(err, ErrStatusChanged) {
			err = r.reload(context.WithoutCancel(ctx))
		}
		return r.stop(ctx, err)
	}
	*r.job = *done

	r.log.Info("import completed",
		"total_rows", r.job.Processing.TotalRows,
		"successful_rows", r.job.Processing.SuccessfulRows,
		"error_rows", r.job.Processing.ErrorRows,
		"skipped_rows", r.job.Processing.SkippedRows,
		"records", r.job.RecordsCount.Total,
		"duration_ms", time.Since(r.started).Milliseconds(),
	)
	recordJobFinished(r.job, r.started)
	return nil
}

// processRow runs one row through classification, transformation and
// persistence. It never returns an error: every failure becomes a counter
// and an error entry.
func (r *run) processRow(ctx context.Context, plan *sheetPlan, row Row) {
	counters := &r.job.Processing
	counters.ProcessedRows++

	kind, b, ok := plan.kindFor(row)
	if !ok {
		counters.SkippedRows++
		return
	}

	rec, warnings, err := transformRow(b, r.p.validator, plan.sheet, row)
	if err != nil {
		var rve *RowValidationError
		if errors.As(err, &rve) {
			r.errors.rowFailed(rve.RowError())
		} else {
			r.errors.rowFailed(RowError{Row: row.Number, Sheet: plan.sheet, Message: err.Error()})
		}
		r.errors.warn(warnings...)
		return
	}

	if err := r.writer.write(ctx, rec, row.Number); err != nil {
		entry := RowError{Row: row.Number, Sheet: plan.sheet, Message: err.Error()}
		var pe *PersistenceError
		if errors.As(err, &pe) && pe.Duplicate {
			entry.Field = dedupeField(kind)
			entry.Value = rec.DedupeKey()
			if errors.Is(err, errInFileDuplicate) {
				entry.Severity = SeverityWarning
			}
			r.errors.duplicate(entry)
		} else {
			r.log.Warn("record insert failed", "sheet", plan.sheet, "row", row.Number, "kind", kind, "error", err)
			r.errors.rowFailed(entry)
		}
		r.errors.warn(warnings...)
		return
	}

	counters.SuccessfulRows++
	r.job.RecordsCount.add(kind)
	r.errors.warn(warnings...)
}

func dedupeField(kind RecordKind) string {
	switch kind {
	case KindPosition:
		return "positionId"
	case KindCashOperation:
		return "operationId"
	case KindPendingOrder:
		return "orderId"
	}
	return ""
}

// checkpoint persists progress and counters. It doubles as a cancellation
// check because the save is conditional on the job still processing.
func (r *run) checkpoint(ctx context.Context) error {
	c := r.job.Processing
	r.progress.rows(c.ProcessedRows, c.TotalRows)
	return r.flush(ctx)
}

// checkCancelled re-reads the stored status.
func (r *run) checkCancelled(ctx context.Context) error {
	stored, err := r.p.store.GetJob(ctx, r.job.ID)
	if err != nil {
		return fmt.Errorf("check status: %w", err)
	}
	if stored.Status != StatusProcessing {
		return &stopError{stored: stored}
	}
	return nil
}

func (r *run) flush(ctx context.Context) error {
	now := r.p.now()
	r.job.UpdatedAt = now
	r.job.HeartbeatAt = timePtr(now)
	return r.save(ctx)
}

// save writes the in-memory job over the stored processing document.
func (r *run) save(ctx context.Context) error {
	err := r.p.store.SaveJob(ctx, r.job, StatusProcessing)
	if errors.Is(err, ErrStatusChanged) {
		return r.reload(ctx)
	}
	return err
}

// reload returns a stopError carrying the stored job after a conditional save
// found the status changed.
func (r *run) reload(ctx context.Context) error {
	stored, err := r.p.store.GetJob(ctx, r.job.ID)
	if err != nil {
		return fmt.Errorf("reload job after status change: %w", err)
	}
	return &stopError{stored: stored}
}

// stop ends a run that cannot continue. A cancelled job keeps its stored
// status and receives the counters reached so far. Context cancellation and
// storage errors fail the job.
func (r *run) stop(ctx context.Context, err error) error {
	var se *stopError
	if !errors.As(err, &se) {
		return r.fail(context.WithoutCancel(ctx), err)
	}

	switch se.stored.Status {
	case StatusCancelled:
		r.job.Status = StatusCancelled
		r.job.EndTime = cloneTime(se.stored.EndTime)
		finalizeCancelled(r.job, r.p.now())
		if err := r.p.store.SaveJob(context.WithoutCancel(ctx), r.job, StatusCancelled); err != nil {
			return fmt.Errorf("save cancelled job: %w", err)
		}
		r.log.Info("import cancelled",
			"processed_rows", r.job.Processing.ProcessedRows,
			"total_rows", r.job.Processing.TotalRows,
		)
		recordJobFinished(r.job, r.started)
		return nil
	default:
		r.log.Warn("import stopped, job changed externally", "status", se.stored.Status, "reason", se.stored.FailureReason)
		return nil
	}
}

// fail records a job-level failure on the running job.
func (r *run) fail(ctx context.Context, cause error) error {
	failed := r.job.Clone()
	finalizeFailed(failed, cause, r.p.now())
	err := r.p.store.SaveJob(ctx, failed, StatusProcessing)
	if errors.Is(err, ErrStatusChanged) {
		var se *stopError
		if rerr := r.reload(ctx); errors.As(rerr, &se) && se.stored.Status == StatusCancelled {
			return r.stop(ctx, se)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("save failed job: %w", err)
	}

	*r.job = *failed
	r.log.Error("import failed", "error", cause, "processed_rows", r.job.Processing.ProcessedRows)
	recordJobFinished(r.job, r.started)
	return nil
}

func derefTime(t *time.Time, fallback time.Time) time.Time {
	if t == nil {
		return fallback
	}
	return *t
}

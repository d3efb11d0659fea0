package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultListLimit bounds ListJobs when the caller passes no limit.
const DefaultListLimit = 50

// ServiceConfig tunes a Service.
type ServiceConfig struct {
	MaxFileSize int64
	Logger      *slog.Logger
}

// Service is the job-control surface: create, inspect, cancel, roll back
// and delete import jobs. Every operation except CreateJob is scoped to the
// owning user; a job owned by someone else is reported as not found.
type Service struct {
	store      Store
	dispatcher Dispatcher
	rollback   *RollbackEngine
	cfg        ServiceConfig
	log        *slog.Logger
	now        func() time.Time
}

// NewService creates a Service.
func NewService(store Store, dispatcher Dispatcher, cfg ServiceConfig) *Service {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		rollback:   NewRollbackEngine(store, log),
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// CreateJob accepts an upload: it validates the request, persists a pending
// job and hands it to the dispatcher. It returns without waiting for the run.
func (s *Service) CreateJob(ctx context.Context, req UploadRequest) (*ImportJob, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidRequest)
	}
	importType, ok := ParseImportType(string(req.ImportType))
	if !ok {
		return nil, fmt.Errorf("%w: unknown import type %q", ErrInvalidRequest, req.ImportType)
	}
	if err := ValidateUpload(req.File, s.cfg.MaxFileSize); err != nil {
		return nil, err
	}

	now := s.now()
	job := &ImportJob{
		ID:         uuid.New(),
		UserID:     userID,
		File:       req.File,
		ImportType: importType,
		HasHeaders: req.HasHeaders,
		Status:     StatusPending,
		Progress:   Progress{Percentage: 0, CurrentStep: StepUploading, Message: "Queued for processing"},
		Errors:     []RowError{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.log.Info("import job created",
		"job_id", job.ID,
		"user_id", userID,
		"file", req.File.Name,
		"size", req.File.Size,
		"import_type", importType,
	)

	if err := s.dispatcher.Dispatch(ctx, job.ID); err != nil {
		s.log.Error("dispatch import job", "job_id", job.ID, "error", err)
		failed := job.Clone()
		finalizeFailed(failed, err, s.now())
		if serr := s.store.SaveJob(context.WithoutCancel(ctx), failed, StatusPending); serr != nil && !errors.Is(serr, ErrStatusChanged) {
			s.log.Error("record dispatch failure", "job_id", job.ID, "error", serr)
		}
		return nil, fmt.Errorf("dispatch job %s: %w", job.ID, err)
	}

	// The dispatcher may have run the job already.
	if latest, err := s.store.GetJob(ctx, job.ID); err == nil {
		return latest, nil
	}
	return job, nil
}

// GetJob returns one of the user's jobs.
func (s *Service) GetJob(ctx context.Context, userID string, jobID uuid.UUID) (*ImportJob, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// ListJobs returns the user's jobs, newest first.
func (s *Service) ListJobs(ctx context.Context, userID string, limit int) ([]*ImportJob, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	jobs, err := s.store.ListJobs(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// JobErrors returns the stored error list of a job.
func (s *Service) JobErrors(ctx context.Context, userID string, jobID uuid.UUID) ([]RowError, error) {
	job, err := s.GetJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	return job.Errors, nil
}

// CancelJob moves a pending or processing job to cancelled. A running
// pipeline notices at its next check and stops, keeping the counters it
// reached.
func (s *Service) CancelJob(ctx context.Context, userID string, jobID uuid.UUID) (*ImportJob, error) {
	for attempt := 0; attempt < 3; attempt++ {
		job, err := s.GetJob(ctx, userID, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status != StatusPending && job.Status != StatusProcessing {
			return nil, &InvalidStateError{Op: "cancel", JobID: job.ID, Status: job.Status, Reason: "job already finished"}
		}

		prev := job.Status
		now := s.now()
		job.Status = StatusCancelled
		job.EndTime = timePtr(now)
		job.UpdatedAt = now
		job.Rollback.CanRollback = false
		job.Progress.Message = "Cancelled by user"

		err = s.store.SaveJob(ctx, job, prev)
		if errors.Is(err, ErrStatusChanged) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("cancel job: %w", err)
		}

		s.log.Info("import job cancelled", "job_id", job.ID, "user_id", userID, "previous_status", prev)
		return job, nil
	}
	return nil, fmt.Errorf("cancel job %s: %w", jobID, ErrStatusChanged)
}

// RollbackJob deletes the records produced by a completed job.
func (s *Service) RollbackJob(ctx context.Context, userID string, jobID uuid.UUID, reason string) (*ImportJob, *RollbackResult, error) {
	job, err := s.GetJob(ctx, userID, jobID)
	if err != nil {
		return nil, nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "requested by user"
	}

	result, err := s.rollback.Rollback(ctx, job, reason)
	if err != nil {
		return nil, nil, err
	}

	updated, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, fmt.Errorf("reload job: %w", err)
	}
	return updated, result, nil
}

// DeleteJob removes a finished job document. The records it produced are
// not touched; only RollbackJob deletes records.
func (s *Service) DeleteJob(ctx context.Context, userID string, jobID uuid.UUID) error {
	job, err := s.GetJob(ctx, userID, jobID)
	if err != nil {
		return err
	}
	if !job.Status.Terminal() {
		return &InvalidStateError{Op: "delete", JobID: job.ID, Status: job.Status, Reason: "cancel the job first"}
	}
	if err := s.store.DeleteJob(ctx, jobID); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	s.log.Info("import job deleted", "job_id", jobID, "user_id", userID)
	return nil
}

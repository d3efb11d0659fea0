package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobStore persists ImportJob documents.
//
// Implementations must return copies: callers mutate the jobs they receive.
type JobStore interface {
	CreateJob(ctx context.Context, job *ImportJob) error

	// GetJob returns ErrJobNotFound for unknown ids.
	GetJob(ctx context.Context, id uuid.UUID) (*ImportJob, error)

	// ListJobs returns the user's jobs, newest first.
	ListJobs(ctx context.Context, userID string, limit int) ([]*ImportJob, error)

	// SaveJob replaces the stored document only if its status still equals
	// expect. Otherwise it returns ErrStatusChanged and writes nothing.
	SaveJob(ctx context.Context, job *ImportJob, expect Status) error

	// MarkRolledBack sets the rollback sub-state of a completed job that was
	// not rolled back yet, or returns ErrStatusChanged.
	MarkRolledBack(ctx context.Context, id uuid.UUID, at time.Time, reason string) error

	// ListStuckJobs returns processing jobs whose heartbeat is older than before.
	ListStuckJobs(ctx context.Context, before time.Time) ([]*ImportJob, error)

	// ListPendingJobs returns pending jobs created before before, oldest first.
	ListPendingJobs(ctx context.Context, before time.Time) ([]*ImportJob, error)

	// DeleteJob removes the job document. Records are left untouched.
	DeleteJob(ctx context.Context, id uuid.UUID) error
}

// RecordStore persists domain records.
type RecordStore interface {
	// InsertRecord returns an error wrapping ErrDuplicateRecord on a unique violation.
	InsertRecord(ctx context.Context, rec Record) error

	// DeleteByBatch removes every record of one kind carrying the batch id.
	DeleteByBatch(ctx context.Context, kind RecordKind, userID string, batchID uuid.UUID) (int64, error)

	// CountByBatch counts the records of one kind carrying the batch id.
	CountByBatch(ctx context.Context, kind RecordKind, userID string, batchID uuid.UUID) (int64, error)
}

// Store is the persistence the pipeline needs.
type Store interface {
	JobStore
	RecordStore
}

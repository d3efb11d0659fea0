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

// RollbackResult reports what a rollback removed.
type RollbackResult struct {
	JobID   uuid.UUID            `json:"jobId"`
	Deleted map[RecordKind]int64 `json:"deleted"`
	Total   int64                `json:"total"`
	At      time.Time            `json:"rollbackTime"`
}

// RollbackEngine deletes every record produced by one completed job.
type RollbackEngine struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// NewRollbackEngine creates a rollback engine backed by store.
func NewRollbackEngine(store Store, log *slog.Logger) *RollbackEngine {
	if log == nil {
		log = slog.Default()
	}
	return &RollbackEngine{store: store, log: log, now: time.Now}
}

// Rollback removes the records of all kinds tagged with the job's batch id and
// marks the job rolled back. The job status is not changed.
//
// It fails with InvalidStateError unless the job is completed and not rolled
// back yet. When some kinds were deleted and others were not it returns a
// PartialRollbackError and leaves the job unmarked, so a retry can finish
// the remaining kinds.
func (e *RollbackEngine) Rollback(ctx context.Context, job *ImportJob, reason string) (*RollbackResult, error) {
	if err := checkRollbackable(job); err != nil {
		recordRollback("rejected")
		return nil, err
	}

	log := e.log.With("job_id", job.ID, "user_id", job.UserID)
	result := &RollbackResult{JobID: job.ID, Deleted: make(map[RecordKind]int64, len(AllKinds))}
	failed := make(map[RecordKind]error)
	var deleted []RecordKind

	for _, kind := range AllKinds {
		n, err := e.store.DeleteByBatch(ctx, kind, job.UserID, job.ID)
		if err != nil {
			log.Error("rollback delete failed", "kind", kind, "error", err)
			failed[kind] = err
			continue
		}
		deleted = append(deleted, kind)
		result.Deleted[kind] = n
		result.Total += n
	}

	switch {
	case len(failed) == len(AllKinds):
		recordRollback("failed")
		errs := make([]error, 0, len(failed))
		for _, kind := range AllKinds {
			errs = append(errs, fmt.Errorf("%s: %w", kind, failed[kind]))
		}
		return nil, fmt.Errorf("rollback job %s: %w", job.ID, errors.Join(errs...))
	case len(failed) > 0:
		recordRollback("partial")
		return nil, &PartialRollbackError{JobID: job.ID, Deleted: deleted, Failed: failed}
	}

	at := e.now().UTC()
	if err := e.store.MarkRolledBack(ctx, job.ID, at, reason); err != nil {
		if errors.Is(err, ErrStatusChanged) {
			recordRollback("rejected")
			return nil, &InvalidStateError{Op: "rollback", JobID: job.ID, Status: job.Status, Reason: "job was rolled back concurrently"}
		}
		recordRollback("failed")
		return nil, fmt.Errorf("mark job %s rolled back: %w", job.ID, err)
	}
	result.At = at

	log.Info("import rolled back",
		"records_deleted", result.Total,
		"expected_records", job.RecordsCount.Total,
		"reason", reason,
	)
	recordRollback("success")
	return result, nil
}

func checkRollbackable(job *ImportJob) error {
	switch {
	case job.Status != StatusCompleted:
		return &InvalidStateError{Op: "rollback", JobID: job.ID, Status: job.Status, Reason: "only completed jobs can be rolled back"}
	case job.Rollback.IsRolledBack:
		return &InvalidStateError{Op: "rollback", JobID: job.ID, Status: job.Status, Reason: "job is already rolled back"}
	}
	return nil
}

// describeKinds renders kinds for messages, e.g. "position, cash_operation".
func describeKinds(kinds []RecordKind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}

package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrJobNotFound is returned for unknown jobs and for jobs owned by another user.
	ErrJobNotFound = errors.New("import job not found")

	// ErrStatusChanged is returned by JobStore.SaveJob when the stored status
	// no longer matches the expected one.
	ErrStatusChanged = errors.New("job status changed concurrently")

	// ErrDuplicateRecord is returned by RecordStore.InsertRecord on a unique violation.
	ErrDuplicateRecord = errors.New("duplicate key: record already exists")

	// ErrInvalidRequest marks malformed caller input.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrJobStalled is the failure cause recorded by the watchdog.
	ErrJobStalled = errors.New("job stalled: no progress heartbeat")
)

// FileFormatError means the upload could not be read as a spreadsheet.
// It fails the whole job before any record is written.
type FileFormatError struct {
	File   string
	Reason string
	Err    error
}

func (e *FileFormatError) Error() string {
	msg := "file format error"
	if e.File != "" {
		msg += " in " + e.File
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FileFormatError) Unwrap() error { return e.Err }

// FieldError is one failing field of a row.
type FieldError struct {
	Field   string
	Value   string
	Message string
}

// RowValidationError describes why a row could not become a record.
type RowValidationError struct {
	Sheet  string
	Row    int
	Kind   RecordKind
	Fields []FieldError
}

func (e *RowValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return fmt.Sprintf("validation failed for %s row %d: %s", e.Sheet, e.Row, strings.Join(parts, "; "))
}

// RowError converts the failure into one error-list entry. The first failing
// field identifies the entry and the message lists every failure.
func (e *RowValidationError) RowError() RowError {
	re := RowError{Row: e.Row, Sheet: e.Sheet, Severity: SeverityError}
	if len(e.Fields) > 0 {
		re.Field = e.Fields[0].Field
		re.Value = e.Fields[0].Value
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	re.Message = strings.Join(parts, "; ")
	return re
}

// PersistenceError is a per-row storage failure.
type PersistenceError struct {
	Kind      RecordKind
	Duplicate bool
	Err       error
}

func (e *PersistenceError) Error() string {
	if e.Duplicate {
		return fmt.Sprintf("persist %s: duplicate record: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("persist %s: %v", e.Kind, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// InvalidStateError rejects an operation the job's state does not allow.
type InvalidStateError struct {
	Op     string
	JobID  uuid.UUID
	Status Status
	Reason string
}

func (e *InvalidStateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid state: cannot %s job %s (status %s): %s", e.Op, e.JobID, e.Status, e.Reason)
	}
	return fmt.Sprintf("invalid state: cannot %s job %s (status %s)", e.Op, e.JobID, e.Status)
}

// PartialRollbackError reports a rollback that removed some record kinds but not others.
type PartialRollbackError struct {
	JobID   uuid.UUID
	Deleted []RecordKind
	Failed  map[RecordKind]error
}

func (e *PartialRollbackError) Error() string {
	failed := make([]string, 0, len(e.Failed))
	for _, k := range AllKinds {
		if err, ok := e.Failed[k]; ok {
			failed = append(failed, fmt.Sprintf("%s (%v)", k, err))
		}
	}
	return fmt.Sprintf("partial rollback of job %s: deleted [%s], failed [%s]",
		e.JobID, describeKinds(e.Deleted), strings.Join(failed, ", "))
}

// FailedKinds returns the kinds that still carry the batch id, in rollback order.
func (e *PartialRollbackError) FailedKinds() []RecordKind {
	var kinds []RecordKind
	for _, k := range AllKinds {
		if _, ok := e.Failed[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// UnhandledPipelineError wraps a panic or unexpected error from a background run.
type UnhandledPipelineError struct {
	JobID uuid.UUID
	Cause error
}

func (e *UnhandledPipelineError) Error() string {
	return fmt.Sprintf("unhandled pipeline error in job %s: %v", e.JobID, e.Cause)
}

func (e *UnhandledPipelineError) Unwrap() error { return e.Cause }

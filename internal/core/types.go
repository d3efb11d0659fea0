package core

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an ImportJob.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Step is the pipeline phase shown to the user.
type Step string

const (
	StepUploading  Step = "uploading"
	StepParsing    Step = "parsing"
	StepValidating Step = "validating"
	StepImporting  Step = "importing"
	StepCompleted  Step = "completed"
	StepFailed     Step = "failed"
)

// ImportType is the caller-supplied classification override.
type ImportType string

const (
	ImportAuto           ImportType = "auto"
	ImportPositions      ImportType = "positions"
	ImportCashOperations ImportType = "cash_operations"
	ImportPendingOrders  ImportType = "pending_orders"
)

// ParseImportType accepts the override values understood by the classifier.
// An empty string means auto.
func ParseImportType(s string) (ImportType, bool) {
	switch ImportType(s) {
	case "", ImportAuto:
		return ImportAuto, true
	case ImportPositions, ImportCashOperations, ImportPendingOrders:
		return ImportType(s), true
	}
	return "", false
}

// FileMeta describes the uploaded file handed over by the upload collaborator.
type FileMeta struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Path     string `json:"-"`
}

// Progress is the user-visible progress of a job.
type Progress struct {
	Percentage  int    `json:"percentage"`
	CurrentStep Step   `json:"currentStep"`
	Message     string `json:"message,omitempty"`
}

// Counters tracks row outcomes.
// SuccessfulRows+ErrorRows+SkippedRows <= ProcessedRows <= TotalRows.
type Counters struct {
	TotalRows      int `json:"totalRows"`
	ProcessedRows  int `json:"processedRows"`
	SuccessfulRows int `json:"successfulRows"`
	ErrorRows      int `json:"errorRows"`
	SkippedRows    int `json:"skippedRows"`
	DuplicateRows  int `json:"duplicateRows"`
}

// RecordsCount counts persisted records per kind.
type RecordsCount struct {
	Positions      int `json:"positions"`
	CashOperations int `json:"cashOperations"`
	PendingOrders  int `json:"pendingOrders"`
	Total          int `json:"total"`
}

func (r *RecordsCount) add(kind RecordKind) {
	switch kind {
	case KindPosition:
		r.Positions++
	case KindCashOperation:
		r.CashOperations++
	case KindPendingOrder:
		r.PendingOrders++
	}
}

// Sum returns the number of records across all kinds.
func (r RecordsCount) Sum() int {
	return r.Positions + r.CashOperations + r.PendingOrders
}

// Severity distinguishes row failures from informational notes.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// RowError is one entry of a job's error list.
// Row is the 1-based row number in the sheet.
type RowError struct {
	Row      int      `json:"row"`
	Sheet    string   `json:"sheet,omitempty"`
	Field    string   `json:"field,omitempty"`
	Value    string   `json:"value,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// RollbackState records whether the job's records were removed again.
type RollbackState struct {
	CanRollback  bool       `json:"canRollback"`
	IsRolledBack bool       `json:"isRolledBack"`
	RollbackTime *time.Time `json:"rollbackTime,omitempty"`
	Reason       string     `json:"reason,omitempty"`
}

// ImportJob tracks one upload through the pipeline.
type ImportJob struct {
	ID              uuid.UUID     `json:"id"`
	UserID          string        `json:"userId"`
	File            FileMeta      `json:"file"`
	ImportType      ImportType    `json:"importType"`
	HasHeaders      bool          `json:"hasHeaders"`
	Status          Status        `json:"status"`
	Progress        Progress      `json:"progress"`
	Processing      Counters      `json:"processing"`
	RecordsCount    RecordsCount  `json:"recordsCount"`
	Errors          []RowError    `json:"errors"`
	ErrorsTruncated bool          `json:"errorsTruncated,omitempty"`
	FailureReason   string        `json:"failureReason,omitempty"`
	Rollback        RollbackState `json:"rollback"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	StartTime       *time.Time    `json:"startTime,omitempty"`
	EndTime         *time.Time    `json:"endTime,omitempty"`
	HeartbeatAt     *time.Time    `json:"heartbeatAt,omitempty"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (j *ImportJob) Clone() *ImportJob {
	if j == nil {
		return nil
	}
	c := *j
	c.Errors = slices.Clone(j.Errors)
	c.Rollback.RollbackTime = cloneTime(j.Rollback.RollbackTime)
	c.StartTime = cloneTime(j.StartTime)
	c.EndTime = cloneTime(j.EndTime)
	c.HeartbeatAt = cloneTime(j.HeartbeatAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// UploadRequest is what the upload collaborator hands to CreateJob.
type UploadRequest struct {
	UserID     string
	File       FileMeta
	ImportType ImportType
	HasHeaders bool
}

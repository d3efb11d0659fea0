package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/michalhajok/trackerB-sub000/internal/core"
)

type stubRunner struct {
	runErr  error
	ran     []uuid.UUID
	failed  map[uuid.UUID]error
	failErr error
}

func (r *stubRunner) Run(_ context.Context, id uuid.UUID) error {
	r.ran = append(r.ran, id)
	return r.runErr
}

func (r *stubRunner) Fail(_ context.Context, id uuid.UUID, cause error) error {
	if r.failed == nil {
		r.failed = make(map[uuid.UUID]error)
	}
	r.failed[id] = cause
	return r.failErr
}

func testWorker(r core.JobRunner) *Worker {
	return &Worker{runner: r, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestProcessImportTask(t *testing.T) {
	id := uuid.New()
	task, err := NewProcessImportTask(id)
	if err != nil {
		t.Fatalf("NewProcessImportTask: %v", err)
	}
	if task.Type() != TypeProcessImport {
		t.Errorf("Type = %q, want %q", task.Type(), TypeProcessImport)
	}

	got, err := parseProcessImportTask(task)
	if err != nil {
		t.Fatalf("parseProcessImportTask: %v", err)
	}
	if got != id {
		t.Errorf("job id = %s, want %s", got, id)
	}
}

func TestParseProcessImportTask_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", "{"},
		{"no id", `{}`},
		{"bad id", `{"jobId":"nope"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseProcessImportTask(asynq.NewTask(TypeProcessImport, []byte(tt.payload)))
			if err == nil {
				t.Error("error = nil, want error")
			}
		})
	}
}

func TestHandleProcessImport(t *testing.T) {
	id := uuid.New()
	task, _ := NewProcessImportTask(id)

	tests := []struct {
		name    string
		runErr  error
		wantErr bool
	}{
		{"success", nil, false},
		{"not pending", &core.InvalidStateError{Op: "process", JobID: id, Status: core.StatusCompleted}, false},
		{"deleted job", core.ErrJobNotFound, false},
		{"store error", errors.New("connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &stubRunner{runErr: tt.runErr}
			err := testWorker(r).HandleProcessImport(context.Background(), task)

			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if errors.Is(err, asynq.SkipRetry) {
				t.Errorf("error = %v, want a retryable error", err)
			}
			if len(r.ran) != 1 || r.ran[0] != id {
				t.Errorf("ran = %v, want [%s]", r.ran, id)
			}
		})
	}
}

func TestHandleProcessImport_BadPayloadSkipsRetry(t *testing.T) {
	r := &stubRunner{}
	err := testWorker(r).HandleProcessImport(context.Background(), asynq.NewTask(TypeProcessImport, []byte("{")))

	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("error = %v, want SkipRetry", err)
	}
	if len(r.ran) != 0 {
		t.Errorf("ran = %v, want none", r.ran)
	}
}

func TestHandleError_FailsJob(t *testing.T) {
	id := uuid.New()
	task, _ := NewProcessImportTask(id)
	r := &stubRunner{}

	testWorker(r).handleError(context.Background(), task, errors.New("task timed out"))

	var unhandled *core.UnhandledPipelineError
	if !errors.As(r.failed[id], &unhandled) {
		t.Fatalf("failure = %v, want UnhandledPipelineError", r.failed[id])
	}
	if unhandled.JobID != id {
		t.Errorf("JobID = %s, want %s", unhandled.JobID, id)
	}
}

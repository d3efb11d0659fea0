package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/michalhajok/trackerB-sub000/internal/core"
	"github.com/michalhajok/trackerB-sub000/internal/store/memory"
)

// recordingDispatcher remembers dispatched jobs without running them.
type recordingDispatcher struct {
	ids []uuid.UUID
	err error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, id uuid.UUID) error {
	d.ids = append(d.ids, id)
	return d.err
}

func newService(store core.Store, d core.Dispatcher) *core.Service {
	return core.NewService(store, d, core.ServiceConfig{MaxFileSize: 1 << 20, Logger: quietLogger()})
}

func TestService_CreateJob(t *testing.T) {
	store := memory.New()
	d := &recordingDispatcher{}
	svc := newService(store, d)
	file := writeCSV(t, "cash.csv", "Deposit,100,2024-01-01,a\n")

	job, err := svc.CreateJob(context.Background(), core.UploadRequest{
		UserID:     " u1 ",
		File:       file,
		ImportType: "",
		HasHeaders: true,
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	if job.Status != core.StatusPending {
		t.Errorf("Status = %q, want pending", job.Status)
	}
	if job.UserID != "u1" {
		t.Errorf("UserID = %q, want u1", job.UserID)
	}
	if job.ImportType != core.ImportAuto {
		t.Errorf("ImportType = %q, want auto", job.ImportType)
	}
	if job.Progress.Percentage != 0 || job.Progress.CurrentStep != core.StepUploading {
		t.Errorf("Progress = %+v, want 0/uploading", job.Progress)
	}
	if job.Errors == nil {
		t.Error("Errors = nil, want empty list")
	}
	if len(d.ids) != 1 || d.ids[0] != job.ID {
		t.Errorf("dispatched = %v, want [%s]", d.ids, job.ID)
	}
}

func TestService_CreateJobRejects(t *testing.T) {
	file := writeCSV(t, "cash.csv", "Deposit,100,2024-01-01,a\n")
	big := file
	big.Size = 2 << 20

	tests := []struct {
		name    string
		req     core.UploadRequest
		wantErr func(error) bool
	}{
		{
			name:    "missing user",
			req:     core.UploadRequest{File: file},
			wantErr: func(err error) bool { return errors.Is(err, core.ErrInvalidRequest) },
		},
		{
			name:    "unknown import type",
			req:     core.UploadRequest{UserID: "u1", File: file, ImportType: "bonds"},
			wantErr: func(err error) bool { return errors.Is(err, core.ErrInvalidRequest) },
		},
		{
			name: "file too large",
			req:  core.UploadRequest{UserID: "u1", File: big},
			wantErr: func(err error) bool {
				var ffe *core.FileFormatError
				return errors.As(err, &ffe)
			},
		},
		{
			name: "unsupported type",
			req:  core.UploadRequest{UserID: "u1", File: core.FileMeta{Name: "a.pdf", Size: 3, MimeType: "application/pdf"}},
			wantErr: func(err error) bool {
				var ffe *core.FileFormatError
				return errors.As(err, &ffe)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			d := &recordingDispatcher{}
			_, err := newService(store, d).CreateJob(context.Background(), tt.req)
			if !tt.wantErr(err) {
				t.Errorf("CreateJob error = %v", err)
			}
			if len(d.ids) != 0 {
				t.Errorf("dispatched %d jobs, want none", len(d.ids))
			}
			if jobs, _ := store.ListJobs(context.Background(), "u1", 10); len(jobs) != 0 {
				t.Errorf("stored %d jobs, want none", len(jobs))
			}
		})
	}
}

func TestService_DispatchFailureFailsJob(t *testing.T) {
	store := memory.New()
	svc := newService(store, &recordingDispatcher{err: errors.New("redis down")})
	file := writeCSV(t, "cash.csv", "Deposit,100,2024-01-01,a\n")

	_, err := svc.CreateJob(context.Background(), core.UploadRequest{UserID: "u1", File: file})
	if err == nil {
		t.Fatal("CreateJob error = nil, want dispatch error")
	}

	jobs, _ := store.ListJobs(context.Background(), "u1", 10)
	if len(jobs) != 1 {
		t.Fatalf("stored jobs = %d, want 1", len(jobs))
	}
	if jobs[0].Status != core.StatusFailed {
		t.Errorf("Status = %q, want failed", jobs[0].Status)
	}
}

func TestService_InlineRun(t *testing.T) {
	store := memory.New()
	p := core.NewPipeline(store, core.PipelineConfig{Logger: quietLogger()})
	svc := newService(store, core.InlineDispatcher{Runner: p})
	file := writeCSV(t, "cash.csv", "Deposit,100,2024-01-01,a\nFee,-1,2024-01-02,b\n")

	job, err := svc.CreateJob(context.Background(), core.UploadRequest{
		UserID:     "u1",
		File:       file,
		ImportType: core.ImportCashOperations,
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.Status != core.StatusCompleted {
		t.Fatalf("Status = %q, want completed", job.Status)
	}
	if job.RecordsCount.CashOperations != 2 {
		t.Errorf("CashOperations = %d, want 2", job.RecordsCount.CashOperations)
	}
}

func TestService_OwnerScoping(t *testing.T) {
	store := memory.New()
	svc := newService(store, &recordingDispatcher{})
	ctx := context.Background()
	file := writeCSV(t, "cash.csv", "Deposit,100,2024-01-01,a\n")

	job, err := svc.CreateJob(ctx, core.UploadRequest{UserID: "u1", File: file})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := svc.CreateJob(ctx, core.UploadRequest{UserID: "u1", File: file}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	if _, err := svc.GetJob(ctx, "u1", job.ID); err != nil {
		t.Errorf("owner GetJob: %v", err)
	}
	if _, err := svc.GetJob(ctx, "u2", job.ID); !errors.Is(err, core.ErrJobNotFound) {
		t.Errorf("foreign GetJob error = %v, want ErrJobNotFound", err)
	}
	if _, err := svc.JobErrors(ctx, "u2", job.ID); !errors.Is(err, core.ErrJobNotFound) {
		t.Errorf("foreign JobErrors error = %v, want ErrJobNotFound", err)
	}
	if _, err := svc.CancelJob(ctx, "u2", job.ID); !errors.Is(err, core.ErrJobNotFound) {
		t.Errorf("foreign CancelJob error = %v, want ErrJobNotFound", err)
	}
	if err := svc.DeleteJob(ctx, "u2", job.ID); !errors.Is(err, core.ErrJobNotFound) {
		t.Errorf("foreign DeleteJob error = %v, want ErrJobNotFound", err)
	}

	tests := []struct {
		user  string
		limit int
		want  int
	}{
		{"u1", 0, 2},
		{"u1", 1, 1},
		{"u2", 0, 0},
	}
	for _, tt := range tests {
		jobs, err := svc.ListJobs(ctx, tt.user, tt.limit)
		if err != nil {
			t.Fatalf("ListJobs: %v", err)
		}
		if len(jobs) != tt.want {
			t.Errorf("ListJobs(%q, %d) = %d jobs, want %d", tt.user, tt.limit, len(jobs), tt.want)
		}
	}
}

func TestService_CancelAndDelete(t *testing.T) {
	store := memory.New()
	svc := newService(store, &recordingDispatcher{})
	p := core.NewPipeline(store, core.PipelineConfig{Logger: quietLogger()})
	ctx := context.Background()
	file := writeCSV(t, "cash.csv", "Deposit,100,2024-01-01,a\n")

	job, err := svc.CreateJob(ctx, core.UploadRequest{UserID: "u1", File: file})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	var stateErr *core.InvalidStateError
	if err := svc.DeleteJob(ctx, "u1", job.ID); !errors.As(err, &stateErr) {
		t.Errorf("DeleteJob on pending job: error = %v, want InvalidStateError", err)
	}

	cancelled, err := svc.CancelJob(ctx, "u1", job.ID)
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if cancelled.Status != core.StatusCancelled || cancelled.EndTime == nil {
		t.Errorf("cancelled job = %q end %v, want cancelled with end time", cancelled.Status, cancelled.EndTime)
	}

	if _, err := svc.CancelJob(ctx, "u1", job.ID); !errors.As(err, &stateErr) {
		t.Errorf("second CancelJob: error = %v, want InvalidStateError", err)
	}

	// A worker picking the job up afterwards leaves it cancelled.
	if err := p.Run(ctx, job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, _ := svc.GetJob(ctx, "u1", job.ID); got.Status != core.StatusCancelled {
		t.Errorf("Status after Run = %q, want cancelled", got.Status)
	}

	if err := svc.DeleteJob(ctx, "u1", job.ID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if _, err := svc.GetJob(ctx, "u1", job.ID); !errors.Is(err, core.ErrJobNotFound) {
		t.Errorf("GetJob after delete: error = %v, want ErrJobNotFound", err)
	}
}

func TestService_DeleteKeepsRecords(t *testing.T) {
	store := memory.New()
	svc := newService(store, &recordingDispatcher{})
	job := importAllKinds(t, store, "u1")

	if err := svc.DeleteJob(context.Background(), "u1", job.ID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if got := countBatch(t, store, job); got != 5 {
		t.Errorf("records after delete = %d, want 5", got)
	}
}

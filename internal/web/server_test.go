package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/michalhajok/trackerB-sub000/internal/config"
	"github.com/michalhajok/trackerB-sub000/internal/core"
	"github.com/michalhajok/trackerB-sub000/internal/store/memory"
	mw "github.com/michalhajok/trackerB-sub000/internal/web/middleware"
)

const positionsCSV = "Symbol,Volume,Side,Open Price,Open Time\n" +
	"AAPL,10,BUY,150.5,2024-01-02\n" +
	"MSFT,5,SELL,310,2024-01-03\n"

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	pipeline := core.NewPipeline(store, core.PipelineConfig{})
	service := core.NewService(store, core.InlineDispatcher{Runner: pipeline}, core.ServiceConfig{})

	cfg := &config.Config{
		Server: config.ServerConfig{Port: 8080},
		Upload: config.UploadConfig{MaxFileSize: 1 << 20, SpoolDir: t.TempDir()},
	}
	return NewServer(service, cfg, nil), store
}

func uploadRequest(t *testing.T, user, name, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if name != "" {
		part, err := w.CreateFormFile("file", name)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte(content))
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/imports", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if user != "" {
		req.Header.Set(mw.UserIDHeader, user)
	}
	return req
}

func do(s *Server, method, path, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if user != "" {
		req.Header.Set(mw.UserIDHeader, user)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func createJob(t *testing.T, s *Server, user string) core.ImportJob {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, uploadRequest(t, user, "positions.csv", positionsCSV, nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /api/imports status = %d, want %d; body %s", rec.Code, http.StatusAccepted, rec.Body)
	}
	var job core.ImportJob
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	return job
}

func TestCreateImport(t *testing.T) {
	s, store := newTestServer(t)
	job := createJob(t, s, "alice")

	if job.Status != core.StatusCompleted {
		t.Errorf("Status = %q, want %q", job.Status, core.StatusCompleted)
	}
	if job.Processing.SuccessfulRows != 2 {
		t.Errorf("SuccessfulRows = %d, want 2", job.Processing.SuccessfulRows)
	}
	if job.RecordsCount.Positions != 2 || job.RecordsCount.Total != 2 {
		t.Errorf("RecordsCount = %+v, want 2 positions", job.RecordsCount)
	}
	if got := len(store.Records(core.KindPosition, job.ID)); got != 2 {
		t.Errorf("stored positions = %d, want 2", got)
	}
}

func TestCreateImport_BadRequests(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name     string
		user     string
		file     string
		fields   map[string]string
		want     int
		wantCode string
	}{
		{"no user", "", "positions.csv", nil, http.StatusUnauthorized, ""},
		{"no file", "alice", "", nil, http.StatusBadRequest, "FILE004"},
		{"unknown import type", "alice", "positions.csv", map[string]string{"importType": "bonds"}, http.StatusBadRequest, "REQ001"},
		{"bad hasHeaders", "alice", "positions.csv", map[string]string{"hasHeaders": "maybe"}, http.StatusBadRequest, "REQ001"},
		{"unsupported type", "alice", "positions.pdf", nil, http.StatusBadRequest, "FILE002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Router().ServeHTTP(rec, uploadRequest(t, tt.user, tt.file, positionsCSV, tt.fields))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d; body %s", rec.Code, tt.want, rec.Body)
			}
			if tt.wantCode == "" {
				return
			}
			var resp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", resp.Code, tt.wantCode)
			}
		})
	}
}

func TestCreateImport_RejectedUploadIsNotSpooled(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, uploadRequest(t, "alice", "positions.csv", positionsCSV, map[string]string{"importType": "bonds"}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	entries, err := os.ReadDir(s.spoolDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("spool dir has %d files, want 0", len(entries))
	}
}

func TestGetImport_OwnerScoped(t *testing.T) {
	s, _ := newTestServer(t)
	job := createJob(t, s, "alice")
	path := "/api/imports/" + job.ID.String()

	if rec := do(s, http.MethodGet, path, "alice"); rec.Code != http.StatusOK {
		t.Errorf("owner GET status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec := do(s, http.MethodGet, path, "mallory"); rec.Code != http.StatusNotFound {
		t.Errorf("foreign GET status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if rec := do(s, http.MethodGet, "/api/imports/not-a-uuid", "alice"); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed id status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestListImports(t *testing.T) {
	s, _ := newTestServer(t)
	createJob(t, s, "alice")
	createJob(t, s, "alice")
	createJob(t, s, "bob")

	rec := do(s, http.MethodGet, "/api/imports", "alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var jobs []core.ImportJob
	if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Errorf("len(jobs) = %d, want 2", len(jobs))
	}

	if rec := do(s, http.MethodGet, "/api/imports?limit=0", "alice"); rec.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRollbackImport(t *testing.T) {
	s, store := newTestServer(t)
	job := createJob(t, s, "alice")
	path := "/api/imports/" + job.ID.String() + "/rollback"

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"reason":"wrong file"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(mw.UserIDHeader, "alice")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("rollback status = %d, want %d; body %s", rec.Code, http.StatusOK, rec.Body)
	}

	var resp struct {
		Job    core.ImportJob      `json:"job"`
		Result core.RollbackResult `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Job.Rollback.IsRolledBack {
		t.Error("IsRolledBack = false, want true")
	}
	if resp.Job.Rollback.Reason != "wrong file" {
		t.Errorf("Reason = %q, want %q", resp.Job.Rollback.Reason, "wrong file")
	}
	if resp.Result.Total != 2 {
		t.Errorf("Result.Total = %d, want 2", resp.Result.Total)
	}
	if got := len(store.Records(core.KindPosition, job.ID)); got != 0 {
		t.Errorf("stored positions after rollback = %d, want 0", got)
	}

	if rec := do(s, http.MethodPost, path, "alice"); rec.Code != http.StatusConflict {
		t.Errorf("second rollback status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestCancelFinishedImport(t *testing.T) {
	s, _ := newTestServer(t)
	job := createJob(t, s, "alice")

	rec := do(s, http.MethodPost, "/api/imports/"+job.ID.String()+"/cancel", "alice")
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestImportErrorsAndStatus(t *testing.T) {
	s, _ := newTestServer(t)
	csv := positionsCSV + "TSLA,-1,BUY,200,2024-01-04\n"
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, uploadRequest(t, "alice", "positions.csv", csv, nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload status = %d", rec.Code)
	}
	var job core.ImportJob
	json.Unmarshal(rec.Body.Bytes(), &job)

	rec = do(s, http.MethodGet, "/api/imports/"+job.ID.String()+"/errors", "alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("errors status = %d, want %d", rec.Code, http.StatusOK)
	}
	var rowErrors []core.RowError
	if err := json.Unmarshal(rec.Body.Bytes(), &rowErrors); err != nil {
		t.Fatal(err)
	}
	if len(rowErrors) != 1 || rowErrors[0].Field != "volume" {
		t.Errorf("errors = %+v, want one volume error", rowErrors)
	}

	rec = do(s, http.MethodGet, "/api/imports/"+job.ID.String()+"/status", "alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("status fragment = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "positions.csv") || !strings.Contains(body, "completed") {
		t.Errorf("fragment missing file name or status: %s", body)
	}
	if strings.Contains(body, "hx-trigger") {
		t.Errorf("finished job fragment should not poll: %s", body)
	}
}

func TestDeleteImport(t *testing.T) {
	s, _ := newTestServer(t)
	job := createJob(t, s, "alice")
	path := "/api/imports/" + job.ID.String()

	if rec := do(s, http.MethodDelete, path, "bob"); rec.Code != http.StatusNotFound {
		t.Errorf("foreign DELETE status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if rec := do(s, http.MethodDelete, path, "alice"); rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if rec := do(s, http.MethodGet, path, "alice"); rec.Code != http.StatusNotFound {
		t.Errorf("GET after delete status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	entries, _ := os.ReadDir(s.spoolDir)
	if len(entries) != 0 {
		t.Errorf("spool dir has %d files after delete, want 0", len(entries))
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)

	if rec := do(s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("/healthz status = %d, want %d", rec.Code, http.StatusOK)
	}

	createJob(t, s, "alice")
	rec := do(s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "trackerb_import_jobs_total") {
		t.Error("/metrics missing trackerb_import_jobs_total")
	}
}

func TestHealth_ReportsImportSlots(t *testing.T) {
	s, _ := newTestServer(t)
	s.ReportImports(core.NewImportLimiter(3, 0).Status)

	rec := do(s, http.MethodGet, "/healthz", "")
	var body struct {
		Status  string             `json:"status"`
		Imports core.LimiterStatus `json:"imports"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Imports.MaxConcurrent != 3 {
		t.Errorf("imports.maxConcurrent = %d, want 3", body.Imports.MaxConcurrent)
	}
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth_Unavailable(t *testing.T) {
	store := memory.New()
	service := core.NewService(store, core.InlineDispatcher{Runner: core.NewPipeline(store, core.PipelineConfig{})}, core.ServiceConfig{})
	s := NewServer(service, &config.Config{Upload: config.UploadConfig{SpoolDir: t.TempDir()}}, downStore{})

	if rec := do(s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/healthz status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", core.ErrJobNotFound, http.StatusNotFound},
		{"invalid state", &core.InvalidStateError{Op: "cancel", Status: core.StatusCompleted}, http.StatusConflict},
		{"partial rollback", &core.PartialRollbackError{}, http.StatusInternalServerError},
		{"too many", core.ErrTooManyUploads, http.StatusTooManyRequests},
		{"file format", &core.FileFormatError{Reason: "empty file"}, http.StatusBadRequest},
		{"other", os.ErrPermission, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("%s: statusFor() = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestSpoolKeepsExtension(t *testing.T) {
	s, _ := newTestServer(t)
	path, n, err := s.spool(strings.NewReader("a,b\n"), "Export.CSV")
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("size = %d, want 4", n)
	}
	if filepath.Ext(path) != ".csv" {
		t.Errorf("ext = %q, want .csv", filepath.Ext(path))
	}
}

package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/michalhajok/trackerB-sub000/internal/core"
	"github.com/michalhajok/trackerB-sub000/internal/logging"
	mw "github.com/michalhajok/trackerB-sub000/internal/web/middleware"
	"github.com/michalhajok/trackerB-sub000/internal/web/templates"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before the rest spills to temporary files.
const multipartMemory = 8 << 20

// multipartOverhead allows for form fields and boundaries on top of the file.
const multipartOverhead = 1 << 20

// handleCreateImport accepts a multipart upload, spools the file and creates
// a pending job. It answers 202 before the pipeline runs.
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, &core.FileFormatError{Reason: fmt.Sprintf("file too large: exceeds %d bytes", maxSize)})
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: parse multipart form: %v", core.ErrInvalidRequest, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, &core.FileFormatError{Reason: "no file provided"})
		return
	}
	defer file.Close()

	hasHeaders := true
	if v := r.FormValue("hasHeaders"); v != "" {
		hasHeaders, err = strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, r, fmt.Errorf("%w: hasHeaders must be true or false", core.ErrInvalidRequest))
			return
		}
	}

	path, size, err := s.spool(file, header.Filename)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("spool upload: %w", err))
		return
	}

	job, err := s.service.CreateJob(r.Context(), core.UploadRequest{
		UserID: mw.UserID(r.Context()),
		File: core.FileMeta{
			Name:     filepath.Base(header.Filename),
			Size:     size,
			MimeType: header.Header.Get("Content-Type"),
			Path:     path,
		},
		ImportType: core.ImportType(strings.TrimSpace(r.FormValue("importType"))),
		HasHeaders: hasHeaders,
	})
	if err != nil {
		s.removeSpooled(r, path)
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("import accepted", "job_id", job.ID, "file", job.File.Name, "size", size)
	writeJSON(w, http.StatusAccepted, job)
}

// spool copies the upload into the spool directory and returns its path.
func (s *Server) spool(src io.Reader, name string) (string, int64, error) {
	if err := os.MkdirAll(s.spoolDir, 0o750); err != nil {
		return "", 0, err
	}
	dst, err := os.CreateTemp(s.spoolDir, "upload-*"+strings.ToLower(filepath.Ext(name)))
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst.Name())
		return "", 0, err
	}
	return dst.Name(), n, nil
}

// removeSpooled deletes a spooled upload. Paths outside the spool directory
// are left alone.
func (s *Server) removeSpooled(r *http.Request, path string) {
	if err := s.spoolCleaner.Remove(path); err != nil {
		logging.FromContext(r.Context()).Warn("remove spooled upload", "path", path, "error", err)
	}
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	limit := core.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.respondError(w, r, fmt.Errorf("%w: limit must be a positive integer", core.ErrInvalidRequest))
			return
		}
		limit = n
	}

	jobs, err := s.service.ListJobs(r.Context(), mw.UserID(r.Context()), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*core.ImportJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := s.service.GetJob(r.Context(), mw.UserID(r.Context()), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleImportErrors(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	rowErrors, err := s.service.JobErrors(r.Context(), mw.UserID(r.Context()), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if rowErrors == nil {
		rowErrors = []core.RowError{}
	}
	writeJSON(w, http.StatusOK, rowErrors)
}

// handleImportStatus renders the HTMX progress card.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := s.service.GetJob(r.Context(), mw.UserID(r.Context()), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.JobStatus(job).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render status", "job_id", id, "error", err)
	}
}

func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := s.service.CancelJob(r.Context(), mw.UserID(r.Context()), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type rollbackRequest struct {
	Reason string `json:"reason"`
}

type rollbackResponse struct {
	Job    *core.ImportJob      `json:"job"`
	Result *core.RollbackResult `json:"result"`
}

func (s *Server) handleRollbackImport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}

	var req rollbackRequest
	if r.ContentLength != 0 && strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		if err := decodeJSON(r, &req); err != nil {
			s.respondError(w, r, err)
			return
		}
	} else {
		req.Reason = r.FormValue("reason")
	}

	job, result, err := s.service.RollbackJob(r.Context(), mw.UserID(r.Context()), id, req.Reason)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rollbackResponse{Job: job, Result: result})
}

func (s *Server) handleDeleteImport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	userID := mw.UserID(r.Context())

	job, err := s.service.GetJob(r.Context(), userID, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.service.DeleteJob(r.Context(), userID, id); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.removeSpooled(r, job.File.Path)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			logging.FromContext(r.Context()).Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	body := map[string]any{"status": "ok"}
	if s.imports != nil {
		body["imports"] = s.imports()
	}
	writeJSON(w, http.StatusOK, body)
}

// jobID parses the {id} route parameter, answering 400 when it is malformed.
func (s *Server) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, fmt.Errorf("%w: malformed import id", core.ErrInvalidRequest))
		return uuid.Nil, false
	}
	return id, true
}

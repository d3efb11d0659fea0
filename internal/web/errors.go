package web

// errors.go maps core errors to HTTP responses.
//
// The technical error is logged with the request id; the client receives the
// MapError message, its action hint and support code. HTMX requests get an
// HTML alert fragment instead of JSON.

import (
	"errors"
	"net/http"

	"github.com/michalhajok/trackerB-sub000/internal/core"
	"github.com/michalhajok/trackerB-sub000/internal/logging"
	"github.com/michalhajok/trackerB-sub000/internal/web/templates"
)

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`

	// FailedKinds lists the record kinds left behind by a partial rollback.
	FailedKinds []core.RecordKind `json:"failedKinds,omitempty"`
}

// statusFor picks the HTTP status of an error returned by core.Service.
func statusFor(err error) int {
	var (
		stateErr   *core.InvalidStateError
		partialErr *core.PartialRollbackError
		formatErr  *core.FileFormatError
	)
	switch {
	case errors.Is(err, core.ErrJobNotFound):
		return http.StatusNotFound
	case errors.As(err, &stateErr), errors.Is(err, core.ErrStatusChanged):
		return http.StatusConflict
	case errors.As(err, &partialErr):
		return http.StatusInternalServerError
	case errors.Is(err, core.ErrTooManyUploads):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrInvalidRequest), errors.As(err, &formatErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the user-facing response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		log.Error("request error", attrs...)
	} else {
		log.Warn("request error", attrs...)
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_ = templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
		return
	}

	resp := ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
	var partialErr *core.PartialRollbackError
	if errors.As(err, &partialErr) {
		resp.FailedKinds = partialErr.FailedKinds()
	}
	writeJSON(w, status, resp)
}

// isHTMX checks if the request is an HTMX request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

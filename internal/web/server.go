// Package web provides the HTTP API for creating and controlling import jobs.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/michalhajok/trackerB-sub000/internal/config"
	"github.com/michalhajok/trackerB-sub000/internal/core"
	mw "github.com/michalhajok/trackerB-sub000/internal/web/middleware"
)

// HealthChecker is pinged by /healthz.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP server of the import API.
type Server struct {
	service      *core.Service
	cfg          *config.Config
	health       HealthChecker
	imports      func() core.LimiterStatus
	spoolDir     string
	spoolCleaner *core.SpoolCleaner
	router       *chi.Mux
	server       *http.Server
}

// NewServer creates a new Server instance. health may be nil.
func NewServer(service *core.Service, cfg *config.Config, health HealthChecker) *Server {
	spool, err := filepath.Abs(cfg.Upload.SpoolDir)
	if err != nil {
		spool = filepath.Clean(cfg.Upload.SpoolDir)
	}
	s := &Server{
		service:      service,
		cfg:          cfg,
		health:       health,
		spoolDir:     spool,
		spoolCleaner: core.NewSpoolCleaner(spool),
		router:       chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// ReportImports adds the local import slot usage to /healthz.
func (s *Server) ReportImports(status func() core.LimiterStatus) {
	s.imports = status
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	}

	// Security hardening
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))
		r.Use(mw.RequireUser)

		r.Post("/imports", s.handleCreateImport)
		r.Get("/imports", s.handleListImports)

		r.Route("/imports/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetImport)
			r.Delete("/", s.handleDeleteImport)
			r.Get("/errors", s.handleImportErrors)
			r.Get("/status", s.handleImportStatus)
			r.Post("/cancel", s.handleCancelImport)
			r.Post("/rollback", s.handleRollbackImport)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(csp bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if csp {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

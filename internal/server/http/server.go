// Package httpserver provides the HTTP REST API for starting research runs and
// reading their results.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/helixir/deep-research-service/internal/domain"
	"github.com/helixir/deep-research-service/internal/temporal"
)

// WorkflowClient starts and inspects research workflows.
type WorkflowClient interface {
	StartResearch(ctx context.Context, input temporal.ResearchWorkflowInput) (workflowID, runID string, err error)
	Progress(ctx context.Context, sessionID string) (*temporal.WorkflowProgress, error)
	Describe(ctx context.Context, sessionID string) (*temporal.WorkflowDescription, error)
	Stop(ctx context.Context, sessionID, reason string) error
	Cancel(ctx context.Context, sessionID string) error
	Health(ctx context.Context) error
}

// ArtifactReader reads persisted session output.
type ArtifactReader interface {
	Session(ctx context.Context, id string) (*domain.Session, error)
	CategoryReports(ctx context.Context, id string) ([]domain.CategoryReport, error)
	Reference(ctx context.Context, id string) (string, error)
	FinalReport(ctx context.Context, id string, mode domain.ReportMode, model string) (string, error)
}

// Pinger reports whether the artifact store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	workflows  WorkflowClient
	artifacts  ArtifactReader
	store      Pinger
	validate   *validator.Validate
	logger     zerolog.Logger

	defaultMode  domain.ReportMode
	pollInterval time.Duration
	now          func() time.Time
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// DefaultReportMode is used when a request does not name a mode.
	DefaultReportMode string
	// ProgressInterval is how often the progress stream queries the workflow.
	ProgressInterval time.Duration
}

// NewServer creates a new HTTP server with all dependencies.
func NewServer(
	cfg Config,
	workflows WorkflowClient,
	artifacts ArtifactReader,
	store Pinger,
	logger zerolog.Logger,
) (*Server, error) {
	mode, err := domain.ParseReportMode(cfg.DefaultReportMode)
	if err != nil {
		return nil, err
	}
	interval := cfg.ProgressInterval
	if interval <= 0 {
		interval = sseQueryInterval
	}

	s := &Server{
		workflows:    workflows,
		artifacts:    artifacts,
		store:        store,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		logger:       logger.With().Str("component", "http-server").Logger(),
		defaultMode:  mode,
		pollInterval: interval,
		now:          time.Now,
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s, nil
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(requestLoggerMiddleware(s.logger))
	r.Use(jsonContentTypeMiddleware)

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1/research", func(r chi.Router) {
		r.Post("/", s.startResearch)
		r.Route("/{researchID}", func(r chi.Router) {
			r.Use(sessionIDMiddleware)
			r.Get("/", s.getSession)
			r.Get("/status", s.getStatus)
			r.Get("/progress", s.streamProgress)
			r.Get("/reports", s.getCategoryReports)
			r.Get("/reference", s.getReference)
			r.Get("/final", s.getFinalReport)
			r.Post("/stop", s.stopResearch)
			r.Post("/cancel", s.cancelResearch)
		})
	})

	return r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns liveness status based on the artifact store.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "unhealthy",
			"storage": "unreachable",
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "storage": "healthy"})
}

// readinessHandler additionally requires Temporal to be reachable.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "not_ready",
			"storage": "unreachable",
			"error":   err.Error(),
		})
		return
	}
	if err := s.workflows.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"storage":  "healthy",
			"temporal": "unreachable",
			"error":    err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"storage":  "healthy",
		"temporal": "healthy",
	})
}

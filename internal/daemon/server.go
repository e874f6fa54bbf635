// Package daemon serves the simulation over a JSON HTTP API.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/phishdrill/internal/domain"
	"github.com/felixgeelhaar/phishdrill/internal/feedback"
	"github.com/felixgeelhaar/phishdrill/internal/metrics"
	"github.com/felixgeelhaar/phishdrill/internal/simulation"
	"github.com/go-chi/chi/v5"
)

// Version is reported by /v1/status.
var Version = "dev"

// StatsSource exposes router counters.
type StatsSource interface {
	Snapshot() metrics.Snapshot
}

// Check is a named readiness check.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Addr      string
	Service   *simulation.Service
	Renderer  *feedback.Renderer
	Stats     StatsSource
	Providers []string
	Checks    []Check
	Logger    *slog.Logger
}

// Server is the phishdrill HTTP API.
type Server struct {
	service   *simulation.Service
	renderer  *feedback.Renderer
	stats     StatsSource
	providers []string
	checks    []Check
	logger    *slog.Logger
	started   time.Time

	router chi.Router
	server *http.Server
}

// NewServer builds the server and its routes.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	renderer := cfg.Renderer
	if renderer == nil {
		renderer = feedback.NewRenderer()
	}

	s := &Server{
		service:   cfg.Service,
		renderer:  renderer,
		stats:     cfg.Stats,
		providers: cfg.Providers,
		checks:    cfg.Checks,
		logger:    logger,
		started:   time.Now(),
		router:    chi.NewRouter(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // covers a full router deadline
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(correlationIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoveryMiddleware(s.logger))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)
		r.Get("/status", s.handleStatus)
		r.Get("/stats", s.handleStats)
		r.Get("/analytics", s.handleAnalytics)
		r.Get("/content/phase1", s.handlePhase1Items)

		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/start", s.handleStartSession)
			r.Post("/phase1/answers", s.handlePhase1Answer)
			r.Post("/phase2/start", s.handleStartPhase2)
			r.Post("/phase2/items", s.handleNextItem)
			r.Post("/phase2/answers", s.handlePhase2Answer)
			r.Post("/restart", s.handleRestart)
			r.Post("/skip", s.handleSkip)
		})

		r.Post("/assignments", s.handleAssessAssignment)
		r.Get("/assignments", s.handleListAssignments)
	})
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting phishdrill API",
		"addr", s.server.Addr,
		"providers", s.providers,
	)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	results := make(map[string]string, len(s.checks))
	status := http.StatusOK
	for _, c := range s.checks {
		if err := c.Run(ctx); err != nil {
			results[c.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[c.Name] = "ok"
	}
	s.jsonResponse(w, status, map[string]any{"checks": results})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":         "running",
		"version":        Version,
		"providers":      s.providers,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		s.jsonError(w, http.StatusNotFound, "stats not enabled", nil)
		return
	}
	s.jsonResponse(w, http.StatusOK, s.stats.Snapshot())
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := s.service.Analytics(r.Context())
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, a)
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}

// serviceError maps simulation errors to HTTP statuses.
func (s *Server) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status  int
		message string
	)
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status, message = http.StatusBadRequest, "invalid input"
	case errors.Is(err, domain.ErrUnexpectedItem):
		status, message = http.StatusBadRequest, "unexpected item"
	case domain.IsNotFound(err):
		status, message = http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrSessionAbandoned):
		status, message = http.StatusConflict, "session abandoned"
	case errors.Is(err, domain.ErrInvalidTransition):
		status, message = http.StatusConflict, "invalid state transition"
		s.logger.Error("invalid transition",
			"correlation_id", GetCorrelationID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	case errors.Is(err, domain.ErrAlreadyAnswered):
		status, message = http.StatusConflict, "already answered"
	case errors.Is(err, domain.ErrPersistence), errors.Is(err, domain.ErrUnavailable):
		status, message = http.StatusServiceUnavailable, "temporarily unavailable"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status, message = http.StatusServiceUnavailable, "request cancelled"
	default:
		status, message = http.StatusInternalServerError, "internal error"
	}
	s.jsonError(w, status, message, err)
}

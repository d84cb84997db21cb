package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/progression/internal/config"
	"github.com/felixgeelhaar/progression/internal/domain"
	"github.com/felixgeelhaar/progression/internal/ledger"
	"github.com/felixgeelhaar/progression/internal/practice"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PracticeService is the subset of the practice service the handlers use
type PracticeService interface {
	GetRecommendedPracticeSession(ctx context.Context, id domain.Identity, sessionType string, count int) (*practice.SessionPlan, error)
	GetPerformance(ctx context.Context, id domain.Identity) (*practice.PerformanceReport, error)
}

// HealthFunc reports whether the backing store is reachable
type HealthFunc func(ctx context.Context) error

// Server represents the progression daemon HTTP server
type Server struct {
	cfg     *config.LocalConfig
	server  *http.Server
	router  *http.ServeMux
	version string
	started time.Time

	// Services
	ledgerService   ledger.LedgerService
	practiceService PracticeService
	health          HealthFunc
	configured      bool
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config   *config.LocalConfig
	Ledger   ledger.LedgerService
	Practice PracticeService
	Health   HealthFunc // nil when no store is attached
	Version  string
}

// NewServer creates a new daemon server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("ledger service is required")
	}

	s := &Server{
		cfg:             cfg.Config,
		router:          http.NewServeMux(),
		version:         cfg.Version,
		started:         time.Now(),
		ledgerService:   cfg.Ledger,
		practiceService: cfg.Practice,
		health:          cfg.Health,
		configured:      cfg.Config.Storage.Driver != config.DriverNone,
	}
	if s.version == "" {
		s.version = "dev"
	}

	s.setupRoutes()

	// Create HTTP server with middleware chain
	addr := fmt.Sprintf("%s:%d", cfg.Config.Daemon.Bind, cfg.Config.Daemon.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)
	s.router.Handle("GET /metrics", promhttp.Handler())

	// XP
	s.router.HandleFunc("GET /v1/progress", s.handleGetProgress)
	s.router.HandleFunc("POST /v1/xp/problem", s.handleAwardProblem)
	s.router.HandleFunc("POST /v1/xp/login", s.handleAwardLogin)
	s.router.HandleFunc("POST /v1/xp/award", s.handleAward)
	s.router.HandleFunc("POST /v1/problems/complete", s.handleCompleteProblem)

	// Streaks
	s.router.HandleFunc("GET /v1/streak", s.handleGetStreak)
	s.router.HandleFunc("POST /v1/streak/study", s.handleRecordStudy)

	// Practice
	s.router.HandleFunc("GET /v1/practice", s.handlePracticeSession)
	s.router.HandleFunc("GET /v1/practice/performance", s.handlePerformance)

	// Erasure
	s.router.HandleFunc("DELETE /v1/users/{user_id}/progress", s.handleDeleteProgress)
}

// Handler returns the router wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	return correlationIDMiddleware(recoveryMiddleware(loggingMiddleware(s.router)))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting progression daemon",
		"addr", s.server.Addr,
		"storage", s.cfg.Storage.Driver,
		"version", s.version,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down daemon...")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	var storageErr string
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			status, code = "unhealthy", http.StatusServiceUnavailable
			storageErr = err.Error()
		}
	}

	resp := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if storageErr != "" {
		resp["storage_error"] = storageErr
	}
	s.jsonResponse(w, code, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":         "running",
		"version":        s.version,
		"storage":        s.cfg.Storage.Driver,
		"configured":     s.configured,
		"queue_enabled":  s.cfg.Queue.Enabled,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

// Helper methods

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}

// serviceError maps a ledger or practice error onto an HTTP status
func (s *Server) serviceError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error(message, "correlation_id", GetCorrelationID(r.Context()), "error", err)
	}
	s.jsonError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidIdentity),
		errors.Is(err, domain.ErrUnknownDifficulty),
		errors.Is(err, domain.ErrUnknownSessionType),
		errors.Is(err, domain.ErrNegativeXP):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrConflictExhausted), errors.Is(err, domain.ErrDuplicate):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

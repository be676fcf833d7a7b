package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/codementor/internal/config"
	"github.com/felixgeelhaar/codementor/internal/domain"
	"github.com/felixgeelhaar/codementor/internal/metrics"
	"github.com/felixgeelhaar/codementor/internal/progress"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Analytics answers cross-user questions about recorded completions. The
// SQLite and Postgres deployments provide it; the file store does not.
type Analytics interface {
	BandStats(ctx context.Context) ([]domain.BandStat, error)
	ExerciseStats(ctx context.Context, exerciseIDs []string) ([]domain.ExerciseStat, error)
	PlateauedUsers(ctx context.Context) ([]string, error)
}

// Server represents the CodeMentor daemon HTTP server
type Server struct {
	cfg     *config.LocalConfig
	server  *http.Server
	router  *http.ServeMux
	handler http.Handler

	progress  progress.ProgressService
	analytics Analytics
	metrics   *metrics.Metrics
	limiter   ratelimit.RateLimiter

	version   string
	startedAt time.Time
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config         *config.LocalConfig
	Progress       progress.ProgressService
	Analytics      Analytics // optional
	Metrics        *metrics.Metrics
	Version        string
	AllowedOrigins []string
	RateLimit      int // requests per second per client, 0 disables
}

// NewServer creates a new daemon server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("daemon: config is required")
	}
	if cfg.Progress == nil {
		return nil, errors.New("daemon: progress service is required")
	}

	s := &Server{
		cfg:       cfg.Config,
		router:    http.NewServeMux(),
		progress:  cfg.Progress,
		analytics: cfg.Analytics,
		metrics:   cfg.Metrics,
		version:   cfg.Version,
		startedAt: time.Now(),
	}
	if s.version == "" {
		s.version = "dev"
	}

	if cfg.RateLimit > 0 {
		s.limiter = ratelimit.New(&ratelimit.Config{
			Rate:     cfg.RateLimit,
			Burst:    cfg.RateLimit * 3,
			Interval: time.Second,
		})
	}

	s.setupRoutes()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", CorrelationIDHeader},
		ExposedHeaders: []string{CorrelationIDHeader},
		MaxAge:         300,
	})

	// Metrics sits directly on the mux so it sees the matched pattern
	var h http.Handler = s.router
	h = metricsMiddleware(s.metrics)(h)
	h = rateLimitMiddleware(s.limiter)(h)
	h = loggingMiddleware(h)
	h = correlationIDMiddleware(h)
	h = recoveryMiddleware(h)
	s.handler = c.Handler(h)

	addr := fmt.Sprintf("%s:%d", cfg.Config.Daemon.Bind, cfg.Config.Daemon.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
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

	// Config
	s.router.HandleFunc("GET /v1/config/thresholds", s.handleGetThresholds)

	// Profiles
	s.router.HandleFunc("POST /v1/profiles", s.handleCreateProfile)
	s.router.HandleFunc("GET /v1/profiles/{user_id}", s.handleGetProfile)
	s.router.HandleFunc("GET /v1/profiles/{user_id}/band", s.handleGetBand)

	// Completions
	s.router.HandleFunc("POST /v1/profiles/{user_id}/completions", s.handleRecordCompletion)
	s.router.HandleFunc("GET /v1/profiles/{user_id}/completions", s.handleListCompletions)

	// Analytics
	s.router.HandleFunc("GET /v1/analytics/bands", s.handleBandStats)
	s.router.HandleFunc("GET /v1/analytics/exercises", s.handleExerciseStats)
	s.router.HandleFunc("GET /v1/analytics/plateaued", s.handlePlateauedUsers)

	// Prometheus
	s.router.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the full middleware chain, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting codementor daemon",
		"addr", s.server.Addr,
		"version", s.version,
		"analytics", s.analytics != nil,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down daemon...")

	if s.limiter != nil {
		if err := s.limiter.Close(); err != nil {
			slog.Warn("failed to close rate limiter", "error", err)
		}
	}

	return s.server.Shutdown(ctx)
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
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

// serviceError maps progress service errors onto HTTP statuses
func (s *Server) serviceError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrUnknownSkillLevel):
		s.jsonError(w, http.StatusUnprocessableEntity, message, err)
	case errors.Is(err, domain.ErrProfileNotFound):
		s.jsonError(w, http.StatusNotFound, "profile not found", nil)
	case errors.Is(err, domain.ErrProfileExists),
		errors.Is(err, domain.ErrDuplicateCompletion),
		errors.Is(err, domain.ErrVersionConflict):
		s.jsonError(w, http.StatusConflict, message, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		s.jsonError(w, http.StatusServiceUnavailable, message, err)
	default:
		slog.Error(message, "error", err)
		s.jsonError(w, http.StatusInternalServerError, message, nil)
	}
}

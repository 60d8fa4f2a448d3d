// Package server exposes the evaluation pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/scenegraph/sgeval/internal/app"
	"github.com/scenegraph/sgeval/internal/evaluation"
	"github.com/scenegraph/sgeval/internal/metrics"
	apperrors "github.com/scenegraph/sgeval/internal/pkg/errors"
	"github.com/scenegraph/sgeval/internal/pkg/logger"
	"github.com/scenegraph/sgeval/internal/pkg/middleware"
)

// Server serves ad-hoc evaluations, runs over the configured split, health
// and metrics.
type Server struct {
	cfg        Config
	log        *logger.Logger
	app        *app.App
	httpServer *http.Server
	limiter    *middleware.RateLimiter

	// runner evaluates the configured split; nil when no recorded outputs are configured.
	runner *evaluation.Evaluator

	evalHandler *evaluation.Handler

	mu      sync.RWMutex
	started bool
}

// Config configures the server.
type Config struct {
	Host            string
	Port            int
	Version         string
	RateLimit       int // requests per second per client, 0 disables limiting
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8090,
		Version:         "dev",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// New creates a server around a.
func New(cfg Config, a *app.App, log *logger.Logger) (*Server, error) {
	if log == nil {
		log = logger.Discard()
	}
	s := &Server{cfg: cfg, log: log, app: a}

	model, err := a.ReplayModel()
	switch {
	case err == nil:
		if s.runner, err = a.NewEvaluator(model); err != nil {
			return nil, err
		}
	case apperrors.IsConfiguration(err):
		log.Info("No recorded outputs configured, split runs disabled", "reason", err.Error())
	default:
		return nil, err
	}

	ds := a.Dataset()
	s.evalHandler = evaluation.NewHandler(ds.Kind, ds.Vocabulary, a.Settings(),
		evaluation.WithObserver(a.Metrics()),
		evaluation.WithLogger(log),
	)

	if err := metrics.NewEventSubscriber(a.Metrics(), a.Bus()).Subscribe(); err != nil {
		return nil, err
	}

	if cfg.RateLimit > 0 {
		rl := middleware.DefaultRateLimiterConfig()
		rl.RequestsPerSecond = float64(cfg.RateLimit)
		rl.Burst = 2 * cfg.RateLimit
		s.limiter = middleware.NewRateLimiter(rl)
	}
	return s, nil
}

// Handler returns the fully wrapped route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.evalHandler.RegisterRoutes(mux)
	mux.HandleFunc("POST /v1/evaluation/run", s.handleRun)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.app.Metrics().Handler())

	var h http.Handler = mux
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	h = metrics.HTTPMiddleware(s.app.Metrics(), h)
	return middleware.RequestLog(s.log, h)
}

// Start listens and serves until Stop is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.started = true
	s.mu.Unlock()

	s.log.Info("Starting HTTP server", "addr", addr, "version", s.cfg.Version)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully stops the server and releases the app.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("HTTP shutdown error", "error", err)
	}

	if s.limiter != nil {
		s.limiter.Stop()
	}
	if err := s.app.Close(); err != nil {
		s.log.Warn("Error closing pipeline", "error", err)
	}

	s.started = false
	s.log.Info("Server stopped")
	return nil
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		apperrors.WriteError(w, apperrors.ConfigurationError("dataset.outputs is not configured"))
		return
	}

	report, err := s.app.Run(r.Context(), s.runner)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Dataset string `json:"dataset"`
	Split   string `json:"split"`
	Runner  string `json:"runner"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	runner := "disabled"
	if s.runner != nil {
		runner = s.runner.State().String()
	}
	ds := s.app.Dataset()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.cfg.Version,
		Dataset: string(ds.Kind),
		Split:   string(ds.Split),
		Runner:  runner,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Package api exposes the decision engine over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/softcane/kube-remediator/internal/metrics"
	"github.com/softcane/kube-remediator/internal/remediation"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Engine is the subset of remediation.Engine the API serves.
type Engine interface {
	HandlePrediction(ctx context.Context, p remediation.Prediction) remediation.RemediationResult
	ActionHistory() []remediation.ActionRecord
	EffectivenessMetrics() metrics.Snapshot
	MarkFalsePositive(ctx context.Context, id string, actionType remediation.ActionType) bool
	Threshold() float64
	SetPredictionThreshold(v float64) error
}

// Config configures the API server.
type Config struct {
	Engine Engine

	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// Server routes HTTP requests to the engine.
type Server struct {
	engine   Engine
	validate *validator.Validate
	logger   *slog.Logger
	router   chi.Router
}

// NewServer creates the API server and registers its routes.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine:   cfg.Engine,
		validate: validator.New(),
		logger:   logger,
		router:   chi.NewRouter(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.logRequests)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Post("/remediate", s.handleRemediate)
	s.router.Get("/actions", s.handleActions)
	s.router.Post("/actions/{id}/false-positive", s.handleFalsePositive)
	s.router.Get("/effectiveness", s.handleEffectiveness)
	s.router.Get("/threshold", s.handleGetThreshold)
	s.router.Put("/threshold", s.handleSetThreshold)
	if cfg.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	return s, nil
}

// ServeHTTP dispatches requests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down API server", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown: %w", err)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

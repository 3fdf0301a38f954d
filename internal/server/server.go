// Package server wires handlers and middleware into the pivot HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/pivoter/pivoter/internal/config"
	"github.com/pivoter/pivoter/internal/handlers"
	"github.com/pivoter/pivoter/internal/metrics"
	"github.com/pivoter/pivoter/internal/middleware"
	"github.com/pivoter/pivoter/internal/ratelimit"
	"github.com/pivoter/pivoter/pkg/logger"
)

// Server is the HTTP front end of the pivot service.
type Server struct {
	cfg              *config.Config
	log              *logger.Logger
	httpServer       *http.Server
	healthHandler    *handlers.HealthHandler
	datasetHandler   *handlers.DatasetHandler
	analyticsHandler *handlers.AnalyticsHandler
	rateLimiter      ratelimit.Limiter
	listener         net.Listener
	running          bool
	mu               sync.RWMutex
}

// Option customises a Server at construction time.
type Option func(*Server)

// WithRateLimiter supplies the limiter used when rate limiting is enabled,
// for example a Redis-backed one shared by all replicas. Without it an
// in-memory limiter is created.
func WithRateLimiter(l ratelimit.Limiter) Option {
	return func(s *Server) {
		s.rateLimiter = l
	}
}

// New creates a Server. Handlers are attached with the setters before Start.
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Server, error) {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		cfg:           cfg,
		log:           log,
		healthHandler: handlers.NewHealthHandler(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	handler, err := s.buildMiddlewareChain(mux)
	if err != nil {
		return nil, err
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s, nil
}

func (s *Server) buildMiddlewareChain(handler http.Handler) (http.Handler, error) {
	chain := middleware.New(
		middleware.Recover(s.log),
		middleware.Metrics(),
		middleware.RequestID(),
		middleware.ClientIP(s.cfg.Rate.TrustProxy, nil),
		middleware.Logging(s.log),
		middleware.MaxBody(s.cfg.Server.MaxBodyBytes),
	)

	if !s.cfg.Rate.Enabled {
		return chain.Then(handler), nil
	}

	if s.rateLimiter == nil {
		limiter, err := ratelimit.NewMemoryLimiter(ratelimit.Config{
			Requests: s.cfg.Rate.Requests,
			Window:   s.cfg.Rate.Window,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		s.rateLimiter = limiter
	}
	chain = chain.Append(middleware.RateLimit(s.rateLimiter, middleware.RateLimitConfig{
		APIKeyHeader: s.cfg.Rate.APIKeyHeader,
		Logger:       s.log,
	}))

	s.log.Info("rate limiting enabled",
		"requests", s.cfg.Rate.Requests,
		"window", s.cfg.Rate.Window.String(),
	)
	return chain.Then(handler), nil
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.healthHandler.Health)
	mux.HandleFunc("GET /ready", s.healthHandler.Ready)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/v1/datasets", s.withDatasets(func(h *handlers.DatasetHandler, w http.ResponseWriter, r *http.Request) {
		h.Create(w, r)
	}))
	mux.HandleFunc("GET /api/v1/datasets", s.withDatasets(func(h *handlers.DatasetHandler, w http.ResponseWriter, r *http.Request) {
		h.List(w, r)
	}))
	mux.HandleFunc("GET /api/v1/datasets/{id}", s.withDatasets(func(h *handlers.DatasetHandler, w http.ResponseWriter, r *http.Request) {
		h.Get(w, r, r.PathValue("id"))
	}))
	mux.HandleFunc("DELETE /api/v1/datasets/{id}", s.withDatasets(func(h *handlers.DatasetHandler, w http.ResponseWriter, r *http.Request) {
		h.Delete(w, r, r.PathValue("id"))
	}))
	mux.HandleFunc("POST /api/v1/datasets/{id}/query", s.withDatasets(func(h *handlers.DatasetHandler, w http.ResponseWriter, r *http.Request) {
		h.Query(w, r, r.PathValue("id"))
	}))
	mux.HandleFunc("GET /api/v1/datasets/{id}/tree", s.withDatasets(func(h *handlers.DatasetHandler, w http.ResponseWriter, r *http.Request) {
		h.Tree(w, r, r.PathValue("id"))
	}))
	mux.HandleFunc("POST /api/v1/pivot", s.withDatasets(func(h *handlers.DatasetHandler, w http.ResponseWriter, r *http.Request) {
		h.Pivot(w, r)
	}))

	mux.HandleFunc("GET /api/v1/datasets/{id}/stats", s.handleStats)
}

// withDatasets resolves the dataset handler at request time so it can be
// attached after New.
func (s *Server) withDatasets(fn func(*handlers.DatasetHandler, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := s.DatasetHandler()
		if h == nil {
			http.Error(w, "dataset service not configured", http.StatusServiceUnavailable)
			return
		}
		fn(h, w, r)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	h := s.AnalyticsHandler()
	if h == nil {
		http.Error(w, "analytics service not configured", http.StatusServiceUnavailable)
		return
	}
	h.GetStats(w, r, r.PathValue("id"))
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Server.Address())
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.log.Info("server starting", "address", listener.Addr().String())

	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown marks the server not ready, drains connections and releases the
// rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("server shutting down")
	s.healthHandler.SetReady(false)

	err := s.httpServer.Shutdown(ctx)

	if s.rateLimiter != nil {
		if closeErr := s.rateLimiter.Close(); closeErr != nil {
			s.log.Error("failed to close rate limiter", "error", closeErr.Error())
		}
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if err != nil {
		s.log.Error("shutdown error", "error", err.Error())
		return err
	}
	s.log.Info("server stopped")
	return nil
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// IsRunning reports whether Start is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the bound listener address, empty before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// HealthHandler returns the health handler so callers can register checks.
func (s *Server) HealthHandler() *handlers.HealthHandler {
	return s.healthHandler
}

// SetDatasetHandler attaches the dataset and pivot endpoints.
func (s *Server) SetDatasetHandler(h *handlers.DatasetHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasetHandler = h
}

// DatasetHandler returns the dataset handler.
func (s *Server) DatasetHandler() *handlers.DatasetHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.datasetHandler
}

// SetAnalyticsHandler attaches the stats endpoint.
func (s *Server) SetAnalyticsHandler(h *handlers.AnalyticsHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyticsHandler = h
}

// AnalyticsHandler returns the analytics handler.
func (s *Server) AnalyticsHandler() *handlers.AnalyticsHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.analyticsHandler
}

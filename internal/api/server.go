package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"optionsflow/internal/api/flowapi"
	"optionsflow/internal/api/health"
	"optionsflow/internal/metrics"
	"optionsflow/internal/workers"
	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

// WorkerHealthSource reports background worker state
type WorkerHealthSource interface {
	Health() map[string]workers.WorkerHealth
}

// ServerConfig contains configuration for HTTP server
type ServerConfig struct {
	Port           int
	ServiceName    string
	Version        string
	RequestTimeout time.Duration
}

// Server wraps HTTP server with lifecycle management
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// NewServer creates and configures HTTP server with all routes.
// workerHealth may be nil.
func NewServer(
	cfg ServerConfig,
	healthHandler *health.Handler,
	flowHandler *flowapi.Handler,
	workerHealth WorkerHealthSource,
	log *logger.Logger,
) *Server {
	log = log.With("component", "http_server")

	port := 8080
	if cfg.Port > 0 {
		port = cfg.Port
	}

	log.Infof("HTTP server configured on port %d", port)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      NewRouter(cfg, healthHandler, flowHandler, workerHealth, log),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: cfg.RequestTimeout + 10*time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: log,
	}
}

// NewRouter builds the chi router
func NewRouter(
	cfg ServerConfig,
	healthHandler *health.Handler,
	flowHandler *flowapi.Handler,
	workerHealth WorkerHealthSource,
	log *logger.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics(log))

	// Kubernetes probes
	r.Get("/health", healthHandler.HandleHealth)
	r.Get("/ready", healthHandler.HandleReadiness)
	r.Get("/live", healthHandler.HandleLiveness)

	r.Handle("/metrics", metrics.Handler())

	if workerHealth != nil {
		r.Get("/workers", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(workerHealth.Health())
		})
	}

	r.Route("/api/v1/flow", func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}
		flowHandler.Routes(r)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"service": cfg.ServiceName,
			"version": cfg.Version,
			"status":  "running",
		})
	})

	return r
}

// requestMetrics records every request under its route pattern
func requestMetrics(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			took := time.Since(start)

			metrics.RecordHTTPRequest(route, status, took)
			log.Debugw("HTTP request",
				"method", r.Method,
				"route", route,
				"status", status,
				"took", took,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// Start begins listening for HTTP requests
// Blocks until server is stopped or encounters an error
func (s *Server) Start() error {
	s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server failed")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
// Waits for active connections to complete within timeout
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Stopping HTTP server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}

	s.log.Info("HTTP server stopped")
	return nil
}

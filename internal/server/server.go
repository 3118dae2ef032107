// Package server exposes the watcher's operational HTTP surface: a health
// endpoint and Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/streamwatch/streamwatch/internal/config"
	"github.com/streamwatch/streamwatch/internal/handlers"
	"github.com/streamwatch/streamwatch/internal/middleware"
)

// Server represents the ops HTTP server.
type Server struct {
	httpServer *http.Server
	logger     logrus.FieldLogger
}

// New creates a new ops HTTP server.
func New(logger logrus.FieldLogger, cfg *config.Config) *Server {
	mux := http.NewServeMux()

	// Health endpoint
	mux.HandleFunc("GET /health", handlers.Health())
	logger.WithField("route", "GET /health").Info("Registered route")

	// Metrics endpoint (Prometheus format)
	mux.Handle("GET /metrics", promhttp.Handler())
	logger.WithField("route", "GET /metrics").Info("Registered route")

	handler := middleware.Recovery(logger)(middleware.Logging(logger)(mux))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		logger:     logger.WithField("component", "server"),
	}
}

// Start starts the HTTP server (blocking call).
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting ops HTTP server")

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down ops HTTP server")

	return s.httpServer.Shutdown(ctx)
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"comparoo/internal/api/health"
	"comparoo/internal/metrics"
	"comparoo/pkg/errors"
	"comparoo/pkg/logger"
)

// ServerConfig contains configuration for the ops HTTP server
type ServerConfig struct {
	Addr        string
	ServiceName string
	Version     string
}

// Server serves probes and metrics; comparisons travel over Kafka
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// NewServer creates and configures the HTTP server with all routes
func NewServer(cfg ServerConfig, healthHandler *health.Handler) *Server {
	log := logger.Get().With("component", "http_server")
	mux := http.NewServeMux()

	healthHandler.Register(mux)
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"service": cfg.ServiceName,
			"version": cfg.Version,
			"status":  "running",
		})
	})

	addr := cfg.Addr
	if addr == "" {
		addr = ":9090"
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		log: log,
	}
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the server is stopped
func (s *Server) Start() error {
	s.log.Infow("http_server_started", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}
	s.log.Info("HTTP server stopped")
	return nil
}

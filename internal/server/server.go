// Package server exposes the scrape and health surfaces over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/teosibileau/grillgauge/internal/logger"
)

const (
	readHeaderTimeout = 5 * time.Second
)

// StatusSource provides per-device connectivity for the health
// endpoint.
type StatusSource interface {
	StatusSnapshot() map[string]bool
}

type healthResponse struct {
	Status    string          `json:"status"`
	Timestamp int64           `json:"timestamp"`
	Devices   map[string]bool `json:"devices"`
}

// Server serves /metrics and /health.
type Server struct {
	httpServer *http.Server
}

func New(addr string, gatherer prometheus.Gatherer, status StatusSource) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{
			Status:    "healthy",
			Timestamp: time.Now().Unix(),
			Devices:   status.StatusSnapshot(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Debug().Err(err).Msg("write health response")
		}
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// Start blocks serving until Shutdown is called.
func (s *Server) Start() error {
	logger.Info().Str("addr", s.httpServer.Addr).Msg("metrics server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gridwatch/faultmap/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SnapshotProvider runs one pipeline pass for a status filter.
type SnapshotProvider interface {
	Refresh(ctx context.Context, status string) service.Snapshot
}

// Pinger verifies connectivity of a backing dependency, typically the
// database pool. A nil Pinger disables the check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes the dashboard data API together with health and metrics
// endpoints.
type Server struct {
	httpServer *http.Server
	snapshots  SnapshotProvider
	pinger     Pinger
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /api/faults, /healthz and /metrics routes.
func NewServer(
	addr string,
	snapshots SnapshotProvider,
	pinger Pinger,
	reg *prometheus.Registry,
	logger *slog.Logger,
) *Server {
	mux := http.NewServeMux()

	const (
		readTimeout  = 10 * time.Second
		writeTimeout = 60 * time.Second // a cold pipeline run geocodes every row
		idleTimeout  = 60 * time.Second
	)

	srv := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
		snapshots: snapshots,
		pinger:    pinger,
		logger:    logger,
	}

	mux.HandleFunc("GET /api/faults", srv.handleFaults)
	mux.HandleFunc("GET /healthz", srv.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return srv
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handleFaults runs one pipeline pass for the requested status filter and
// returns the snapshot. Each request re-runs the whole pipeline.
func (s *Server) handleFaults(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = service.StatusAll
	}

	if !service.ValidStatus(status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid status filter: must be one of All, Planned, Unplanned",
		})
		return
	}

	snapshot := s.snapshots.Refresh(r.Context(), status)
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		const pingTimeout = 2 * time.Second
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()

		if err := s.pinger.Ping(ctx); err != nil {
			s.logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "DB ping failed"})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

// Package health serves the operational HTTP endpoints: liveness,
// readiness, and the aggregate stats snapshot.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/tinyland-inc/reefbot/pkg/dispatch"
	"github.com/tinyland-inc/reefbot/pkg/logger"
)

// Prober reports pipeline health. Implemented by the orchestrator.
type Prober interface {
	Ready() bool
	Health(ctx context.Context) map[string]any
}

// Server exposes /health, /ready, and /stats on a loopback-friendly
// listener.
type Server struct {
	srv     *http.Server
	prober  Prober
	stats   dispatch.StatsProvider
	version string
}

func NewServer(host string, port int, prober Prober, stats dispatch.StatsProvider, version string) *Server {
	s := &Server{prober: prober, stats: stats, version: version}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/stats", s.handleStats)

	s.srv = &http.Server{
		Addr:              net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in the background. Listen errors surface here;
// serve errors after a successful listen are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("health listen on %s: %w", s.srv.Addr, err)
	}
	logger.InfoCF("health", "Serving", map[string]any{"addr": s.srv.Addr})
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("health", "Serve failed", map[string]any{"error": err.Error()})
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := s.prober.Health(r.Context())
	body["status"] = "ok"
	body["version"] = s.version
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.prober.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	snap := s.stats.StatsSnapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"start_time":     snap.StartTime.Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(snap.StartTime).Seconds()),
		"messages":       snap.Messages,
		"commands":       snap.Commands,
		"errors":         snap.Errors,
		"reactions":      snap.Reactions,
	})
}

func writeJSON(w http.ResponseWriter, code int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

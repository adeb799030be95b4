// Package gateway serves the service's HTTP health and readiness endpoints.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/wamenu/internal/aggregator"
	"github.com/nextlevelbuilder/wamenu/internal/config"
	"github.com/nextlevelbuilder/wamenu/internal/outbox"
)

// ChannelStatus reports transport state.
type ChannelStatus interface {
	GetStatus() map[string]bool
	AllRunning() bool
}

// OutboxMetrics reports delivery counters.
type OutboxMetrics interface {
	Metrics() outbox.Metrics
}

// DedupStats reports aggregator map sizes.
type DedupStats interface {
	Stats() aggregator.Stats
}

// SessionCounts reports live menu state.
type SessionCounts interface {
	Len() int
}

// Sources feeds the health payload. Nil fields are omitted.
type Sources struct {
	Channels ChannelStatus
	Outbox   OutboxMetrics
	Dedup    DedupStats
	Sessions SessionCounts
	Locks    interface{ Held() int }
}

// HealthResponse is the JSON body of GET /health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version,omitempty"`
	Uptime   string            `json:"uptime"`
	Channels map[string]bool   `json:"channels,omitempty"`
	Outbox   *outbox.Metrics   `json:"outbox,omitempty"`
	Dedup    *aggregator.Stats `json:"dedup,omitempty"`
	Sessions *SessionStats     `json:"sessions,omitempty"`
}

// SessionStats counts active menu sessions and held processing locks.
type SessionStats struct {
	Active int `json:"active"`
	Locks  int `json:"locks"`
}

// Server is the health HTTP server.
type Server struct {
	cfg     config.GatewayConfig
	src     Sources
	version string
	started time.Time

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a new health server.
func NewServer(cfg config.GatewayConfig, src Sources, version string) *Server {
	return &Server{cfg: cfg, src: src, version: version, started: time.Now()}
}

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	s.mux = mux
	return mux
}

// Start listens until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("health server starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

// Health assembles the current health payload.
func (s *Server) Health() HealthResponse {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	if s.src.Channels != nil {
		resp.Channels = s.src.Channels.GetStatus()
	}
	if s.src.Outbox != nil {
		m := s.src.Outbox.Metrics()
		resp.Outbox = &m
	}
	if s.src.Dedup != nil {
		st := s.src.Dedup.Stats()
		resp.Dedup = &st
	}
	if s.src.Sessions != nil {
		ss := &SessionStats{Active: s.src.Sessions.Len()}
		if s.src.Locks != nil {
			ss.Locks = s.src.Locks.Held()
		}
		resp.Sessions = ss
	}
	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Health())
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.src.Channels == nil || !s.src.Channels.AllRunning() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("health response write failed", "error", err)
	}
}

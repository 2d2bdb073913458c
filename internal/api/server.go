// Package api provides the HTTP API for observing and steering a simulation.
// GET endpoints are public (read-only observation).
// POST /control requires a bearer token when an admin key is configured.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/singleflight"

	"github.com/talgya/kernel-universe/internal/engine"
	"github.com/talgya/kernel-universe/internal/persistence"
)

const (
	maxSSEConns       = 8
	heartbeatInterval = 15 * time.Second
	maxControlBody    = 64 << 10
)

// DefaultStreamFPS is the SSE state push rate when none is configured.
const DefaultStreamFPS = 5

// Server serves simulation state over HTTP.
type Server struct {
	Eng       *engine.Engine
	DB        *persistence.DB // Optional. Nil = snapshots always come from the live engine.
	Addr      string
	AdminKey  string // Bearer token for POST endpoints. Empty = no auth.
	StreamFPS float64

	// TrustProxy makes rate limiting key on X-Forwarded-For.
	TrustProxy bool

	// Active SSE connection count.
	sseConns atomic.Int32

	snapshots singleflight.Group
}

// Handler builds the route table wrapped in CORS handling.
func (s *Server) Handler(ctx context.Context) http.Handler {
	controlLimiter := NewRateLimiter(ctx, 60, time.Minute)
	controlLimiter.TrustForwarded = s.TrustProxy

	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/parameters", s.handleParameters)
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	mux.HandleFunc("/api/v1/control", RateLimitMiddleware(controlLimiter, s.adminOnly(s.handleControl)))

	return corsMiddleware(mux)
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", s.Addr, "admin_auth", s.AdminKey != "")
	if s.AdminKey == "" {
		slog.Warn("control endpoint is unauthenticated (no KUNIVERSE_ADMIN_KEY set)")
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	slog.Info("HTTP API stopped")
	return nil
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests
// when an admin key is configured.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && s.AdminKey != "" && !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Eng.Status()
	started := time.Now().Add(-time.Duration(st.Runtime * float64(time.Second)))

	status := map[string]any{
		"name":           "Kernel Universe",
		"run_id":         st.RunID,
		"tick":           st.Tick,
		"paused":         st.Paused,
		"running":        st.Running,
		"step_rate":      st.StepRate,
		"cores":          st.Cores,
		"total_blooms":   st.TotalBlooms,
		"total_catalyst": st.TotalCatalyst,
		"runtime":        st.Runtime,
		"started":        humanize.Time(started),
	}
	writeJSON(w, status)
}

// handleSnapshot serves the latest stored snapshot, falling back to the
// live state. Concurrent requests share one load.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	v, err, _ := s.snapshots.Do("snapshot", func() (any, error) {
		return s.loadSnapshot(context.WithoutCancel(r.Context()))
	})
	if err != nil {
		slog.Error("snapshot load failed", "error", err)
		http.Error(w, "snapshot unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, v)
}

func (s *Server) loadSnapshot(ctx context.Context) (engine.Snapshot, error) {
	if s.DB == nil {
		return s.Eng.State(), nil
	}
	snap, err := s.DB.LoadState(ctx, persistence.StateKey)
	if errors.Is(err, persistence.ErrNoState) {
		return s.Eng.State(), nil
	}
	if err != nil {
		return engine.Snapshot{}, err
	}
	return snap, nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Eng.History())
}

func (s *Server) handleParameters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Eng.Parameters())
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req engine.Control
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxControlBody)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	res, err := s.Eng.Control(req)
	var perr *engine.ParameterError
	switch {
	case errors.As(err, &perr),
		errors.Is(err, engine.ErrInvalidStepRate),
		errors.Is(err, engine.ErrInvalidPattern),
		errors.Is(err, engine.ErrInvertedBand):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		slog.Error("control failed", "error", err)
		http.Error(w, "control failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, res)
}

// handleStream pushes the full state as SSE at StreamFPS, starting
// immediately, and limits concurrent connections.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	// Connection limit.
	if s.sseConns.Add(1) > maxSSEConns {
		s.sseConns.Add(-1)
		http.Error(w, "too many SSE connections", http.StatusServiceUnavailable)
		return
	}
	defer s.sseConns.Add(-1)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fps := s.StreamFPS
	if fps <= 0 {
		fps = DefaultStreamFPS
	}

	if err := writeSSEState(w, s.Eng.State()); err != nil {
		return
	}
	flusher.Flush()
	slog.Info("SSE client connected", "remote", r.RemoteAddr)

	frames := time.NewTicker(time.Duration(float64(time.Second) / fps))
	defer frames.Stop()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-frames.C:
			if err := writeSSEState(w, s.Eng.State()); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Info("SSE client disconnected", "remote", r.RemoteAddr)
			return
		}
	}
}

// writeSSEState writes a single state frame in SSE format.
func writeSSEState(w http.ResponseWriter, snap engine.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: state\ndata: %s\n\n", data)
	return err
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

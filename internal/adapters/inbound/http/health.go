// Package http provides inbound HTTP adapters for the event store.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/archon-research/event-store/internal/ports/inbound"
)

// HealthServerConfig holds configuration for the health server.
type HealthServerConfig struct {
	// Addr is the address to listen on (e.g., ":8081")
	Addr string

	// Logger for the health server
	Logger *slog.Logger

	// ReadTimeout for HTTP requests
	ReadTimeout time.Duration

	// WriteTimeout for HTTP responses
	WriteTimeout time.Duration
}

// HealthServerConfigDefaults returns a config with default values.
func HealthServerConfigDefaults() HealthServerConfig {
	return HealthServerConfig{
		Addr:         ":8081",
		Logger:       slog.Default(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// persisterStatus is the body of /health.
type persisterStatus struct {
	Status       string `json:"status"`
	Ready        bool   `json:"ready"`
	Healthy      bool   `json:"healthy"`
	ShuttingDown bool   `json:"shuttingDown"`
	// LastPollAgeSeconds is nil until the queue has been polled once.
	LastPollAgeSeconds *float64 `json:"lastPollAgeSeconds"`
}

// HealthServer exposes the event persister's queue polling state as probes.
//
// Endpoints:
//   - /health/ready - 200 once the queue has been polled successfully
//   - /health/live  - 200 while polls keep succeeding
//   - /health       - both flags plus the age of the last poll
//
// After shuttingDown is set every endpoint answers 503, so a replacement
// task takes over the queue before this one exits.
type HealthServer struct {
	server       *http.Server
	checker      inbound.HealthChecker
	shuttingDown *atomic.Bool
	now          func() time.Time
	logger       *slog.Logger
}

// NewHealthServer creates a new health server. A nil shuttingDown is treated
// as never shutting down.
func NewHealthServer(config HealthServerConfig, checker inbound.HealthChecker, shuttingDown *atomic.Bool) *HealthServer {
	defaults := HealthServerConfigDefaults()
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if shuttingDown == nil {
		shuttingDown = &atomic.Bool{}
	}

	hs := &HealthServer{
		checker:      checker,
		shuttingDown: shuttingDown,
		now:          time.Now,
		logger:       config.Logger.With("component", "health-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/ready", hs.probe(checker.IsReady, "ready", "not_ready"))
	mux.HandleFunc("GET /health/live", hs.probe(checker.IsHealthy, "healthy", "unhealthy"))
	mux.HandleFunc("GET /health", hs.handleStatus)

	hs.server = &http.Server{
		Addr:         config.Addr,
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return hs
}

// Start begins listening in a goroutine.
func (hs *HealthServer) Start() {
	go func() {
		hs.logger.Info("starting health server", "addr", hs.server.Addr)
		if err := hs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			hs.logger.Error("health server failed", "error", err)
		}
	}()
}

// Shutdown gracefully stops the health server.
func (hs *HealthServer) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return hs.server.Shutdown(ctx)
}

// probe answers 200 with okStatus while check holds, 503 otherwise.
func (hs *HealthServer) probe(check func() bool, okStatus, failStatus string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case hs.shuttingDown.Load():
			hs.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		case check():
			hs.respondJSON(w, http.StatusOK, map[string]string{"status": okStatus})
		default:
			hs.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": failStatus})
		}
	}
}

func (hs *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	body := persisterStatus{LastPollAgeSeconds: hs.lastPollAge()}

	if hs.shuttingDown.Load() {
		body.Status = "shutting_down"
		body.ShuttingDown = true
		hs.respondJSON(w, http.StatusServiceUnavailable, body)
		return
	}

	body.Ready = hs.checker.IsReady()
	body.Healthy = hs.checker.IsHealthy()
	body.Status = "ok"
	code := http.StatusOK
	if !body.Ready || !body.Healthy {
		body.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	hs.respondJSON(w, code, body)
}

func (hs *HealthServer) lastPollAge() *float64 {
	last := hs.checker.LastPoll()
	if last.IsZero() {
		return nil
	}
	age := hs.now().Sub(last).Seconds()
	return &age
}

func (hs *HealthServer) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		hs.logger.Error("failed to encode JSON response", "error", err)
	}
}

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aryan-regmi/virgil/internal/config"
	"github.com/aryan-regmi/virgil/internal/session"
)

// HTTPServer exposes monitoring endpoints: health, session stats, sanitized
// configuration, and Prometheus metrics.
type HTTPServer struct {
	server    *http.Server
	logger    *slog.Logger
	config    *config.Config
	session   *session.Session
	startTime time.Time
}

// NewHTTPServer creates the monitoring server for one listening session.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config, sess *session.Session) *HTTPServer {
	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		session:   sess,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/stats", h.handleStats)
	mux.HandleFunc("/config", h.handleConfig)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", h.handleRoot)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Start begins serving in the background.
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP monitoring server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP monitoring server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.session.Stats()

	status := "healthy"
	if stats.State == "stopped" {
		status = "stopped"
	}

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "virgil",
			"version": "1.0.0",
		},
		"session": map[string]interface{}{
			"id":    stats.ID,
			"state": stats.State,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"session":   h.session.Stats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Sanitized view: the engine API key is intentionally omitted.
	sanitized := map[string]interface{}{
		"audio": map[string]interface{}{
			"input_device":      h.config.Audio.InputDevice,
			"frames_per_buffer": h.config.Audio.FramesPerBuffer,
			"frame_queue_size":  h.config.Audio.FrameQueueSize,
		},
		"listening": map[string]interface{}{
			"passive_window_ms":  h.config.Listening.PassiveWindowMS,
			"active_window_ms":   h.config.Listening.ActiveWindowMS,
			"guard_samples":      h.config.Listening.GuardSamples,
			"listen_duration_ms": h.config.Listening.ListenDurationMS,
			"vad_enabled":        h.config.Listening.VADEnabled,
			"vad_threshold":      h.config.Listening.VADThreshold,
		},
		"wake_words": h.config.WakeWords,
		"engine": map[string]interface{}{
			"backend":    h.config.Engine.Backend,
			"model_path": h.config.Engine.ModelPath,
			"language":   h.config.Engine.Language,
			"endpoint":   h.config.Engine.Endpoint,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitized)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "virgil speech-capture backend",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":        "API documentation",
			"GET /health":  "Service health check",
			"GET /stats":   "Listening session statistics",
			"GET /config":  "Sanitized service configuration",
			"GET /metrics": "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}

package overlay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Burnaviour/realtime-translator/internal/metrics"
	"github.com/Burnaviour/realtime-translator/internal/pipeline"
	"github.com/Burnaviour/realtime-translator/internal/transcription"
)

// HistorySource serves past utterances for the history endpoint.
type HistorySource interface {
	Recent(ctx context.Context, limit int) ([]pipeline.UtteranceRecord, error)
}

// ServerConfig contains overlay HTTP server configuration
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	Enabled bool   `yaml:"enabled"`
}

// Server exposes the overlay websocket endpoint and the monitoring API
type Server struct {
	server      *http.Server
	logger      *slog.Logger
	hub         *Hub
	transcriber *transcription.Client
	history     HistorySource
	metrics     *metrics.Metrics

	startTime time.Time
}

// NewServer creates the overlay HTTP server. The transcriber and history
// source may be nil; their endpoints then report accordingly.
func NewServer(cfg ServerConfig, logger *slog.Logger, hub *Hub,
	transcriber *transcription.Client, hist HistorySource, m *metrics.Metrics) *Server {

	s := &Server{
		logger:      logger,
		hub:         hub,
		transcriber: transcriber,
		history:     hist,
		metrics:     m,
		startTime:   time.Now(),
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Overlay websocket endpoint; upgraded connections manage their own
	// lifetime, so no metrics wrapper here
	mux.HandleFunc("/ws", s.hub.ServeWS)

	// Health check endpoint
	mux.HandleFunc("/healthz", s.withMetrics("/healthz", s.handleHealth))

	// Status endpoint with runtime statistics
	mux.HandleFunc("/api/v1/status", s.withMetrics("/api/v1/status", s.handleStatus))

	// Utterance history endpoint
	mux.HandleFunc("/api/v1/history", s.withMetrics("/api/v1/history", s.handleHistory))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())
}

// withMetrics wraps an HTTP handler with metrics collection
func (s *Server) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Wrap the response writer to capture the status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		s.metrics.RecordHTTPRequest(r.Method, endpoint, fmt.Sprintf("%d", ww.statusCode), duration)
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting overlay HTTP server",
		slog.String("address", s.server.Addr),
	)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Overlay HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server and disconnects overlay clients
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping overlay HTTP server...")

	s.hub.Close()
	return s.server.Shutdown(ctx)
}

// handleHealth implements the /healthz endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startTime).String(),
		"service": map[string]interface{}{
			"name":    "realtime-translator",
			"version": "1.0.0",
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleStatus implements the /api/v1/status endpoint
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := map[string]interface{}{
		"uptime":    time.Since(s.startTime).String(),
		"timestamp": time.Now().UTC(),
		"overlay": map[string]interface{}{
			"clients": s.hub.ClientCount(),
		},
	}

	if s.transcriber != nil {
		status["transcription"] = s.transcriber.GetStats()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// handleHistory implements the /api/v1/history endpoint
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.history == nil {
		http.Error(w, "History is disabled", http.StatusNotFound)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to query utterance history", slog.String("error", err.Error()))
		http.Error(w, "History query failed", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"total":      len(records),
		"timestamp":  time.Now().UTC(),
		"utterances": records,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

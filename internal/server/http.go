package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dtfyu3/rus-asr-bot-express/internal/analytics"
	"github.com/dtfyu3/rus-asr-bot-express/internal/dedup"
	"github.com/dtfyu3/rus-asr-bot-express/internal/metrics"
	"github.com/dtfyu3/rus-asr-bot-express/internal/update"
)

// WebhookPath is where Telegram delivers updates
const WebhookPath = "/webhook"

// maxWebhookBody caps the accepted update payload size
const maxWebhookBody = 1 << 20

// secretTokenHeader carries the webhook secret Telegram echoes back
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// UpdateHandler processes one deduplicated update to completion
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u *update.Update)
}

// JobStats reports admission gate occupancy for the stats endpoint
type JobStats interface {
	InFlight() int
}

// HTTPServer serves the Telegram webhook plus monitoring endpoints
type HTTPServer struct {
	server      *http.Server
	secretToken string
	dedup       *dedup.Tracker
	handler     UpdateHandler
	jobs        JobStats
	analytics   *analytics.Client
	metrics     *metrics.Metrics
	logger      *slog.Logger

	startTime time.Time
}

// HTTPServerConfig contains HTTP server configuration
type HTTPServerConfig struct {
	Port        int
	BindAddress string
	SecretToken string
}

// NewHTTPServer creates the webhook server
func NewHTTPServer(
	cfg HTTPServerConfig,
	tracker *dedup.Tracker,
	handler UpdateHandler,
	jobs JobStats,
	analyticsClient *analytics.Client,
	m *metrics.Metrics,
	logger *slog.Logger,
) *HTTPServer {
	h := &HTTPServer{
		secretToken: cfg.SecretToken,
		dedup:       tracker,
		handler:     handler,
		jobs:        jobs,
		analytics:   analyticsClient,
		metrics:     m,
		logger:      logger,
		startTime:   time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc(WebhookPath, h.withMetrics(WebhookPath, h.handleWebhook))
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.Handle("/metrics", promhttp.Handler())
}

// withMetrics wraps an HTTP handler with metrics collection and
// best-effort analytics reporting
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)
		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if h.analytics != nil && h.analytics.Enabled() {
			event := analytics.Event{
				Timestamp:  startTime.UTC(),
				Method:     r.Method,
				Path:       endpoint,
				StatusCode: ww.statusCode,
				ChatID:     ww.chatID,
				UpdateKind: ww.updateKind,
				RemoteAddr: r.RemoteAddr,
			}
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				h.analytics.Report(ctx, event)
			}()
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
// plus per-request context the webhook handler resolves mid-flight
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	chatID     int64
	updateKind string
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server...")
	return h.server.Shutdown(ctx)
}

// Handler exposes the routed handler for tests
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// handleWebhook implements the Telegram webhook endpoint. The update is
// acknowledged immediately; job processing continues in the background
// so Telegram's retry timer never sees transcription latency.
func (h *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.secretToken != "" {
		got := r.Header.Get(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secretToken)) != 1 {
			h.logger.Warn("Webhook request with invalid secret token",
				slog.String("remote_addr", r.RemoteAddr),
			)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil || len(body) == 0 {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	u, err := update.Parse(body)
	if err != nil {
		h.metrics.RecordUpdateParseError()
		h.logger.Warn("Failed to parse webhook payload", slog.String("error", err.Error()))
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	h.metrics.RecordUpdateReceived()

	if ww, ok := w.(*responseWriter); ok {
		ww.updateKind = u.Kind().String()
		if chatID, resolved := u.ChatID(); resolved {
			ww.chatID = chatID
		}
	}

	if !h.dedup.ShouldProcess(u.UpdateID) {
		h.metrics.RecordUpdateDuplicate()
		h.logger.Info("Dropping duplicate update", slog.Int64("update_id", u.UpdateID))
		w.WriteHeader(http.StatusOK)
		return
	}

	// Acknowledge before processing; the job runs detached from the
	// request context
	w.WriteHeader(http.StatusOK)

	go h.handler.HandleUpdate(context.Background(), u)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name": "rus-asr-bot",
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

	dedupStats := h.dedup.GetStats()
	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"updates": map[string]interface{}{
			"last_update_id": dedupStats.LastUpdateID,
			"accepted":       dedupStats.Accepted,
			"duplicates":     dedupStats.Duplicates,
		},
		"jobs": map[string]interface{}{
			"in_flight": h.jobs.InFlight(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// Package api provides the HTTP surface for Prism: the webhook ingestion
// endpoint, the projector trigger endpoint, and inspection routes.
//
// The handler is a plain http.Handler; mount it under whatever router and
// auth stack the surrounding application uses.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	prism "github.com/nexlead/prism"
	"github.com/nexlead/prism/ratelimit"
)

// Config holds the transport-level credentials and labels for the API.
type Config struct {
	// WebhookSecret is the shared HMAC secret for the ingestion endpoint.
	WebhookSecret string

	// ProjectorToken is the shared secret for the trigger endpoint. Not a
	// user-facing credential; distinct from the ingestion signature
	// scheme.
	ProjectorToken string

	// Source labels ingested events with their provider.
	Source string
}

// Handler is the root HTTP handler for the Prism API.
type Handler struct {
	prism   *prism.Prism
	limiter *ratelimit.Limiter
	config  Config
	logger  *slog.Logger
	mux     *http.ServeMux
}

// NewHandler creates the API handler.
func NewHandler(p *prism.Prism, cfg Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		prism:   p,
		limiter: ratelimit.New(),
		config:  cfg,
		logger:  logger,
		mux:     http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	// Ingestion and projection
	h.mux.HandleFunc("POST /webhooks/identity", h.ingestWebhook)
	h.mux.HandleFunc("POST /projector/run", h.runProjector)

	// Inbox inspection
	h.mux.HandleFunc("GET /inbox", h.listInbox)
	h.mux.HandleFunc("GET /inbox/stats", h.inboxStats)
	h.mux.HandleFunc("GET /inbox/{id}", h.getInboxEvent)
	h.mux.HandleFunc("POST /inbox/{id}/replay", h.replayInboxEvent)
	h.mux.HandleFunc("GET /dead-letters", h.listDeadLetters)

	// Projection
	h.mux.HandleFunc("GET /users/{id}", h.getUser)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.withMiddleware(h.mux).ServeHTTP(w, r)
}

func (h *Handler) withMiddleware(next http.Handler) http.Handler {
	return h.panicRecovery(h.logging(next))
}

func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.logger.Info("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *Handler) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryInt returns a query parameter as int or a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

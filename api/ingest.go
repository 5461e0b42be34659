package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	prism "github.com/nexlead/prism"
	"github.com/nexlead/prism/signature"
)

// Webhook headers carried by the identity provider.
const (
	HeaderWebhookID        = "X-Webhook-Id"
	HeaderWebhookTimestamp = "X-Webhook-Timestamp"
	HeaderWebhookSignature = "X-Webhook-Signature"
)

// ingestWebhook handles POST /webhooks/identity.
//
// The endpoint is the durability boundary: once it returns 200 the delivery
// is recorded in the inbox and the provider must not retry. Everything past
// the inbox write (projection, alerting) happens asynchronously.
func (h *Handler) ingestWebhook(w http.ResponseWriter, r *http.Request) {
	cfg := h.prism.Config()

	source := h.config.Source
	if source == "" {
		source = "identity"
	}

	if cfg.IngestRateLimit > 0 && !h.limiter.Allow(source, cfg.IngestRateLimit) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	deliveryID := r.Header.Get(HeaderWebhookID)
	timestamp := r.Header.Get(HeaderWebhookTimestamp)
	sig := r.Header.Get(HeaderWebhookSignature)
	if deliveryID == "" || timestamp == "" || sig == "" {
		writeError(w, http.StatusBadRequest, "missing webhook headers")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	// An unset secret means every signature would verify under the empty
	// key. Refuse outright, like the projector token guard.
	if h.config.WebhookSecret == "" {
		writeError(w, http.StatusUnauthorized, "signature verification failed")
		return
	}

	if err := signature.VerifyRequest(body, h.config.WebhookSecret, timestamp, sig, cfg.SignatureTolerance, time.Now()); err != nil {
		switch {
		case errors.Is(err, signature.ErrBadTimestamp):
			writeError(w, http.StatusBadRequest, "invalid timestamp header")
		case errors.Is(err, signature.ErrStaleTimestamp):
			writeError(w, http.StatusUnauthorized, "timestamp outside tolerance")
		default:
			writeError(w, http.StatusUnauthorized, "signature verification failed")
		}
		return
	}

	result, err := h.prism.Ingest(r.Context(), prism.IngestInput{
		DeliveryID: deliveryID,
		Body:       body,
		Source:     source,
	})
	if err != nil {
		if errors.Is(err, prism.ErrMissingEventID) {
			writeError(w, http.StatusBadRequest, "payload carries no event id")
			return
		}
		if errors.Is(err, prism.ErrPayloadTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		if errors.Is(err, prism.ErrMalformedPayload) {
			writeError(w, http.StatusBadRequest, "payload is not a JSON object")
			return
		}
		if errors.Is(err, prism.ErrSchemaViolation) {
			writeError(w, http.StatusBadRequest, "payload fails the type schema")
			return
		}
		h.logger.Error("webhook ingest failed", "delivery_id", deliveryID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record event")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

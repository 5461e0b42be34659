package api

import (
	"errors"
	"net/http"
	"time"

	prism "github.com/nexlead/prism"
	"github.com/nexlead/prism/inbox"
)

// listInbox handles GET /inbox with state/type/time-window filters.
func (h *Handler) listInbox(w http.ResponseWriter, r *http.Request) {
	opts := inbox.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
		State:  inbox.State(r.URL.Query().Get("state")),
		Type:   r.URL.Query().Get("type"),
	}

	var badWindow bool
	opts.From, badWindow = queryTime(r, "from")
	if badWindow {
		writeError(w, http.StatusBadRequest, "invalid from timestamp")
		return
	}
	opts.To, badWindow = queryTime(r, "to")
	if badWindow {
		writeError(w, http.StatusBadRequest, "invalid to timestamp")
		return
	}

	h.writeInboxList(w, r, opts)
}

// listDeadLetters handles GET /dead-letters. A fixed-state view of the
// inbox for the replay workflow.
func (h *Handler) listDeadLetters(w http.ResponseWriter, r *http.Request) {
	h.writeInboxList(w, r, inbox.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
		State:  inbox.StateDeadLettered,
		Type:   r.URL.Query().Get("type"),
	})
}

func (h *Handler) writeInboxList(w http.ResponseWriter, r *http.Request, opts inbox.ListOpts) {
	events, err := h.prism.Store().ListEvents(r.Context(), opts)
	if err != nil {
		h.logger.Error("inbox list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// inboxStats handles GET /inbox/stats.
func (h *Handler) inboxStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.prism.Store().CountEvents(r.Context())
	if err != nil {
		h.logger.Error("inbox stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to count events")
		return
	}

	writeJSON(w, http.StatusOK, counts)
}

// getInboxEvent handles GET /inbox/{id}. The id is the provider's event
// id, not the internal record id.
func (h *Handler) getInboxEvent(w http.ResponseWriter, r *http.Request) {
	evt, err := h.prism.Store().GetEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, prism.ErrEventNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		h.logger.Error("inbox get failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}

	writeJSON(w, http.StatusOK, evt)
}

// replayInboxEvent handles POST /inbox/{id}/replay: re-arm a dead-lettered
// event so the next cycle picks it up.
func (h *Handler) replayInboxEvent(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")

	if err := h.prism.Store().Replay(r.Context(), eventID); err != nil {
		switch {
		case errors.Is(err, prism.ErrEventNotFound):
			writeError(w, http.StatusNotFound, "event not found")
		case errors.Is(err, prism.ErrNotDeadLettered):
			writeError(w, http.StatusConflict, "event is not dead-lettered")
		default:
			h.logger.Error("replay failed", "event_id", eventID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to replay event")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"event_id": eventID,
		"status":   "replayed",
	})
}

// getUser handles GET /users/{id}, keyed by the provider's external user
// id.
func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.prism.Store().GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, prism.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("user get failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// queryTime parses an optional RFC 3339 query parameter. The second return
// reports a present-but-invalid value.
func queryTime(r *http.Request, key string) (*time.Time, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, true
	}
	return &t, false
}

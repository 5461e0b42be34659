package api

import (
	"crypto/subtle"
	"net/http"
)

// HeaderProjectorToken authenticates the synchronous trigger endpoint.
const HeaderProjectorToken = "X-Projector-Token"

// runProjector handles POST /projector/run: one synchronous projection
// cycle, for operators and schedulers that want an immediate drain rather
// than waiting on the backstop ticker.
func (h *Handler) runProjector(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(HeaderProjectorToken)
	if h.config.ProjectorToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.config.ProjectorToken)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid projector token")
		return
	}

	stats, err := h.prism.RunCycle(r.Context())
	if err != nil {
		h.logger.Error("projection cycle failed", "error", err)
		writeError(w, http.StatusInternalServerError, "projection cycle failed")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/arbmon/internal/domain"
)

// CycleHandler serves monitor cycle telemetry and the manual trigger.
type CycleHandler struct {
	cycles    domain.CycleLogStore
	logger    *slog.Logger
	triggerCh chan<- struct{} // when non-nil, sending requests one cycle
}

// NewCycleHandler creates a CycleHandler.
func NewCycleHandler(cycles domain.CycleLogStore, logger *slog.Logger) *CycleHandler {
	return &CycleHandler{cycles: cycles, logger: logger}
}

// WithTriggerChannel sets the channel to send on when a manual cycle is
// requested. The monitor loop must receive from this channel.
func (h *CycleHandler) WithTriggerChannel(ch chan<- struct{}) *CycleHandler {
	h.triggerCh = ch
	return h
}

// ListRecent returns the latest cycle logs, newest first.
// GET /api/cycles?limit=50
func (h *CycleHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	logs, err := h.cycles.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list cycles failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list cycles")
		return
	}
	if logs == nil {
		logs = []domain.CycleLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cycles": logs})
}

// Trigger enqueues one detection cycle. A non-blocking send is performed so
// repeated requests while a trigger is pending are coalesced.
// POST /api/cycles/trigger
func (h *CycleHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "handler: cycle trigger requested")
	if h.triggerCh != nil {
		select {
		case h.triggerCh <- struct{}{}:
		default:
			// already triggered and not yet consumed
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"message":      "detection cycle enqueued",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}

package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbmon/internal/domain"
)

// SimilarityHandler serves similarity scoring results, including the
// near-miss pairs retained below the match threshold.
type SimilarityHandler struct {
	sims   domain.SimilarityStore
	logger *slog.Logger
}

// NewSimilarityHandler creates a SimilarityHandler.
func NewSimilarityHandler(sims domain.SimilarityStore, logger *slog.Logger) *SimilarityHandler {
	return &SimilarityHandler{sims: sims, logger: logger}
}

// listSimilarityResponse wraps the similarity record list response.
type listSimilarityResponse struct {
	Records []domain.SimilarityRecord `json:"records"`
}

// ListMatches returns recent records that cleared the match threshold.
// GET /api/similarity/matches?limit=50
func (h *SimilarityHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	records, err := h.sims.ListMatches(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list matches failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list matches")
		return
	}
	if records == nil {
		records = []domain.SimilarityRecord{}
	}
	writeJSON(w, http.StatusOK, listSimilarityResponse{Records: records})
}

// ListConsidered returns recent near-miss records, useful for tuning the
// threshold and spotting pairs worth confirming manually.
// GET /api/similarity/considered?limit=50
func (h *SimilarityHandler) ListConsidered(w http.ResponseWriter, r *http.Request) {
	records, err := h.sims.ListConsidered(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list considered failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list considered pairs")
		return
	}
	if records == nil {
		records = []domain.SimilarityRecord{}
	}
	writeJSON(w, http.StatusOK, listSimilarityResponse{Records: records})
}

// ListByPair returns the scoring history for one pair key.
// GET /api/similarity/pair?key=polymarket:x|kalshi:y
func (h *SimilarityHandler) ListByPair(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing pair key")
		return
	}

	records, err := h.sims.ListByPair(r.Context(), key, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list similarity by pair failed",
			slog.String("pair_key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list similarity records")
		return
	}
	if records == nil {
		records = []domain.SimilarityRecord{}
	}
	writeJSON(w, http.StatusOK, listSimilarityResponse{Records: records})
}

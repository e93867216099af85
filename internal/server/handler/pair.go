package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/arbmon/internal/domain"
	"github.com/alanyoungcy/arbmon/internal/matcher"
)

// PairHandler serves the operator pair-management endpoints: confirming a
// pair manually, excluding a false positive, and listing the current pairs.
type PairHandler struct {
	pairs    domain.PairStore
	registry *matcher.PairRegistry
	audit    domain.AuditStore // optional
	logger   *slog.Logger
}

// NewPairHandler creates a PairHandler.
func NewPairHandler(pairs domain.PairStore, registry *matcher.PairRegistry, logger *slog.Logger) *PairHandler {
	return &PairHandler{pairs: pairs, registry: registry, logger: logger}
}

// WithAuditStore enables audit logging of pair management actions.
func (h *PairHandler) WithAuditStore(audit domain.AuditStore) *PairHandler {
	h.audit = audit
	return h
}

// listPairsResponse wraps the pair list response.
type listPairsResponse struct {
	Pairs []domain.MarketPair `json:"pairs"`
}

// pairRequest is the body for creating or excluding a pair.
type pairRequest struct {
	PolyID   string `json:"poly_id"`
	KalshiID string `json:"kalshi_id"`
}

func (req *pairRequest) validate() error {
	req.PolyID = strings.TrimSpace(req.PolyID)
	req.KalshiID = strings.TrimSpace(req.KalshiID)
	if req.PolyID == "" || req.KalshiID == "" {
		return errors.New("poly_id and kalshi_id are required")
	}
	return nil
}

func (req *pairRequest) pairKey() string {
	return domain.PairKey(
		domain.MarketListing{Platform: domain.PlatformPolymarket, ID: req.PolyID},
		domain.MarketListing{Platform: domain.PlatformKalshi, ID: req.KalshiID},
	)
}

// List returns all persisted pairs, highest confidence first.
// GET /api/pairs?limit=50
func (h *PairHandler) List(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.pairs.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list pairs failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list pairs")
		return
	}
	if pairs == nil {
		pairs = []domain.MarketPair{}
	}
	writeJSON(w, http.StatusOK, listPairsResponse{Pairs: pairs})
}

// Create confirms a pair manually. The pair is persisted with full
// confidence and registered so the next cycle scores it as a manual match.
// POST /api/pairs
func (h *PairHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	pair := domain.MarketPair{
		ID:         uuid.NewString(),
		PairKey:    req.pairKey(),
		PolyID:     req.PolyID,
		KalshiID:   req.KalshiID,
		Source:     domain.MatchTypeManual,
		Confidence: 1.0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.pairs.Upsert(r.Context(), pair); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create pair failed",
			slog.String("pair_key", pair.PairKey),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create pair")
		return
	}
	h.registry.AddManual(req.PolyID, req.KalshiID)
	h.auditLog(r, "pair.confirmed", pair.PairKey)

	writeJSON(w, http.StatusCreated, pair)
}

// Delete removes a pair. If it was a manual pair, the registry entry is
// removed too so the engine stops forcing the match.
// DELETE /api/pairs?key=polymarket:x|kalshi:y
func (h *PairHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing pair key")
		return
	}

	pair, err := h.pairs.GetByKey(r.Context(), key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "pair not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get pair failed",
			slog.String("pair_key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete pair")
		return
	}

	if err := h.pairs.Delete(r.Context(), key); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: delete pair failed",
			slog.String("pair_key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete pair")
		return
	}
	if pair.Source == domain.MatchTypeManual {
		h.registry.RemoveManual(pair.PolyID, pair.KalshiID)
	}
	h.auditLog(r, "pair.deleted", key)

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "pair_key": key})
}

// Exclude marks a pair as a false positive. The engine will never match the
// two listings again, and any persisted pair is removed.
// POST /api/pairs/exclude
func (h *PairHandler) Exclude(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.registry.Exclude(req.PolyID, req.KalshiID)

	key := req.pairKey()
	if err := h.pairs.Delete(r.Context(), key); err != nil && !errors.Is(err, domain.ErrNotFound) {
		h.logger.ErrorContext(r.Context(), "handler: exclude pair cleanup failed",
			slog.String("pair_key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to exclude pair")
		return
	}
	h.auditLog(r, "pair.excluded", key)

	writeJSON(w, http.StatusOK, map[string]string{"status": "excluded", "pair_key": key})
}

// auditLog records a pair management action when an audit store is attached.
func (h *PairHandler) auditLog(r *http.Request, event, pairKey string) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Log(r.Context(), event, map[string]any{"pair_key": pairKey}); err != nil {
		h.logger.WarnContext(r.Context(), "handler: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbmon/internal/domain"
)

// ListingHandler serves the normalized market listings fetched from both
// platforms.
type ListingHandler struct {
	listings domain.ListingStore
	logger   *slog.Logger
}

// NewListingHandler creates a ListingHandler.
func NewListingHandler(listings domain.ListingStore, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{listings: listings, logger: logger}
}

// List returns active listings for one platform, highest volume first.
// GET /api/listings/{platform}?limit=50
func (h *ListingHandler) List(w http.ResponseWriter, r *http.Request) {
	platform, ok := parsePlatform(pathParam(r, "platform"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown platform")
		return
	}

	listings, err := h.listings.ListActive(r.Context(), platform, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list listings failed",
			slog.String("platform", string(platform)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list listings")
		return
	}
	if listings == nil {
		listings = []domain.MarketListing{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": listings})
}

// Get returns one listing by platform and ID.
// GET /api/listings/{platform}/{id}
func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	platform, ok := parsePlatform(pathParam(r, "platform"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown platform")
		return
	}
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing listing id")
		return
	}

	listing, err := h.listings.GetByID(r.Context(), platform, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "listing not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get listing failed",
			slog.String("platform", string(platform)),
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get listing")
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// parsePlatform maps a path segment to a domain.Platform.
func parsePlatform(s string) (domain.Platform, bool) {
	switch s {
	case string(domain.PlatformPolymarket):
		return domain.PlatformPolymarket, true
	case string(domain.PlatformKalshi):
		return domain.PlatformKalshi, true
	default:
		return "", false
	}
}

// Package matcher scores cross-platform listing pairs for equivalence using
// a weighted combination of lexical, semantic and keyword scorers.
package matcher

import (
	"context"

	"github.com/alanyoungcy/arbmon/internal/domain"
)

// Scorer produces a similarity score in [0, 1] for a pair of listings.
type Scorer interface {
	Name() string
	// Prime prepares per-cycle state (e.g. batch embeddings) for the given
	// listings. Score may only be called for listings passed to Prime.
	Prime(ctx context.Context, listings []domain.MarketListing) error
	// Score returns the similarity of two listings in [0, 1].
	Score(a, b domain.MarketListing) (float64, error)
}

// listingText returns the text a scorer compares. Titles carry the matching
// signal; descriptions differ too much in style across venues.
func listingText(l domain.MarketListing) string {
	return l.Title
}

// clamp01 bounds v to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

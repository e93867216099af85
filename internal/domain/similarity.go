package domain

import (
	"fmt"
	"time"
)

// MatchType names the dominant signal that linked a pair of listings:
// the operator, or whichever scorer contributed the highest raw score.
type MatchType string

const (
	MatchTypeManual   MatchType = "manual"
	MatchTypeFuzzy    MatchType = "fuzzy"
	MatchTypeSemantic MatchType = "semantic"
	MatchTypeKeyword  MatchType = "keyword"
)

// Exclusion reasons attached to records for pairs that were skipped rather
// than scored or evaluated.
const (
	ReasonManuallyExcluded = "manually excluded"
	ReasonIncompleteData   = "incomplete data"
)

// PairKey returns the canonical order-independent key for a listing pair.
// The lexicographically smaller "platform:id" half always comes first so
// (A,B) and (B,A) produce the same key.
func PairKey(a, b MarketListing) string {
	ka := fmt.Sprintf("%s:%s", a.Platform, a.ID)
	kb := fmt.Sprintf("%s:%s", b.Platform, b.ID)
	if ka > kb {
		ka, kb = kb, ka
	}
	return ka + "|" + kb
}

// SimilarityScore holds the per-scorer components and the weighted overall
// score for one listing pair. All scores are in [0, 1].
type SimilarityScore struct {
	Lexical  float64
	Semantic float64
	Keyword  float64
	Overall  float64
}

// SimilarityRecord is the full result of scoring one cross-platform pair.
// Non-matches are records too: a pair below threshold, manually excluded, or
// skipped for incomplete data still yields a record so callers can inspect
// why it was not matched.
type SimilarityRecord struct {
	PairKey        string
	ListingA       MarketListing
	ListingB       MarketListing
	Score          SimilarityScore
	Threshold      float64
	IsMatch        bool
	MatchType      MatchType
	SharedKeywords []string // significant title tokens common to both sides
	Degraded       bool     // semantic scorer unavailable, weights renormalized
	Reasons        []string // human-readable notes, e.g. "strong keyword overlap"
	ComputedAt     time.Time
}

// MarketPair is a persisted link between two listings declared equivalent,
// either by the engine or by an operator.
type MarketPair struct {
	ID         string
	PairKey    string
	PolyID     string
	KalshiID   string
	Source     MatchType
	Confidence float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

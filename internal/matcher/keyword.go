package matcher

import (
	"context"
	"sort"
	"strings"

	"github.com/alanyoungcy/arbmon/internal/domain"
)

// stopWords are filtered out before keyword comparison.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"of": true, "in": true, "to": true, "for": true, "is": true,
	"on": true, "at": true, "by": true, "be": true, "it": true,
	"will": true, "vs": true, "with": true, "this": true, "that": true,
}

// Keyword scores pairs by Jaccard overlap of their significant title tokens.
type Keyword struct {
	minTokenLength int
}

// NewKeyword creates the keyword scorer. Tokens shorter than minTokenLength
// are ignored.
func NewKeyword(minTokenLength int) *Keyword {
	if minTokenLength < 1 {
		minTokenLength = 3
	}
	return &Keyword{minTokenLength: minTokenLength}
}

var _ Scorer = (*Keyword)(nil)

// Name returns the scorer identifier.
func (k *Keyword) Name() string { return "keyword" }

// Prime is a no-op; the keyword scorer is stateless.
func (k *Keyword) Prime(ctx context.Context, listings []domain.MarketListing) error {
	return nil
}

// Score returns |A∩B| / |A∪B| over the keyword sets of both titles. A pair
// where either side has no keywords scores 0.
func (k *Keyword) Score(a, b domain.MarketListing) (float64, error) {
	ta := k.tokenize(listingText(a))
	tb := k.tokenize(listingText(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0, nil
	}
	inter := 0
	for t := range ta {
		if tb[t] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union), nil
}

// Shared returns the significant tokens both titles have in common, sorted
// for stable output.
func (k *Keyword) Shared(a, b domain.MarketListing) []string {
	ta := k.tokenize(listingText(a))
	tb := k.tokenize(listingText(b))
	var shared []string
	for t := range ta {
		if tb[t] {
			shared = append(shared, t)
		}
	}
	sort.Strings(shared)
	return shared
}

// tokenize splits a title into its significant lowercase tokens, dropping
// punctuation, stop words and short tokens.
func (k *Keyword) tokenize(title string) map[string]bool {
	tokens := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(title)) {
		word = strings.Trim(word, ".,!?;:\"'()-")
		if len(word) < k.minTokenLength || stopWords[word] {
			continue
		}
		tokens[word] = true
	}
	return tokens
}

package matcher

import (
	"context"
	"sort"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/alanyoungcy/arbmon/internal/domain"
)

// Lexical scores pairs with a token-sort edit-distance ratio: titles are
// lowercased, stripped of punctuation, their tokens sorted, and the
// normalized strings compared with Levenshtein similarity. Token sorting
// makes "Trump wins 2024" and "2024: wins Trump?" score 1.0.
type Lexical struct {
	metric *metrics.Levenshtein
}

// NewLexical creates the lexical scorer.
func NewLexical() *Lexical {
	return &Lexical{metric: metrics.NewLevenshtein()}
}

var _ Scorer = (*Lexical)(nil)

// Name returns the scorer identifier.
func (l *Lexical) Name() string { return "lexical" }

// Prime is a no-op; the lexical scorer is stateless.
func (l *Lexical) Prime(ctx context.Context, listings []domain.MarketListing) error {
	return nil
}

// Score returns the token-sort similarity of the two titles. A pair where
// either title normalizes to nothing scores 0.
func (l *Lexical) Score(a, b domain.MarketListing) (float64, error) {
	na := tokenSortNormalize(listingText(a))
	nb := tokenSortNormalize(listingText(b))
	if na == "" || nb == "" {
		return 0, nil
	}
	return clamp01(strutil.Similarity(na, nb, l.metric)), nil
}

// tokenSortNormalize lowercases, strips punctuation, sorts the tokens and
// rejoins them with single spaces.
func tokenSortNormalize(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()-")
		if f == "" {
			continue
		}
		tokens = append(tokens, f)
	}
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

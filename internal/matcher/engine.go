package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/arbmon/internal/config"
	"github.com/alanyoungcy/arbmon/internal/domain"
	"github.com/alanyoungcy/arbmon/internal/embed"
)

// weightedScorer pairs a scorer with its configured weight.
type weightedScorer struct {
	scorer Scorer
	weight float64
}

// Engine combines the lexical, semantic and keyword scorers into weighted
// overall scores and applies operator overrides. When the semantic scorer
// cannot be primed the remaining weights are renormalized to sum to 1 and
// every record from that run carries the Degraded flag.
type Engine struct {
	cfg      config.MatchingConfig
	scorers  []weightedScorer
	keyword  *Keyword
	registry *PairRegistry
	logger   *slog.Logger
}

// NewEngine builds the engine from config. A nil embedder disables semantic
// scoring entirely; the engine then always runs degraded.
func NewEngine(cfg config.MatchingConfig, embedder embed.Embedder, logger *slog.Logger) *Engine {
	kw := NewKeyword(cfg.MinTokenLength)
	scorers := []weightedScorer{
		{scorer: NewLexical(), weight: cfg.LexicalWeight},
		{scorer: NewSemantic(embedder), weight: cfg.SemanticWeight},
		{scorer: kw, weight: cfg.KeywordWeight},
	}
	return &Engine{
		cfg:      cfg,
		scorers:  scorers,
		keyword:  kw,
		registry: NewPairRegistry(cfg.ManualPairs, cfg.ExcludedPairs),
		logger:   logger.With(slog.String("component", "matcher")),
	}
}

// Registry exposes the pair override registry for API handlers.
func (e *Engine) Registry() *PairRegistry { return e.registry }

// ConsideredFloor returns the configured storage floor for non-match records.
func (e *Engine) ConsideredFloor() float64 { return e.cfg.ConsideredFloor }

// Score evaluates every polymarket x kalshi listing combination and returns
// one record per combination. Non-matches are retained alongside matches so
// callers can inspect why a pair was not linked; trimming low-score records
// before storage is the caller's concern. Manual pairs always come back as
// matches with score 1.0. Record order follows the input order, so identical
// inputs produce identical output.
func (e *Engine) Score(ctx context.Context, polys, kalshis []domain.MarketListing) ([]domain.SimilarityRecord, error) {
	if len(polys) == 0 || len(kalshis) == 0 {
		return nil, nil
	}

	all := make([]domain.MarketListing, 0, len(polys)+len(kalshis))
	all = append(all, polys...)
	all = append(all, kalshis...)

	active, degraded, err := e.primeScorers(ctx, all)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	records := make([]domain.SimilarityRecord, 0, len(polys)*len(kalshis))
	for _, poly := range polys {
		for _, kalshi := range kalshis {
			records = append(records, e.scorePair(poly, kalshi, active, degraded, now))
		}
	}

	e.logger.Info("similarity scoring complete",
		slog.Int("poly_listings", len(polys)),
		slog.Int("kalshi_listings", len(kalshis)),
		slog.Int("records", len(records)),
		slog.Bool("degraded", degraded),
	)
	return records, nil
}

// primeScorers primes every scorer and returns the usable subset with
// weights renormalized to sum to 1. Only the semantic scorer is allowed to
// fail; that puts the run into degraded mode.
func (e *Engine) primeScorers(ctx context.Context, listings []domain.MarketListing) ([]weightedScorer, bool, error) {
	active := make([]weightedScorer, 0, len(e.scorers))
	degraded := false
	for _, ws := range e.scorers {
		if ws.weight == 0 {
			continue
		}
		if err := ws.scorer.Prime(ctx, listings); err != nil {
			if ws.scorer.Name() != "semantic" {
				return nil, false, fmt.Errorf("prime %s scorer: %w", ws.scorer.Name(), err)
			}
			degraded = true
			e.logger.Warn("semantic scorer unavailable, renormalizing weights",
				slog.String("error", err.Error()))
			continue
		}
		active = append(active, ws)
	}

	var total float64
	for _, ws := range active {
		total += ws.weight
	}
	if total <= 0 {
		return nil, degraded, fmt.Errorf("no usable scorers (total weight %g)", total)
	}
	normalized := make([]weightedScorer, len(active))
	for i, ws := range active {
		normalized[i] = weightedScorer{scorer: ws.scorer, weight: ws.weight / total}
	}
	return normalized, degraded, nil
}

// scorePair produces the record for one combination. The order of checks
// matters: incomplete listings and excluded pairs are reported without
// matching, and a manual pair short-circuits before any scorer runs.
func (e *Engine) scorePair(poly, kalshi domain.MarketListing, active []weightedScorer, degraded bool, now time.Time) domain.SimilarityRecord {
	rec := domain.SimilarityRecord{
		PairKey:    domain.PairKey(poly, kalshi),
		ListingA:   poly,
		ListingB:   kalshi,
		Threshold:  e.cfg.MatchThreshold,
		Degraded:   degraded,
		ComputedAt: now,
	}

	if incomplete(poly) || incomplete(kalshi) {
		rec.Reasons = append(rec.Reasons, domain.ReasonIncompleteData)
		return rec
	}

	excluded := e.registry.IsExcluded(poly.ID, kalshi.ID)
	if !excluded && e.registry.IsManual(poly.ID, kalshi.ID) {
		rec.Score.Overall = 1.0
		rec.IsMatch = true
		rec.MatchType = domain.MatchTypeManual
		rec.SharedKeywords = e.keyword.Shared(poly, kalshi)
		rec.Reasons = append(rec.Reasons, "operator confirmed pair")
		return rec
	}

	var overall float64
	for _, ws := range active {
		score, err := ws.scorer.Score(poly, kalshi)
		if err != nil {
			// A scorer that primed but cannot score this pair contributes
			// nothing; its weight share is lost for this pair only.
			e.logger.Debug("scorer failed for pair",
				slog.String("scorer", ws.scorer.Name()),
				slog.String("pair_key", rec.PairKey),
				slog.String("error", err.Error()))
			continue
		}
		switch ws.scorer.Name() {
		case "lexical":
			rec.Score.Lexical = score
		case "semantic":
			rec.Score.Semantic = score
		case "keyword":
			rec.Score.Keyword = score
		}
		overall += ws.weight * score
		if score >= e.cfg.ReasonThreshold {
			rec.Reasons = append(rec.Reasons, reasonFor(ws.scorer.Name()))
		}
	}
	rec.Score.Overall = clamp01(overall)
	rec.MatchType = dominantType(rec.Score)
	rec.SharedKeywords = e.keyword.Shared(poly, kalshi)
	if degraded {
		rec.Reasons = append(rec.Reasons, "semantic scorer unavailable")
	}

	if excluded {
		rec.Reasons = append(rec.Reasons, domain.ReasonManuallyExcluded)
		return rec
	}

	rec.IsMatch = rec.Score.Overall >= e.cfg.MatchThreshold
	return rec
}

// incomplete reports whether a listing lacks the identity or title needed to
// score it.
func incomplete(l domain.MarketListing) bool {
	return l.ID == "" || strings.TrimSpace(l.Title) == ""
}

// dominantType names the sub-scorer with the highest raw score. Ties resolve
// fuzzy over semantic over keyword.
func dominantType(s domain.SimilarityScore) domain.MatchType {
	switch {
	case s.Lexical >= s.Semantic && s.Lexical >= s.Keyword:
		return domain.MatchTypeFuzzy
	case s.Semantic >= s.Keyword:
		return domain.MatchTypeSemantic
	default:
		return domain.MatchTypeKeyword
	}
}

// reasonFor maps a scorer name to its reason string.
func reasonFor(name string) string {
	switch name {
	case "lexical":
		return "strong lexical similarity"
	case "semantic":
		return "strong semantic similarity"
	case "keyword":
		return "strong keyword overlap"
	}
	return "strong " + name + " similarity"
}

// Considered trims a full scoring run down to what is worth persisting:
// matches, near-misses at or above the floor, and pairs carrying an
// exclusion reason. The engine itself never drops records; this is the
// storage-side filter.
func Considered(records []domain.SimilarityRecord, floor float64) []domain.SimilarityRecord {
	out := make([]domain.SimilarityRecord, 0, len(records))
	for _, r := range records {
		if r.IsMatch || r.Score.Overall >= floor || excludedRecord(r) {
			out = append(out, r)
		}
	}
	return out
}

func excludedRecord(r domain.SimilarityRecord) bool {
	for _, reason := range r.Reasons {
		if reason == domain.ReasonManuallyExcluded || reason == domain.ReasonIncompleteData {
			return true
		}
	}
	return false
}

// Matches reduces scored records to at most one match per listing on either
// side: records are taken best-first and a listing already claimed by a
// better match cannot appear again.
func Matches(records []domain.SimilarityRecord) []domain.SimilarityRecord {
	matched := make([]domain.SimilarityRecord, 0, len(records))
	for _, r := range records {
		if r.IsMatch {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Score.Overall > matched[j].Score.Overall
	})

	usedA := make(map[string]bool)
	usedB := make(map[string]bool)
	out := make([]domain.SimilarityRecord, 0, len(matched))
	for _, r := range matched {
		if usedA[r.ListingA.ID] || usedB[r.ListingB.ID] {
			continue
		}
		usedA[r.ListingA.ID] = true
		usedB[r.ListingB.ID] = true
		out = append(out, r)
	}
	return out
}

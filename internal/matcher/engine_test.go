package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbmon/internal/config"
	"github.com/alanyoungcy/arbmon/internal/domain"
)

func testMatchingConfig() config.MatchingConfig {
	return config.MatchingConfig{
		LexicalWeight:   0.4,
		SemanticWeight:  0.4,
		KeywordWeight:   0.2,
		MatchThreshold:  0.8,
		ConsideredFloor: 0.5,
		ReasonThreshold: 0.7,
		MinTokenLength:  3,
	}
}

func polyListing(id, title string) domain.MarketListing {
	return domain.MarketListing{ID: id, Platform: domain.PlatformPolymarket, Title: title, Status: domain.ListingStatusActive}
}

func kalshiListing(id, title string) domain.MarketListing {
	return domain.MarketListing{ID: id, Platform: domain.PlatformKalshi, Title: title, Status: domain.ListingStatusActive}
}

// vectorEmbedder returns a fixed vector per text.
type vectorEmbedder struct {
	vectors map[string][]float32
}

func (e *vectorEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := e.vectors[t]
		if !ok {
			return nil, errors.New("unknown text")
		}
		out[i] = v
	}
	return out, nil
}

// failingEmbedder always errors, simulating an unreachable service.
type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, domain.ErrNoEmbedder
}

func TestLexicalTokenSortIgnoresWordOrder(t *testing.T) {
	lex := NewLexical()
	a := polyListing("a", "Trump wins 2024 election")
	b := kalshiListing("b", "2024 election: wins Trump?")

	score, err := lex.Score(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestLexicalEmptyTitleScoresZero(t *testing.T) {
	lex := NewLexical()
	score, err := lex.Score(polyListing("a", ""), kalshiListing("b", "Trump wins"))
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestKeywordJaccardOverlap(t *testing.T) {
	kw := NewKeyword(3)
	a := polyListing("a", "Will Donald Trump win the 2024 presidential election?")
	b := kalshiListing("b", "Trump wins 2024 presidential election")

	// a -> {donald, trump, win, 2024, presidential, election}
	// b -> {trump, wins, 2024, presidential, election}
	// intersection 4, union 7
	score, err := kw.Score(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 4.0/7.0, score, 1e-9)
}

func TestKeywordStopWordsAndShortTokensFiltered(t *testing.T) {
	kw := NewKeyword(3)
	score, err := kw.Score(polyListing("a", "The a an of"), kalshiListing("b", "it is on at"))
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestScorersAreSymmetric(t *testing.T) {
	a := polyListing("a", "Will the Fed cut rates in March?")
	b := kalshiListing("b", "Fed rate cut by March 2025")

	for _, s := range []Scorer{NewLexical(), NewKeyword(3)} {
		ab, err := s.Score(a, b)
		require.NoError(t, err)
		ba, err := s.Score(b, a)
		require.NoError(t, err)
		assert.InDelta(t, ab, ba, 1e-9, "scorer %s must be symmetric", s.Name())
	}
}

func TestEngineOverallIsWeightedSum(t *testing.T) {
	a := polyListing("p1", "Will Donald Trump win the 2024 presidential election?")
	b := kalshiListing("k1", "Trump wins 2024 presidential election")

	// Orthogonal vectors: cosine 0 rescales to 0.5.
	emb := &vectorEmbedder{vectors: map[string][]float32{
		a.Title: {1, 0},
		b.Title: {0, 1},
	}}
	cfg := testMatchingConfig()
	cfg.MatchThreshold = 0.4
	cfg.ConsideredFloor = 0.0
	eng := NewEngine(cfg, emb, testLogger())

	records, err := eng.Score(context.Background(), []domain.MarketListing{a}, []domain.MarketListing{b})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	want := 0.4*rec.Score.Lexical + 0.4*rec.Score.Semantic + 0.2*rec.Score.Keyword
	assert.InDelta(t, want, rec.Score.Overall, 1e-9)
	assert.InDelta(t, 0.5, rec.Score.Semantic, 1e-6)
	assert.False(t, rec.Degraded)
}

func TestEngineManualPairAlwaysMatches(t *testing.T) {
	cfg := testMatchingConfig()
	cfg.ManualPairs = []config.ManualPair{{PolyID: "p1", KalshiID: "k1"}}
	eng := NewEngine(cfg, failingEmbedder{}, testLogger())

	a := polyListing("p1", "Completely unrelated title about apples")
	b := kalshiListing("k1", "Something else entirely, oranges maybe")

	records, err := eng.Score(context.Background(), []domain.MarketListing{a}, []domain.MarketListing{b})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.True(t, rec.IsMatch)
	assert.Equal(t, domain.MatchTypeManual, rec.MatchType)
	assert.InDelta(t, 1.0, rec.Score.Overall, 1e-9)
	assert.Contains(t, rec.Reasons, "operator confirmed pair")
	// The registry hit short-circuits before any scorer runs.
	assert.Zero(t, rec.Score.Lexical)
	assert.Zero(t, rec.Score.Keyword)
}

func TestEngineExcludedPairIsReportedNotMatched(t *testing.T) {
	cfg := testMatchingConfig()
	cfg.ExcludedPairs = []config.ManualPair{{PolyID: "p1", KalshiID: "k1"}}
	eng := NewEngine(cfg, failingEmbedder{}, testLogger())

	a := polyListing("p1", "Trump wins 2024 presidential election")
	b := kalshiListing("k1", "Trump wins 2024 presidential election")

	records, err := eng.Score(context.Background(), []domain.MarketListing{a}, []domain.MarketListing{b})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.False(t, rec.IsMatch)
	assert.Contains(t, rec.Reasons, domain.ReasonManuallyExcluded)
	// Identical titles still score; the exclusion only blocks the match.
	assert.Greater(t, rec.Score.Overall, 0.9)
}

func TestEngineIncompleteListingReportedExcluded(t *testing.T) {
	eng := NewEngine(testMatchingConfig(), failingEmbedder{}, testLogger())

	a := polyListing("p1", "")
	b := kalshiListing("k1", "Trump wins 2024 presidential election")

	records, err := eng.Score(context.Background(), []domain.MarketListing{a}, []domain.MarketListing{b})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.False(t, rec.IsMatch)
	assert.Contains(t, rec.Reasons, domain.ReasonIncompleteData)
	assert.Zero(t, rec.Score.Overall)
}

func TestEngineDegradedRenormalizesWeights(t *testing.T) {
	a := polyListing("p1", "Will Donald Trump win the 2024 presidential election?")
	b := kalshiListing("k1", "Trump wins 2024 presidential election")

	cfg := testMatchingConfig()
	cfg.MatchThreshold = 0.4
	cfg.ConsideredFloor = 0.0
	eng := NewEngine(cfg, failingEmbedder{}, testLogger())

	records, err := eng.Score(context.Background(), []domain.MarketListing{a}, []domain.MarketListing{b})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.True(t, rec.Degraded)
	assert.Zero(t, rec.Score.Semantic)
	// Lexical and keyword weights scale from 0.4/0.2 to 2/3 and 1/3.
	want := (2.0/3.0)*rec.Score.Lexical + (1.0/3.0)*rec.Score.Keyword
	assert.InDelta(t, want, rec.Score.Overall, 1e-9)
	assert.Contains(t, rec.Reasons, "semantic scorer unavailable")
}

func TestEngineEmptyInputs(t *testing.T) {
	eng := NewEngine(testMatchingConfig(), failingEmbedder{}, testLogger())

	records, err := eng.Score(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = eng.Score(context.Background(), []domain.MarketListing{polyListing("p1", "x")}, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestEngineRetainsAllNonMatches(t *testing.T) {
	near := kalshiListing("k1", "Trump wins 2024 presidential election")
	far := kalshiListing("k2", "Bitcoin above 100k by December")
	a := polyListing("p1", "Will Donald Trump win the 2024 presidential election?")

	cfg := testMatchingConfig()
	cfg.MatchThreshold = 0.95
	cfg.ConsideredFloor = 0.3
	eng := NewEngine(cfg, failingEmbedder{}, testLogger())

	records, err := eng.Score(context.Background(), []domain.MarketListing{a}, []domain.MarketListing{near, far})
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.False(t, rec.IsMatch)
	}

	// The floor trims what gets persisted, not what the engine returns.
	kept := Considered(records, cfg.ConsideredFloor)
	require.Len(t, kept, 1)
	assert.Equal(t, "k1", kept[0].ListingB.ID)
	assert.GreaterOrEqual(t, kept[0].Score.Overall, 0.3)
}

func TestConsideredKeepsMatchesAndExcludedRecords(t *testing.T) {
	records := []domain.SimilarityRecord{
		{PairKey: "a", IsMatch: true, Score: domain.SimilarityScore{Overall: 0.9}},
		{PairKey: "b", Score: domain.SimilarityScore{Overall: 0.6}},
		{PairKey: "c", Score: domain.SimilarityScore{Overall: 0.1}},
		{PairKey: "d", Reasons: []string{domain.ReasonManuallyExcluded}},
		{PairKey: "e", Reasons: []string{domain.ReasonIncompleteData}},
	}

	kept := Considered(records, 0.5)
	require.Len(t, kept, 4)
	keys := make([]string, len(kept))
	for i, r := range kept {
		keys[i] = r.PairKey
	}
	assert.Equal(t, []string{"a", "b", "d", "e"}, keys)
}

func TestEngineDominantMatchType(t *testing.T) {
	a := polyListing("p1", "Will Donald Trump win the 2024 presidential election?")
	b := kalshiListing("k1", "Trump wins 2024 presidential election")

	cfg := testMatchingConfig()
	cfg.ConsideredFloor = 0.0
	eng := NewEngine(cfg, failingEmbedder{}, testLogger())

	records, err := eng.Score(context.Background(), []domain.MarketListing{a}, []domain.MarketListing{b})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	require.Greater(t, rec.Score.Lexical, rec.Score.Keyword)
	assert.Equal(t, domain.MatchTypeFuzzy, rec.MatchType)
}

func TestDominantTypePicksHighestRawScore(t *testing.T) {
	assert.Equal(t, domain.MatchTypeFuzzy, dominantType(domain.SimilarityScore{Lexical: 0.8, Semantic: 0.7, Keyword: 0.6}))
	assert.Equal(t, domain.MatchTypeSemantic, dominantType(domain.SimilarityScore{Lexical: 0.3, Semantic: 0.9, Keyword: 0.5}))
	assert.Equal(t, domain.MatchTypeKeyword, dominantType(domain.SimilarityScore{Lexical: 0.2, Semantic: 0.1, Keyword: 0.7}))
	// Ties resolve fuzzy over semantic over keyword.
	assert.Equal(t, domain.MatchTypeFuzzy, dominantType(domain.SimilarityScore{Lexical: 0.5, Semantic: 0.5, Keyword: 0.5}))
}

func TestEngineSharedKeywords(t *testing.T) {
	a := polyListing("p1", "Will Donald Trump win the 2024 presidential election?")
	b := kalshiListing("k1", "Trump wins 2024 presidential election")

	cfg := testMatchingConfig()
	cfg.ConsideredFloor = 0.0
	eng := NewEngine(cfg, failingEmbedder{}, testLogger())

	records, err := eng.Score(context.Background(), []domain.MarketListing{a}, []domain.MarketListing{b})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"2024", "election", "presidential", "trump"}, records[0].SharedKeywords)
}

func TestEngineElectionTitlesMatchAtModerateThreshold(t *testing.T) {
	a := polyListing("p1", "Will Donald Trump win the 2024 presidential election?")
	b := kalshiListing("k1", "Trump wins 2024 presidential election")

	cfg := testMatchingConfig()
	cfg.MatchThreshold = 0.4
	eng := NewEngine(cfg, failingEmbedder{}, testLogger())

	records, err := eng.Score(context.Background(), []domain.MarketListing{a}, []domain.MarketListing{b})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.True(t, rec.IsMatch)
	assert.Greater(t, rec.Score.Lexical, 0.4)
	assert.Less(t, rec.Score.Overall, 0.95)
}

func TestEngineIdenticalInputsProduceIdenticalRecords(t *testing.T) {
	a := polyListing("p1", "Will Donald Trump win the 2024 presidential election?")
	b := kalshiListing("k1", "Trump wins 2024 presidential election")
	cfg := testMatchingConfig()
	cfg.ConsideredFloor = 0.0
	eng := NewEngine(cfg, failingEmbedder{}, testLogger())

	first, err := eng.Score(context.Background(), []domain.MarketListing{a}, []domain.MarketListing{b})
	require.NoError(t, err)
	second, err := eng.Score(context.Background(), []domain.MarketListing{a}, []domain.MarketListing{b})
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].PairKey, second[0].PairKey)
	assert.Equal(t, first[0].Score, second[0].Score)
	assert.Equal(t, first[0].IsMatch, second[0].IsMatch)
}

func TestMatchesPicksBestPerListing(t *testing.T) {
	mk := func(aID, bID string, overall float64) domain.SimilarityRecord {
		return domain.SimilarityRecord{
			PairKey:  aID + "|" + bID,
			ListingA: polyListing(aID, aID),
			ListingB: kalshiListing(bID, bID),
			Score:    domain.SimilarityScore{Overall: overall},
			IsMatch:  true,
		}
	}
	records := []domain.SimilarityRecord{
		mk("p1", "k1", 0.85),
		mk("p1", "k2", 0.95),
		mk("p2", "k2", 0.90),
		mk("p2", "k3", 0.82),
	}

	best := Matches(records)
	require.Len(t, best, 2)
	assert.Equal(t, "k2", best[0].ListingB.ID)
	assert.Equal(t, "p1", best[0].ListingA.ID)
	assert.Equal(t, "k3", best[1].ListingB.ID)
	assert.Equal(t, "p2", best[1].ListingA.ID)
}

func TestPairKeyIsOrderIndependent(t *testing.T) {
	a := polyListing("p1", "x")
	b := kalshiListing("k1", "y")
	assert.Equal(t, domain.PairKey(a, b), domain.PairKey(b, a))
}

package detector

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbmon/internal/config"
	"github.com/alanyoungcy/arbmon/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDetectionConfig() config.DetectionConfig {
	cfg := config.Defaults().Detection
	cfg.MinNetProfit = 0
	cfg.MinConfidence = 0.1
	return cfg
}

var detectedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func listingWithQuote(platform domain.Platform, id string, yes, no, volume float64) domain.MarketListing {
	return domain.MarketListing{
		ID:       id,
		Platform: platform,
		Title:    id,
		Status:   domain.ListingStatusActive,
		Quote: domain.Quote{
			YesPrice:  yes,
			NoPrice:   no,
			Volume24h: volume,
			UpdatedAt: detectedAt,
		},
	}
}

func matchRecord(poly, kalshi domain.MarketListing, overall float64) domain.SimilarityRecord {
	return domain.SimilarityRecord{
		PairKey:  domain.PairKey(poly, kalshi),
		ListingA: poly,
		ListingB: kalshi,
		Score:    domain.SimilarityScore{Overall: overall},
		IsMatch:  true,
	}
}

func TestDetectQuoteScenarioClearsFivePercentThreshold(t *testing.T) {
	// Buy yes on polymarket at 0.45, sell yes on kalshi at 0.52.
	poly := listingWithQuote(domain.PlatformPolymarket, "p1", 0.45, 0.55, 50_000)
	kalshi := listingWithQuote(domain.PlatformKalshi, "k1", 0.52, 0.48, 50_000)
	m := matchRecord(poly, kalshi, 0.9)

	d := NewDetector(testDetectionConfig(), testLogger())
	opps, _ := d.Detect(context.Background(), []domain.SimilarityRecord{m}, detectedAt)
	require.NotEmpty(t, opps)

	best := opps[0]
	assert.Equal(t, domain.StrategyBuyPolySellKalshi, best.Strategy)
	assert.Equal(t, domain.OutcomeYes, best.Outcome)
	assert.InDelta(t, 0.07, best.GrossSpread, 1e-9)
	// Fees: 0.45*0.01 + 0.52*0.02 = 0.0149; net = 0.07 - 0.0149 - 0.02.
	assert.InDelta(t, 0.0149, best.FeeCost, 1e-9)
	assert.InDelta(t, 0.0351, best.NetProfit, 1e-9)
	assert.InDelta(t, 0.0351/0.45, best.ProfitPct, 1e-9)
	assert.Greater(t, best.ProfitPct, 0.05)
	assert.Less(t, best.ProfitPct, 0.10)
	assert.InDelta(t, best.BuyPrice*best.PositionSize, best.RequiredCapital, 1e-9)
}

func TestDetectKeepsOnlyBestStrategyPerPair(t *testing.T) {
	// Both yes (net 0.0351) and no (net 0.0349) sides clear the gates; only
	// the higher-net yes side is emitted.
	poly := listingWithQuote(domain.PlatformPolymarket, "p1", 0.45, 0.55, 50_000)
	kalshi := listingWithQuote(domain.PlatformKalshi, "k1", 0.52, 0.48, 50_000)
	m := matchRecord(poly, kalshi, 0.9)

	cfg := testDetectionConfig()
	cfg.MinProfitPct = 0
	d := NewDetector(cfg, testLogger())
	opps, _ := d.Detect(context.Background(), []domain.SimilarityRecord{m}, detectedAt)
	require.Len(t, opps, 1)
	assert.Equal(t, domain.OutcomeYes, opps[0].Outcome)
	assert.InDelta(t, 0.0351, opps[0].NetProfit, 1e-9)
}

func TestDetectNetNeverExceedsGross(t *testing.T) {
	poly := listingWithQuote(domain.PlatformPolymarket, "p1", 0.30, 0.70, 20_000)
	kalshi := listingWithQuote(domain.PlatformKalshi, "k1", 0.45, 0.55, 20_000)
	m := matchRecord(poly, kalshi, 0.95)

	cfg := testDetectionConfig()
	cfg.MinProfitPct = 0
	d := NewDetector(cfg, testLogger())
	opps, _ := d.Detect(context.Background(), []domain.SimilarityRecord{m}, detectedAt)
	require.NotEmpty(t, opps)
	for _, o := range opps {
		assert.Less(t, o.NetProfit, o.GrossSpread)
		assert.Positive(t, o.NetProfit)
	}
}

func TestDetectBelowProfitThresholdIsDropped(t *testing.T) {
	// Gross 0.04 barely covers fees+slippage: net negative.
	poly := listingWithQuote(domain.PlatformPolymarket, "p1", 0.48, 0.52, 20_000)
	kalshi := listingWithQuote(domain.PlatformKalshi, "k1", 0.52, 0.48, 20_000)
	m := matchRecord(poly, kalshi, 0.9)

	d := NewDetector(testDetectionConfig(), testLogger())
	opps, _ := d.Detect(context.Background(), []domain.SimilarityRecord{m}, detectedAt)
	assert.Empty(t, opps)
}

func TestDetectZeroVolumeYieldsNoOpportunity(t *testing.T) {
	poly := listingWithQuote(domain.PlatformPolymarket, "p1", 0.45, 0.55, 0)
	kalshi := listingWithQuote(domain.PlatformKalshi, "k1", 0.52, 0.48, 50_000)
	m := matchRecord(poly, kalshi, 0.9)

	cfg := testDetectionConfig()
	cfg.MinVolumes = nil
	d := NewDetector(cfg, testLogger())
	opps, _ := d.Detect(context.Background(), []domain.SimilarityRecord{m}, detectedAt)
	assert.Empty(t, opps)
}

func TestDetectBelowMinVolumeIsExcluded(t *testing.T) {
	// Kalshi side at 40 is under its configured minimum of 50.
	poly := listingWithQuote(domain.PlatformPolymarket, "p1", 0.45, 0.55, 50_000)
	kalshi := listingWithQuote(domain.PlatformKalshi, "k1", 0.52, 0.48, 40)
	m := matchRecord(poly, kalshi, 0.9)

	d := NewDetector(testDetectionConfig(), testLogger())
	opps, excluded := d.Detect(context.Background(), []domain.SimilarityRecord{m}, detectedAt)
	assert.Empty(t, opps)
	require.Len(t, excluded, 1)
	assert.Equal(t, m.PairKey, excluded[0].PairKey)
	assert.Contains(t, excluded[0].Reason, "volume below minimum")
}

func TestDetectInvalidQuoteReportedAsExcluded(t *testing.T) {
	poly := listingWithQuote(domain.PlatformPolymarket, "p1", 0.45, 0.25, 50_000) // sums to 0.70
	kalshi := listingWithQuote(domain.PlatformKalshi, "k1", 0.52, 0.48, 50_000)
	m := matchRecord(poly, kalshi, 0.9)

	d := NewDetector(testDetectionConfig(), testLogger())
	opps, excluded := d.Detect(context.Background(), []domain.SimilarityRecord{m}, detectedAt)
	assert.Empty(t, opps)
	require.Len(t, excluded, 1)
	assert.Equal(t, m.PairKey, excluded[0].PairKey)
	assert.Equal(t, domain.ReasonIncompleteData, excluded[0].Reason)
}

func TestDetectPositionSizeIsVolumeCapped(t *testing.T) {
	// Thinner side has 500 volume: cap = 500 * 0.1 = 50, below max 100.
	poly := listingWithQuote(domain.PlatformPolymarket, "p1", 0.45, 0.55, 500)
	kalshi := listingWithQuote(domain.PlatformKalshi, "k1", 0.52, 0.48, 50_000)
	m := matchRecord(poly, kalshi, 0.9)

	cfg := testDetectionConfig()
	cfg.MinConfidence = 0.01
	d := NewDetector(cfg, testLogger())
	opps, _ := d.Detect(context.Background(), []domain.SimilarityRecord{m}, detectedAt)
	require.NotEmpty(t, opps)
	assert.InDelta(t, 50.0, opps[0].PositionSize, 1e-9)
	assert.InDelta(t, opps[0].NetProfit*50.0, opps[0].TotalProfit, 1e-9)
	assert.InDelta(t, opps[0].BuyPrice*50.0, opps[0].RequiredCapital, 1e-9)

	// Deep books cap at the configured maximum instead.
	poly.Quote.Volume24h = 50_000
	m = matchRecord(poly, kalshi, 0.9)
	opps, _ = d.Detect(context.Background(), []domain.SimilarityRecord{m}, detectedAt)
	require.NotEmpty(t, opps)
	assert.InDelta(t, 100.0, opps[0].PositionSize, 1e-9)
}

func TestDetectConfidenceIsMultiplicative(t *testing.T) {
	poly := listingWithQuote(domain.PlatformPolymarket, "p1", 0.45, 0.55, 5_000)
	kalshi := listingWithQuote(domain.PlatformKalshi, "k1", 0.52, 0.48, 50_000)
	// Quotes are 1 minute old at detection time.
	poly.Quote.UpdatedAt = detectedAt.Add(-time.Minute)
	kalshi.Quote.UpdatedAt = detectedAt.Add(-30 * time.Second)
	m := matchRecord(poly, kalshi, 0.9)

	d := NewDetector(testDetectionConfig(), testLogger())
	opps, _ := d.Detect(context.Background(), []domain.SimilarityRecord{m}, detectedAt)
	require.NotEmpty(t, opps)

	o := opps[0]
	assert.InDelta(t, 0.9, o.Breakdown.Match, 1e-9)
	assert.InDelta(t, 0.5, o.Breakdown.Volume, 1e-9)             // 5000/10000
	assert.InDelta(t, 1-60.0/300.0, o.Breakdown.Freshness, 1e-9) // oldest quote, 1m of 5m
	assert.InDelta(t, 0.9*0.5*0.8, o.Confidence, 1e-9)
}

func TestDetectStaleQuotesZeroConfidence(t *testing.T) {
	poly := listingWithQuote(domain.PlatformPolymarket, "p1", 0.45, 0.55, 50_000)
	kalshi := listingWithQuote(domain.PlatformKalshi, "k1", 0.52, 0.48, 50_000)
	poly.Quote.UpdatedAt = detectedAt.Add(-time.Hour)
	m := matchRecord(poly, kalshi, 0.9)

	d := NewDetector(testDetectionConfig(), testLogger())
	opps, _ := d.Detect(context.Background(), []domain.SimilarityRecord{m}, detectedAt)
	assert.Empty(t, opps)
}

func TestDetectRanksByTotalProfitThenConfidence(t *testing.T) {
	mkPair := func(pID, kID string, polyYes, kalshiYes, vol float64, overall float64) domain.SimilarityRecord {
		poly := listingWithQuote(domain.PlatformPolymarket, pID, polyYes, 1-polyYes, vol)
		kalshi := listingWithQuote(domain.PlatformKalshi, kID, kalshiYes, 1-kalshiYes, vol)
		return matchRecord(poly, kalshi, overall)
	}
	matches := []domain.SimilarityRecord{
		mkPair("p1", "k1", 0.40, 0.52, 50_000, 0.85), // wider spread
		mkPair("p2", "k2", 0.45, 0.52, 50_000, 0.95),
	}

	d := NewDetector(testDetectionConfig(), testLogger())
	opps, _ := d.Detect(context.Background(), matches, detectedAt)
	require.Len(t, opps, 2)
	for i := 1; i < len(opps); i++ {
		if opps[i-1].TotalProfit == opps[i].TotalProfit {
			assert.GreaterOrEqual(t, opps[i-1].Confidence, opps[i].Confidence)
		} else {
			assert.Greater(t, opps[i-1].TotalProfit, opps[i].TotalProfit)
		}
	}
}

func TestDetectIsIdempotent(t *testing.T) {
	poly := listingWithQuote(domain.PlatformPolymarket, "p1", 0.45, 0.55, 50_000)
	kalshi := listingWithQuote(domain.PlatformKalshi, "k1", 0.52, 0.48, 50_000)
	m := matchRecord(poly, kalshi, 0.9)

	d := NewDetector(testDetectionConfig(), testLogger())
	first, _ := d.Detect(context.Background(), []domain.SimilarityRecord{m}, detectedAt)
	second, _ := d.Detect(context.Background(), []domain.SimilarityRecord{m}, detectedAt)
	assert.Equal(t, first, second)
}

func TestOpportunityIDIsDeterministic(t *testing.T) {
	a := domain.OpportunityID("x|y", domain.StrategyBuyPolySellKalshi, domain.OutcomeYes)
	b := domain.OpportunityID("x|y", domain.StrategyBuyPolySellKalshi, domain.OutcomeYes)
	c := domain.OpportunityID("x|y", domain.StrategyBuyPolySellKalshi, domain.OutcomeNo)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestSummarizeAggregates(t *testing.T) {
	poly := listingWithQuote(domain.PlatformPolymarket, "p1", 0.40, 0.60, 50_000)
	kalshi := listingWithQuote(domain.PlatformKalshi, "k1", 0.52, 0.48, 50_000)
	m := matchRecord(poly, kalshi, 0.9)

	d := NewDetector(testDetectionConfig(), testLogger())
	opps, _ := d.Detect(context.Background(), []domain.SimilarityRecord{m}, detectedAt)
	require.NotEmpty(t, opps)

	sum := Summarize(opps)
	assert.Equal(t, len(opps), sum.Count)
	require.NotNil(t, sum.Best)
	assert.Equal(t, opps[0].ID, sum.Best.ID)

	var capital float64
	for _, o := range opps {
		capital += o.RequiredCapital
	}
	assert.InDelta(t, capital, sum.RequiredCapital, 1e-9)

	var total int
	for _, n := range sum.ByStrategy {
		total += n
	}
	assert.Equal(t, sum.Count, total)

	empty := Summarize(nil)
	assert.Zero(t, empty.Count)
	assert.Nil(t, empty.Best)
}

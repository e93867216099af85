// Package detector turns matched listing pairs plus live quotes into a
// ranked list of fee- and slippage-adjusted arbitrage opportunities.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/arbmon/internal/config"
	"github.com/alanyoungcy/arbmon/internal/domain"
)

// Detector evaluates the four candidate strategies for every matched pair
// and keeps those clearing the profit and confidence gates. Configuration
// is fixed at construction and never mutated mid-cycle.
type Detector struct {
	cfg    config.DetectionConfig
	logger *slog.Logger
}

// NewDetector creates a detector with the given detection parameters.
func NewDetector(cfg config.DetectionConfig, logger *slog.Logger) *Detector {
	return &Detector{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "detector")),
	}
}

// Detect evaluates every match and returns opportunities ranked by total
// profit descending, confidence breaking ties, plus the pairs that were
// skipped instead of evaluated and why. At most one opportunity is emitted
// per pair. Identical inputs produce bit-identical output: opportunity IDs
// derive from pair key, strategy and outcome, and the final sort is
// total-order.
func (d *Detector) Detect(ctx context.Context, matches []domain.SimilarityRecord, now time.Time) ([]domain.ArbitrageOpportunity, []domain.PairExclusion) {
	var opps []domain.ArbitrageOpportunity
	var excluded []domain.PairExclusion
	for _, m := range matches {
		poly, kalshi := m.ListingA, m.ListingB
		if poly.Platform != domain.PlatformPolymarket {
			poly, kalshi = kalshi, poly
		}
		if !poly.Quote.Valid() || !kalshi.Quote.Valid() {
			excluded = append(excluded, domain.PairExclusion{PairKey: m.PairKey, Reason: domain.ReasonIncompleteData})
			d.logger.Debug("skipping pair with invalid quote",
				slog.String("pair_key", m.PairKey))
			continue
		}
		if reason, ok := d.belowMinVolume(poly, kalshi); ok {
			excluded = append(excluded, domain.PairExclusion{PairKey: m.PairKey, Reason: reason})
			continue
		}
		opp, ok := d.evaluatePair(m, poly, kalshi, now)
		if !ok {
			continue
		}
		d.logger.DebugContext(ctx, "opportunity detected",
			slog.String("id", opp.ID),
			slog.String("strategy", string(opp.Strategy)),
			slog.String("outcome", string(opp.Outcome)),
			slog.Float64("net_profit", opp.NetProfit),
			slog.Float64("confidence", opp.Confidence),
		)
		opps = append(opps, opp)
	}

	rank(opps)
	d.logger.Info("detection complete",
		slog.Int("matches", len(matches)),
		slog.Int("opportunities", len(opps)),
		slog.Int("pairs_excluded", len(excluded)),
	)
	return opps, excluded
}

// belowMinVolume checks each side against its platform's configured minimum
// 24h volume. Platforms without a configured minimum are not gated.
func (d *Detector) belowMinVolume(poly, kalshi domain.MarketListing) (string, bool) {
	for _, l := range []domain.MarketListing{poly, kalshi} {
		if min := d.cfg.MinVolumes[string(l.Platform)]; min > 0 && l.Quote.Volume24h < min {
			return fmt.Sprintf("%s volume below minimum", l.Platform), true
		}
	}
	return "", false
}

// evaluatePair runs the four strategy candidates (two directions times two
// outcomes) for one matched pair and keeps only the one with the highest net
// profit among those clearing every gate.
func (d *Detector) evaluatePair(m domain.SimilarityRecord, poly, kalshi domain.MarketListing, now time.Time) (domain.ArbitrageOpportunity, bool) {
	candidates := []struct {
		strategy domain.Strategy
		outcome  domain.OutcomeSide
		buy      domain.MarketListing
		sell     domain.MarketListing
		buyPx    float64
		sellPx   float64
	}{
		{domain.StrategyBuyPolySellKalshi, domain.OutcomeYes, poly, kalshi, poly.Quote.YesPrice, kalshi.Quote.YesPrice},
		{domain.StrategyBuyKalshiSellPoly, domain.OutcomeYes, kalshi, poly, kalshi.Quote.YesPrice, poly.Quote.YesPrice},
		{domain.StrategyBuyPolySellKalshi, domain.OutcomeNo, poly, kalshi, poly.Quote.NoPrice, kalshi.Quote.NoPrice},
		{domain.StrategyBuyKalshiSellPoly, domain.OutcomeNo, kalshi, poly, kalshi.Quote.NoPrice, poly.Quote.NoPrice},
	}

	var best domain.ArbitrageOpportunity
	found := false
	for _, c := range candidates {
		opp, ok := d.evaluate(m, c.strategy, c.outcome, c.buy, c.sell, c.buyPx, c.sellPx, now)
		if !ok {
			continue
		}
		// Candidate order breaks exact ties, keeping output deterministic.
		if !found || opp.NetProfit > best.NetProfit {
			best = opp
			found = true
		}
	}
	return best, found
}

// evaluate applies the profit model to one candidate: gross spread minus both
// venues' fees (as fractions of each leg's notional) minus the slippage
// buffer, sized against the thinner side's 24h volume.
func (d *Detector) evaluate(m domain.SimilarityRecord, strategy domain.Strategy, outcome domain.OutcomeSide, buy, sell domain.MarketListing, buyPx, sellPx float64, now time.Time) (domain.ArbitrageOpportunity, bool) {
	gross := sellPx - buyPx
	if gross <= 0 {
		return domain.ArbitrageOpportunity{}, false
	}

	fees := buyPx*d.feeRate(buy.Platform) + sellPx*d.feeRate(sell.Platform)
	net := gross - fees - d.cfg.SlippageBuffer
	if net <= 0 || net < d.cfg.MinNetProfit {
		return domain.ArbitrageOpportunity{}, false
	}
	profitPct := net / buyPx
	if profitPct < d.cfg.MinProfitPct {
		return domain.ArbitrageOpportunity{}, false
	}

	size := d.positionSize(buy.Quote.Volume24h, sell.Quote.Volume24h)
	if size <= 0 {
		return domain.ArbitrageOpportunity{}, false
	}
	breakdown := d.confidence(m, buy, sell, now)
	confidence := breakdown.Composite()
	if confidence < d.cfg.MinConfidence {
		return domain.ArbitrageOpportunity{}, false
	}

	opp := domain.ArbitrageOpportunity{
		ID:              domain.OpportunityID(m.PairKey, strategy, outcome),
		PairKey:         m.PairKey,
		Strategy:        strategy,
		Outcome:         outcome,
		BuyPlatform:     buy.Platform,
		SellPlatform:    sell.Platform,
		BuyListing:      buy.ID,
		SellListing:     sell.ID,
		BuyPrice:        buyPx,
		SellPrice:       sellPx,
		GrossSpread:     gross,
		FeeCost:         fees,
		SlippageCost:    d.cfg.SlippageBuffer,
		NetProfit:       net,
		ProfitPct:       profitPct,
		PositionSize:    size,
		RequiredCapital: buyPx * size,
		TotalProfit:     net * size,
		Confidence:      confidence,
		Breakdown:       breakdown,
		DetectedAt:      now,
	}
	return opp, true
}

// feeRate looks up the venue fee rate; unknown venues trade free.
func (d *Detector) feeRate(p domain.Platform) float64 {
	return d.cfg.FeeRates[string(p)]
}

// positionSize caps the contract count at the configured maximum and at a
// fraction of the thinner side's 24h volume. Zero volume on either side
// means zero size.
func (d *Detector) positionSize(volBuy, volSell float64) float64 {
	minVol := volBuy
	if volSell < minVol {
		minVol = volSell
	}
	if minVol <= 0 {
		return 0
	}
	size := minVol * d.cfg.VolumeCapFraction
	if size > d.cfg.MaxPositionSize {
		size = d.cfg.MaxPositionSize
	}
	return size
}

// confidence builds the multiplicative gate: match quality times volume
// depth times quote freshness. Any factor at zero zeroes the whole score,
// so a stale or volumeless pair can never be surfaced on match quality
// alone.
func (d *Detector) confidence(m domain.SimilarityRecord, buy, sell domain.MarketListing, now time.Time) domain.ConfidenceBreakdown {
	minVol := buy.Quote.Volume24h
	if sell.Quote.Volume24h < minVol {
		minVol = sell.Quote.Volume24h
	}
	volume := minVol / d.cfg.VolumeSaturation
	if volume > 1 {
		volume = 1
	}
	if volume < 0 {
		volume = 0
	}

	oldest := buy.Quote.UpdatedAt
	if sell.Quote.UpdatedAt.Before(oldest) {
		oldest = sell.Quote.UpdatedAt
	}
	freshness := 1 - now.Sub(oldest).Seconds()/d.cfg.QuoteMaxAge.Duration.Seconds()
	if freshness > 1 {
		freshness = 1
	}
	if freshness < 0 {
		freshness = 0
	}

	return domain.ConfidenceBreakdown{
		Match:     m.Score.Overall,
		Volume:    volume,
		Freshness: freshness,
	}
}

// rank orders opportunities by total profit descending, then confidence
// descending, then ID ascending for a stable total order.
func rank(opps []domain.ArbitrageOpportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].TotalProfit != opps[j].TotalProfit {
			return opps[i].TotalProfit > opps[j].TotalProfit
		}
		if opps[i].Confidence != opps[j].Confidence {
			return opps[i].Confidence > opps[j].Confidence
		}
		return opps[i].ID < opps[j].ID
	})
}

// Summarize aggregates a detection run for reporting and alerting.
func Summarize(opps []domain.ArbitrageOpportunity) domain.OpportunitySummary {
	sum := domain.OpportunitySummary{
		ByStrategy: make(map[domain.Strategy]int),
		ByOutcome:  make(map[domain.OutcomeSide]int),
	}
	if len(opps) == 0 {
		return sum
	}
	var pctTotal float64
	for i := range opps {
		o := &opps[i]
		sum.Count++
		sum.TotalProfit += o.TotalProfit
		sum.RequiredCapital += o.RequiredCapital
		pctTotal += o.ProfitPct
		sum.ByStrategy[o.Strategy]++
		sum.ByOutcome[o.Outcome]++
		if sum.Best == nil || o.TotalProfit > sum.Best.TotalProfit {
			sum.Best = o
		}
	}
	sum.AvgProfitPct = pctTotal / float64(sum.Count)
	return sum
}

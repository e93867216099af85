package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Strategy identifies the direction of a two-leg arbitrage.
type Strategy string

const (
	StrategyBuyPolySellKalshi Strategy = "buy_poly_sell_kalshi"
	StrategyBuyKalshiSellPoly Strategy = "buy_kalshi_sell_poly"
)

// OutcomeSide identifies which binary outcome the legs trade.
type OutcomeSide string

const (
	OutcomeYes OutcomeSide = "yes"
	OutcomeNo  OutcomeSide = "no"
)

// ConfidenceBreakdown records the multiplicative factors behind an
// opportunity's composite confidence. Each factor is in [0, 1] and any
// single zero factor zeroes the composite.
type ConfidenceBreakdown struct {
	Match     float64
	Volume    float64
	Freshness float64
}

// Composite returns the product of all factors.
func (c ConfidenceBreakdown) Composite() float64 {
	return c.Match * c.Volume * c.Freshness
}

// ArbitrageOpportunity is one profitable cross-platform trade candidate.
// All per-contract amounts are in probability units (dollars per $1 payout).
type ArbitrageOpportunity struct {
	ID              string
	PairKey         string
	Strategy        Strategy
	Outcome         OutcomeSide
	BuyPlatform     Platform
	SellPlatform    Platform
	BuyListing      string
	SellListing     string
	BuyPrice        float64
	SellPrice       float64
	GrossSpread     float64
	FeeCost         float64
	SlippageCost    float64
	NetProfit       float64 // per contract, after fees and slippage
	ProfitPct       float64 // NetProfit / BuyPrice
	PositionSize    float64 // contracts, volume-capped
	RequiredCapital float64 // BuyPrice * PositionSize
	TotalProfit     float64 // NetProfit * PositionSize
	Confidence      float64
	Breakdown       ConfidenceBreakdown
	DetectedAt      time.Time
}

// OpportunityID derives a stable identifier from the pair key, strategy and
// outcome so repeated detection runs over the same inputs produce the same
// IDs.
func OpportunityID(pairKey string, strategy Strategy, outcome OutcomeSide) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", pairKey, strategy, outcome)))
	return hex.EncodeToString(sum[:16])
}

// PairExclusion reports a matched pair the detector skipped instead of
// evaluating, with the reason.
type PairExclusion struct {
	PairKey string
	Reason  string
}

// OpportunitySummary aggregates one detection run for reporting.
type OpportunitySummary struct {
	Count           int
	TotalProfit     float64
	RequiredCapital float64
	AvgProfitPct    float64
	Best            *ArbitrageOpportunity
	ByStrategy      map[Strategy]int
	ByOutcome       map[OutcomeSide]int
}

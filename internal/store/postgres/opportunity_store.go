package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbmon/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
// Opportunity IDs are deterministic per (pair, strategy, outcome), so repeat
// detections of a persisting spread update the existing row in place.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunityCols = `id, pair_key, strategy, outcome,
	buy_platform, sell_platform, buy_listing, sell_listing,
	buy_price, sell_price, gross_spread, fee_cost, slippage_cost,
	net_profit, profit_pct, position_size, required_capital, total_profit,
	confidence, conf_match, conf_volume, conf_freshness, detected_at`

// Upsert inserts or refreshes an opportunity.
func (s *OpportunityStore) Upsert(ctx context.Context, o domain.ArbitrageOpportunity) error {
	const query = `
		INSERT INTO opportunities (
			id, pair_key, strategy, outcome,
			buy_platform, sell_platform, buy_listing, sell_listing,
			buy_price, sell_price, gross_spread, fee_cost, slippage_cost,
			net_profit, profit_pct, position_size, required_capital, total_profit,
			confidence, conf_match, conf_volume, conf_freshness, detected_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			buy_price        = EXCLUDED.buy_price,
			sell_price       = EXCLUDED.sell_price,
			gross_spread     = EXCLUDED.gross_spread,
			fee_cost         = EXCLUDED.fee_cost,
			slippage_cost    = EXCLUDED.slippage_cost,
			net_profit       = EXCLUDED.net_profit,
			profit_pct       = EXCLUDED.profit_pct,
			position_size    = EXCLUDED.position_size,
			required_capital = EXCLUDED.required_capital,
			total_profit     = EXCLUDED.total_profit,
			confidence       = EXCLUDED.confidence,
			conf_match       = EXCLUDED.conf_match,
			conf_volume      = EXCLUDED.conf_volume,
			conf_freshness   = EXCLUDED.conf_freshness,
			detected_at      = EXCLUDED.detected_at,
			updated_at       = NOW()`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.PairKey, string(o.Strategy), string(o.Outcome),
		string(o.BuyPlatform), string(o.SellPlatform), o.BuyListing, o.SellListing,
		o.BuyPrice, o.SellPrice, o.GrossSpread, o.FeeCost, o.SlippageCost,
		o.NetProfit, o.ProfitPct, o.PositionSize, o.RequiredCapital, o.TotalProfit,
		o.Confidence, o.Breakdown.Match, o.Breakdown.Volume, o.Breakdown.Freshness,
		o.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert opportunity %s: %w", o.ID, err)
	}
	return nil
}

// scanOpportunity scans one row into a domain.ArbitrageOpportunity.
func scanOpportunity(row pgx.Row) (domain.ArbitrageOpportunity, error) {
	var o domain.ArbitrageOpportunity
	var strategy, outcome, buyPlat, sellPlat string
	err := row.Scan(
		&o.ID, &o.PairKey, &strategy, &outcome,
		&buyPlat, &sellPlat, &o.BuyListing, &o.SellListing,
		&o.BuyPrice, &o.SellPrice, &o.GrossSpread, &o.FeeCost, &o.SlippageCost,
		&o.NetProfit, &o.ProfitPct, &o.PositionSize, &o.RequiredCapital, &o.TotalProfit,
		&o.Confidence, &o.Breakdown.Match, &o.Breakdown.Volume, &o.Breakdown.Freshness,
		&o.DetectedAt,
	)
	if err != nil {
		return domain.ArbitrageOpportunity{}, err
	}
	o.Strategy = domain.Strategy(strategy)
	o.Outcome = domain.OutcomeSide(outcome)
	o.BuyPlatform = domain.Platform(buyPlat)
	o.SellPlatform = domain.Platform(sellPlat)
	return o, nil
}

// GetByID retrieves an opportunity by its deterministic ID.
func (s *OpportunityStore) GetByID(ctx context.Context, id string) (domain.ArbitrageOpportunity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+opportunityCols+` FROM opportunities WHERE id = $1`, id)
	o, err := scanOpportunity(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ArbitrageOpportunity{}, domain.ErrNotFound
		}
		return domain.ArbitrageOpportunity{}, fmt.Errorf("postgres: get opportunity %s: %w", id, err)
	}
	return o, nil
}

// ListRecent returns the most recently detected opportunities, best first
// within each detection time.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+opportunityCols+` FROM opportunities
		 ORDER BY detected_at DESC, total_profit DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()
	return collectOpportunities(rows)
}

// ListByPair returns opportunity history for one pair.
func (s *OpportunityStore) ListByPair(ctx context.Context, pairKey string, opts domain.ListOpts) ([]domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + opportunityCols + ` FROM opportunities WHERE pair_key = $1`
	args := []any{pairKey}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND detected_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND detected_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY detected_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities for pair %s: %w", pairKey, err)
	}
	defer rows.Close()
	return collectOpportunities(rows)
}

// ListBefore returns opportunities detected strictly before the cutoff,
// oldest first. Used by the archiver ahead of deletion.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ArbitrageOpportunity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+opportunityCols+` FROM opportunities
		 WHERE detected_at < $1 ORDER BY detected_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before %v: %w", before, err)
	}
	defer rows.Close()
	return collectOpportunities(rows)
}

// DeleteBefore removes opportunities detected before the cutoff and returns
// how many rows were deleted.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM opportunities WHERE detected_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities before %v: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

func collectOpportunities(rows pgx.Rows) ([]domain.ArbitrageOpportunity, error) {
	var opps []domain.ArbitrageOpportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opps = append(opps, o)
	}
	return opps, rows.Err()
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbmon/internal/domain"
)

// CycleLogStore implements domain.CycleLogStore using PostgreSQL.
type CycleLogStore struct {
	pool *pgxpool.Pool
}

// NewCycleLogStore creates a new CycleLogStore backed by the given connection
// pool.
func NewCycleLogStore(pool *pgxpool.Pool) *CycleLogStore {
	return &CycleLogStore{pool: pool}
}

const cycleLogCols = `id, started_at, duration_ms,
	poly_listings, kalshi_listings, pairs_evaluated, matches_found,
	opportunities, alerts_sent, degraded, error,
	best_net_profit, total_net_profit`

// Insert appends one cycle's telemetry.
func (s *CycleLogStore) Insert(ctx context.Context, log domain.CycleLog) error {
	const query = `
		INSERT INTO cycle_logs (
			id, started_at, duration_ms,
			poly_listings, kalshi_listings, pairs_evaluated, matches_found,
			opportunities, alerts_sent, degraded, error,
			best_net_profit, total_net_profit
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13
		)`

	_, err := s.pool.Exec(ctx, query,
		log.ID, log.StartedAt, log.Duration.Milliseconds(),
		log.PolyListings, log.KalshiListings, log.PairsEvaluated, log.MatchesFound,
		log.Opportunities, log.AlertsSent, log.Degraded, log.Error,
		log.BestNetProfit, log.TotalNetProfit,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert cycle log %s: %w", log.ID, err)
	}
	return nil
}

// ListRecent returns the latest cycle logs, newest first.
func (s *CycleLogStore) ListRecent(ctx context.Context, limit int) ([]domain.CycleLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+cycleLogCols+` FROM cycle_logs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent cycle logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.CycleLog
	for rows.Next() {
		l, err := scanCycleLog(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan cycle log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// ListBefore returns cycle logs started strictly before the cutoff, oldest
// first. Used by the archiver ahead of deletion.
func (s *CycleLogStore) ListBefore(ctx context.Context, before time.Time) ([]domain.CycleLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+cycleLogCols+` FROM cycle_logs
		 WHERE started_at < $1 ORDER BY started_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list cycle logs before %v: %w", before, err)
	}
	defer rows.Close()

	var logs []domain.CycleLog
	for rows.Next() {
		l, err := scanCycleLog(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan cycle log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// DeleteBefore removes cycle logs started before the cutoff and returns how
// many rows were deleted.
func (s *CycleLogStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM cycle_logs WHERE started_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete cycle logs before %v: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

func scanCycleLog(row pgx.Row) (domain.CycleLog, error) {
	var l domain.CycleLog
	var durationMs int64
	err := row.Scan(
		&l.ID, &l.StartedAt, &durationMs,
		&l.PolyListings, &l.KalshiListings, &l.PairsEvaluated, &l.MatchesFound,
		&l.Opportunities, &l.AlertsSent, &l.Degraded, &l.Error,
		&l.BestNetProfit, &l.TotalNetProfit,
	)
	if err != nil {
		return domain.CycleLog{}, err
	}
	l.Duration = time.Duration(durationMs) * time.Millisecond
	return l, nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbmon/internal/domain"
)

// PairStore implements domain.PairStore using PostgreSQL.
type PairStore struct {
	pool *pgxpool.Pool
}

// NewPairStore creates a new PairStore backed by the given connection pool.
func NewPairStore(pool *pgxpool.Pool) *PairStore {
	return &PairStore{pool: pool}
}

const pairCols = `pair_key, id, poly_id, kalshi_id, source, confidence, created_at, updated_at`

// Upsert inserts or updates a pair. A manual source always wins over an
// engine-scored one so operator confirmations are never downgraded.
func (s *PairStore) Upsert(ctx context.Context, pair domain.MarketPair) error {
	const query = `
		INSERT INTO pairs (
			pair_key, id, poly_id, kalshi_id, source, confidence, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NOW(), NOW()
		)
		ON CONFLICT (pair_key) DO UPDATE SET
			confidence = EXCLUDED.confidence,
			source     = CASE WHEN pairs.source = 'manual' THEN pairs.source ELSE EXCLUDED.source END,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		pair.PairKey, pair.ID, pair.PolyID, pair.KalshiID,
		string(pair.Source), pair.Confidence,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert pair %s: %w", pair.PairKey, err)
	}
	return nil
}

// scanPair scans a single pair row into a domain.MarketPair.
func scanPair(row pgx.Row) (domain.MarketPair, error) {
	var p domain.MarketPair
	var source string
	err := row.Scan(
		&p.PairKey, &p.ID, &p.PolyID, &p.KalshiID,
		&source, &p.Confidence, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.MarketPair{}, err
	}
	p.Source = domain.MatchType(source)
	return p, nil
}

// GetByKey retrieves a pair by its canonical pair key.
func (s *PairStore) GetByKey(ctx context.Context, pairKey string) (domain.MarketPair, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pairCols+` FROM pairs WHERE pair_key = $1`, pairKey)
	p, err := scanPair(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.MarketPair{}, domain.ErrNotFound
		}
		return domain.MarketPair{}, fmt.Errorf("postgres: get pair %s: %w", pairKey, err)
	}
	return p, nil
}

// Delete removes a pair.
func (s *PairStore) Delete(ctx context.Context, pairKey string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pairs WHERE pair_key = $1`, pairKey)
	if err != nil {
		return fmt.Errorf("postgres: delete pair %s: %w", pairKey, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns pairs ordered by confidence with pagination and optional time
// filtering on updated_at.
func (s *PairStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.MarketPair, error) {
	query := `SELECT ` + pairCols + ` FROM pairs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND updated_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND updated_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY confidence DESC, pair_key"

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
		return nil, fmt.Errorf("postgres: list pairs: %w", err)
	}
	defer rows.Close()

	var pairs []domain.MarketPair
	for rows.Next() {
		p, err := scanPair(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// ListManual returns all operator-confirmed pairs.
func (s *PairStore) ListManual(ctx context.Context) ([]domain.MarketPair, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pairCols+` FROM pairs WHERE source = 'manual' ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list manual pairs: %w", err)
	}
	defer rows.Close()

	var pairs []domain.MarketPair
	for rows.Next() {
		p, err := scanPair(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

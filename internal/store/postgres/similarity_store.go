package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbmon/internal/domain"
)

// SimilarityStore implements domain.SimilarityStore using PostgreSQL. Each
// record snapshots the two listing identities and titles at scoring time so
// history stays meaningful after listings churn.
type SimilarityStore struct {
	pool *pgxpool.Pool
}

// NewSimilarityStore creates a new SimilarityStore backed by the given
// connection pool.
func NewSimilarityStore(pool *pgxpool.Pool) *SimilarityStore {
	return &SimilarityStore{pool: pool}
}

const similarityCols = `pair_key,
	a_platform, a_id, a_title, b_platform, b_id, b_title,
	lexical, semantic, keyword, overall, threshold,
	is_match, match_type, shared_keywords, degraded, reasons, computed_at`

// InsertBatch appends scoring results in a single batch.
func (s *SimilarityStore) InsertBatch(ctx context.Context, records []domain.SimilarityRecord) error {
	if len(records) == 0 {
		return nil
	}

	const query = `
		INSERT INTO similarity_records (
			pair_key,
			a_platform, a_id, a_title, b_platform, b_id, b_title,
			lexical, semantic, keyword, overall, threshold,
			is_match, match_type, shared_keywords, degraded, reasons, computed_at
		) VALUES (
			$1,
			$2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18
		)`

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(query,
			r.PairKey,
			string(r.ListingA.Platform), r.ListingA.ID, r.ListingA.Title,
			string(r.ListingB.Platform), r.ListingB.ID, r.ListingB.Title,
			r.Score.Lexical, r.Score.Semantic, r.Score.Keyword, r.Score.Overall, r.Threshold,
			r.IsMatch, string(r.MatchType), r.SharedKeywords, r.Degraded, r.Reasons, r.ComputedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert similarity batch item %d: %w", i, err)
		}
	}
	return nil
}

// scanSimilarity scans one row into a domain.SimilarityRecord. Only the
// snapshotted listing identity fields are populated.
func scanSimilarity(row pgx.Row) (domain.SimilarityRecord, error) {
	var r domain.SimilarityRecord
	var aPlat, bPlat, matchType string
	err := row.Scan(
		&r.PairKey,
		&aPlat, &r.ListingA.ID, &r.ListingA.Title,
		&bPlat, &r.ListingB.ID, &r.ListingB.Title,
		&r.Score.Lexical, &r.Score.Semantic, &r.Score.Keyword, &r.Score.Overall, &r.Threshold,
		&r.IsMatch, &matchType, &r.SharedKeywords, &r.Degraded, &r.Reasons, &r.ComputedAt,
	)
	if err != nil {
		return domain.SimilarityRecord{}, err
	}
	r.ListingA.Platform = domain.Platform(aPlat)
	r.ListingB.Platform = domain.Platform(bPlat)
	r.MatchType = domain.MatchType(matchType)
	return r, nil
}

func (s *SimilarityStore) list(ctx context.Context, where string, whereArgs []any, opts domain.ListOpts) ([]domain.SimilarityRecord, error) {
	query := `SELECT ` + similarityCols + ` FROM similarity_records WHERE ` + where
	args := append([]any{}, whereArgs...)
	argIdx := len(args) + 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND computed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND computed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY computed_at DESC, overall DESC"

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
		return nil, fmt.Errorf("postgres: list similarity records: %w", err)
	}
	defer rows.Close()

	var records []domain.SimilarityRecord
	for rows.Next() {
		r, err := scanSimilarity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan similarity record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ListByPair returns scoring history for one pair, newest first.
func (s *SimilarityStore) ListByPair(ctx context.Context, pairKey string, opts domain.ListOpts) ([]domain.SimilarityRecord, error) {
	return s.list(ctx, "pair_key = $1", []any{pairKey}, opts)
}

// ListMatches returns records that cleared the match threshold.
func (s *SimilarityStore) ListMatches(ctx context.Context, opts domain.ListOpts) ([]domain.SimilarityRecord, error) {
	return s.list(ctx, "is_match = TRUE", nil, opts)
}

// ListConsidered returns near-miss records retained for operator review.
func (s *SimilarityStore) ListConsidered(ctx context.Context, opts domain.ListOpts) ([]domain.SimilarityRecord, error) {
	return s.list(ctx, "is_match = FALSE", nil, opts)
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbmon/internal/domain"
)

// ListingStore implements domain.ListingStore using PostgreSQL.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a new ListingStore backed by the given connection pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

const listingCols = `platform, id, title, description, event_slug, status,
	yes_price, no_price, volume_24h, quote_updated_at,
	fetched_at, created_at, updated_at`

// UpsertBatch inserts or updates multiple listings in a single batch.
func (s *ListingStore) UpsertBatch(ctx context.Context, listings []domain.MarketListing) error {
	if len(listings) == 0 {
		return nil
	}

	const query = `
		INSERT INTO listings (
			platform, id, title, description, event_slug, status,
			yes_price, no_price, volume_24h, quote_updated_at,
			fetched_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, NOW(), NOW()
		)
		ON CONFLICT (platform, id) DO UPDATE SET
			title            = EXCLUDED.title,
			description      = EXCLUDED.description,
			event_slug       = EXCLUDED.event_slug,
			status           = EXCLUDED.status,
			yes_price        = EXCLUDED.yes_price,
			no_price         = EXCLUDED.no_price,
			volume_24h       = EXCLUDED.volume_24h,
			quote_updated_at = EXCLUDED.quote_updated_at,
			fetched_at       = EXCLUDED.fetched_at,
			updated_at       = NOW()`

	batch := &pgx.Batch{}
	for _, l := range listings {
		var quoteAt any
		if !l.Quote.UpdatedAt.IsZero() {
			quoteAt = l.Quote.UpdatedAt
		}
		batch.Queue(query,
			string(l.Platform), l.ID, l.Title, l.Description, l.EventSlug, string(l.Status),
			l.Quote.YesPrice, l.Quote.NoPrice, l.Quote.Volume24h, quoteAt,
			l.FetchedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range listings {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert listing batch item %d: %w", i, err)
		}
	}
	return nil
}

// scanListing scans a single listing row into a domain.MarketListing.
func scanListing(row pgx.Row) (domain.MarketListing, error) {
	var l domain.MarketListing
	var platform, status string
	var quoteUpdatedAt *time.Time
	err := row.Scan(
		&platform, &l.ID, &l.Title, &l.Description, &l.EventSlug, &status,
		&l.Quote.YesPrice, &l.Quote.NoPrice, &l.Quote.Volume24h, &quoteUpdatedAt,
		&l.FetchedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return domain.MarketListing{}, err
	}
	l.Platform = domain.Platform(platform)
	l.Status = domain.ListingStatus(status)
	if quoteUpdatedAt != nil {
		l.Quote.UpdatedAt = *quoteUpdatedAt
	}
	return l, nil
}

// GetByID retrieves a listing by platform and ID.
func (s *ListingStore) GetByID(ctx context.Context, platform domain.Platform, id string) (domain.MarketListing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+listingCols+` FROM listings WHERE platform = $1 AND id = $2`,
		string(platform), id)
	l, err := scanListing(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.MarketListing{}, domain.ErrNotFound
		}
		return domain.MarketListing{}, fmt.Errorf("postgres: get listing %s/%s: %w", platform, id, err)
	}
	return l, nil
}

// ListActive returns active listings for one platform with pagination and
// optional time filtering on fetched_at.
func (s *ListingStore) ListActive(ctx context.Context, platform domain.Platform, opts domain.ListOpts) ([]domain.MarketListing, error) {
	query := `SELECT ` + listingCols + ` FROM listings WHERE platform = $1 AND status = 'active'`
	args := []any{string(platform)}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND fetched_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND fetched_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY volume_24h DESC"

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
		return nil, fmt.Errorf("postgres: list active listings: %w", err)
	}
	defer rows.Close()

	var listings []domain.MarketListing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// Count returns the number of stored listings for one platform.
func (s *ListingStore) Count(ctx context.Context, platform domain.Platform) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM listings WHERE platform = $1`, string(platform)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count listings: %w", err)
	}
	return n, nil
}

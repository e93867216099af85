package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ListingStore persists market listings from both platforms.
type ListingStore interface {
	UpsertBatch(ctx context.Context, listings []MarketListing) error
	GetByID(ctx context.Context, platform Platform, id string) (MarketListing, error)
	ListActive(ctx context.Context, platform Platform, opts ListOpts) ([]MarketListing, error)
	Count(ctx context.Context, platform Platform) (int64, error)
}

// PairStore persists confirmed and manual listing pairs.
type PairStore interface {
	Upsert(ctx context.Context, pair MarketPair) error
	GetByKey(ctx context.Context, pairKey string) (MarketPair, error)
	Delete(ctx context.Context, pairKey string) error
	List(ctx context.Context, opts ListOpts) ([]MarketPair, error)
	ListManual(ctx context.Context) ([]MarketPair, error)
}

// SimilarityStore persists scoring results, including considered non-matches.
type SimilarityStore interface {
	InsertBatch(ctx context.Context, records []SimilarityRecord) error
	ListByPair(ctx context.Context, pairKey string, opts ListOpts) ([]SimilarityRecord, error)
	ListMatches(ctx context.Context, opts ListOpts) ([]SimilarityRecord, error)
	ListConsidered(ctx context.Context, opts ListOpts) ([]SimilarityRecord, error)
}

// OpportunityStore persists detected arbitrage opportunities.
type OpportunityStore interface {
	Upsert(ctx context.Context, opp ArbitrageOpportunity) error
	GetByID(ctx context.Context, id string) (ArbitrageOpportunity, error)
	ListRecent(ctx context.Context, limit int) ([]ArbitrageOpportunity, error)
	ListByPair(ctx context.Context, pairKey string, opts ListOpts) ([]ArbitrageOpportunity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// CycleLogStore persists monitor cycle telemetry.
type CycleLogStore interface {
	Insert(ctx context.Context, log CycleLog) error
	ListRecent(ctx context.Context, limit int) ([]CycleLog, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditStore persists an append-only audit log. Entries age out through
// DeleteBefore on the same retention schedule as the data they describe.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

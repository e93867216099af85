package domain

import (
	"context"
	"time"
)

// QuoteCache provides fast access to the latest quote per listing.
type QuoteCache interface {
	SetQuote(ctx context.Context, platform Platform, listingID string, q Quote) error
	GetQuote(ctx context.Context, platform Platform, listingID string) (Quote, error)
	GetQuotes(ctx context.Context, platform Platform, listingIDs []string) (map[string]Quote, error)
}

// RateLimiter provides distributed rate limiting for platform API calls.
// Allow counts one request against the key's sliding window; Wait blocks
// until a request fits under the given limit.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager provides distributed locking so only one monitor instance
// runs a detection cycle at a time.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// FeedEntry is one opportunity from the durable replay stream, tagged with
// the stream ID so consumers can resume after the last entry they saw.
type FeedEntry struct {
	ID          string
	Opportunity ArbitrageOpportunity
}

// SignalBus fans detected opportunities out to live subscribers and appends
// them to a durable stream for replay.
type SignalBus interface {
	PublishOpportunity(ctx context.Context, o ArbitrageOpportunity) error
	SubscribeOpportunities(ctx context.Context) (<-chan ArbitrageOpportunity, error)
	AppendOpportunity(ctx context.Context, o ArbitrageOpportunity) error
	ReplayOpportunities(ctx context.Context, afterID string, count int) ([]FeedEntry, error)
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbmon/internal/domain"
)

// QuoteCache implements domain.QuoteCache using Redis hashes. Each listing's
// latest quote is stored at key "quote:{platform}:{listingID}" with fields
// "yes", "no", "vol" and "ts" (Unix nanosecond timestamp).
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache backed by the given Client. Entries
// expire after ttl; pass 0 to keep them until overwritten.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying(), ttl: ttl}
}

func quoteKey(platform domain.Platform, listingID string) string {
	return fmt.Sprintf("quote:%s:%s", platform, listingID)
}

// SetQuote stores the latest quote for a listing.
func (qc *QuoteCache) SetQuote(ctx context.Context, platform domain.Platform, listingID string, q domain.Quote) error {
	key := quoteKey(platform, listingID)
	fields := map[string]interface{}{
		"yes": strconv.FormatFloat(q.YesPrice, 'f', -1, 64),
		"no":  strconv.FormatFloat(q.NoPrice, 'f', -1, 64),
		"vol": strconv.FormatFloat(q.Volume24h, 'f', -1, 64),
		"ts":  strconv.FormatInt(q.UpdatedAt.UnixNano(), 10),
	}

	pipe := qc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	if qc.ttl > 0 {
		pipe.Expire(ctx, key, qc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s/%s: %w", platform, listingID, err)
	}
	return nil
}

// GetQuote retrieves the latest quote for a listing. It returns
// domain.ErrNotFound when no quote is cached.
func (qc *QuoteCache) GetQuote(ctx context.Context, platform domain.Platform, listingID string) (domain.Quote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(platform, listingID)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s/%s: %w", platform, listingID, err)
	}
	q, ok := parseQuote(vals)
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	return q, nil
}

// GetQuotes retrieves quotes for multiple listings using a pipeline. Listings
// without a cached quote are silently omitted from the result map.
func (qc *QuoteCache) GetQuotes(ctx context.Context, platform domain.Platform, listingIDs []string) (map[string]domain.Quote, error) {
	if len(listingIDs) == 0 {
		return map[string]domain.Quote{}, nil
	}

	pipe := qc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(listingIDs))
	for _, id := range listingIDs {
		cmds[id] = pipe.HGetAll(ctx, quoteKey(platform, id))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get quotes pipeline: %w", err)
	}

	result := make(map[string]domain.Quote, len(listingIDs))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if q, ok := parseQuote(vals); ok {
			result[id] = q
		}
	}
	return result, nil
}

// parseQuote rebuilds a domain.Quote from its hash fields. It reports false
// when the hash is missing or malformed.
func parseQuote(vals map[string]string) (domain.Quote, bool) {
	if len(vals) == 0 {
		return domain.Quote{}, false
	}

	yes, errY := strconv.ParseFloat(vals["yes"], 64)
	no, errN := strconv.ParseFloat(vals["no"], 64)
	vol, errV := strconv.ParseFloat(vals["vol"], 64)
	tsNano, errT := strconv.ParseInt(vals["ts"], 10, 64)
	if errY != nil || errN != nil || errV != nil || errT != nil {
		return domain.Quote{}, false
	}

	return domain.Quote{
		YesPrice:  yes,
		NoPrice:   no,
		Volume24h: vol,
		UpdatedAt: time.Unix(0, tsNano),
	}, true
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)

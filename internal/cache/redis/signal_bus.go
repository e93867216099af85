package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbmon/internal/domain"
)

const (
	// opportunityChannel carries live opportunity events over Pub/Sub.
	opportunityChannel = "arb:opportunities"

	// opportunityStream is the durable replay log, trimmed to roughly
	// streamMaxLen entries via XADD MAXLEN ~.
	opportunityStream = "arb:opportunities:log"

	streamMaxLen int64 = 10000
)

// SignalBus implements domain.SignalBus over Redis: Pub/Sub for live
// opportunity fan-out and a Stream for durable replay. Payloads are JSON
// encodings of domain.ArbitrageOpportunity.
type SignalBus struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client, logger *slog.Logger) *SignalBus {
	return &SignalBus{
		rdb:    c.Underlying(),
		logger: logger.With(slog.String("component", "signal_bus")),
	}
}

// PublishOpportunity sends an opportunity to all live subscribers.
func (sb *SignalBus) PublishOpportunity(ctx context.Context, o domain.ArbitrageOpportunity) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("redis: marshal opportunity %s: %w", o.ID, err)
	}
	if err := sb.rdb.Publish(ctx, opportunityChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish opportunity %s: %w", o.ID, err)
	}
	return nil
}

// SubscribeOpportunities subscribes to the live opportunity channel and
// returns a read-only channel of decoded opportunities. The subscription is
// torn down and the channel closed when ctx is cancelled. Entries that fail
// to decode are logged and skipped.
func (sb *SignalBus) SubscribeOpportunities(ctx context.Context) (<-chan domain.ArbitrageOpportunity, error) {
	pubsub := sb.rdb.Subscribe(ctx, opportunityChannel)

	// Receive the subscription confirmation before handing the channel out.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe opportunities: %w", err)
	}

	out := make(chan domain.ArbitrageOpportunity, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var o domain.ArbitrageOpportunity
				if err := json.Unmarshal([]byte(msg.Payload), &o); err != nil {
					sb.logger.Warn("dropping undecodable opportunity event",
						slog.String("error", err.Error()),
					)
					continue
				}
				select {
				case out <- o:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// AppendOpportunity appends an opportunity to the durable replay stream.
// The pair key and strategy are stored as separate fields so the stream is
// inspectable with plain XRANGE.
func (sb *SignalBus) AppendOpportunity(ctx context.Context, o domain.ArbitrageOpportunity) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("redis: marshal opportunity %s: %w", o.ID, err)
	}

	args := &redis.XAddArgs{
		Stream: opportunityStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"pair_key": o.PairKey,
			"strategy": string(o.Strategy),
			"payload":  payload,
		},
	}
	if err := sb.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: append opportunity %s: %w", o.ID, err)
	}
	return nil
}

// ReplayOpportunities reads up to count entries from the replay stream
// starting after afterID. Use "0" to replay from the beginning. It returns
// an empty slice (not an error) when nothing is available; undecodable
// entries are logged and skipped.
func (sb *SignalBus) ReplayOpportunities(ctx context.Context, afterID string, count int) ([]domain.FeedEntry, error) {
	args := &redis.XReadArgs{
		Streams: []string{opportunityStream, afterID},
		Count:   int64(count),
	}

	results, err := sb.rdb.XRead(ctx, args).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: replay opportunities after %s: %w", afterID, err)
	}

	var entries []domain.FeedEntry
	for _, s := range results {
		for _, msg := range s.Messages {
			raw, ok := msg.Values["payload"].(string)
			if !ok {
				continue
			}
			var o domain.ArbitrageOpportunity
			if err := json.Unmarshal([]byte(raw), &o); err != nil {
				sb.logger.Warn("dropping undecodable stream entry",
					slog.String("stream_id", msg.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			entries = append(entries, domain.FeedEntry{ID: msg.ID, Opportunity: o})
		}
	}

	return entries, nil
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)

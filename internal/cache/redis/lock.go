package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/arbmon/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "arb:lock:"

// releaseTimeout bounds the unlock round trip when the caller's context is
// already gone.
const releaseTimeout = 5 * time.Second

// releaseLua deletes the lock key only when it still holds the caller's
// token, so a holder whose TTL expired cannot release a lock that has since
// been granted to someone else.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager hands out cycle-level locks so that when several monitor
// instances share one Redis, only one of them runs a scan cycle at a time.
type LockManager struct {
	rdb     *redis.Client
	release *redis.Script
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:     c.Underlying(),
		release: redis.NewScript(releaseLua),
	}
}

// Acquire takes the named lock for at most ttl. On success it returns an
// unlock function that is safe to call more than once; the TTL still bounds
// the hold in case the holder dies without unlocking.
//
// It returns domain.ErrLockHeld when another instance owns the lock.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	name := lockKeyPrefix + key
	token := uuid.NewString()

	ok, err := lm.rdb.SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() { lm.releaseLock(name, token) })
	}, nil
}

// releaseLock runs under its own context so the lock is freed even when the
// acquiring context has been cancelled.
func (lm *LockManager) releaseLock(name, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	_ = lm.release.Run(ctx, lm.rdb, []string{name}, token).Err()
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)

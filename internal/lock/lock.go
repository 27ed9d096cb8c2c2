// Package lock serializes reservation attempts for the same space and day across
// service instances that share a Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lock:reservation:"

// ErrLocked is returned when another holder keeps the lock past the wait budget.
var ErrLocked = errors.New("slot is locked by another request")

// Release only deletes the key while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// SlotLocker hands out per (space, date) locks.
type SlotLocker struct {
	client  *redis.Client
	ttl     time.Duration
	wait    time.Duration
	backoff time.Duration
}

// NewSlotLocker creates a locker whose keys expire after ttl. Acquire retries for up to wait.
func NewSlotLocker(client *redis.Client, ttl, wait time.Duration) *SlotLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &SlotLocker{client: client, ttl: ttl, wait: wait, backoff: 25 * time.Millisecond}
}

// Key returns the lock key for a space on a date.
func Key(spaceID int64, date time.Time) string {
	return fmt.Sprintf("%s%d:%s", keyPrefix, spaceID, date.Format("2006-01-02"))
}

// Acquire takes the lock for (spaceID, date). The returned func releases it.
func (l *SlotLocker) Acquire(ctx context.Context, spaceID int64, date time.Time) (func(), error) {
	key := Key(spaceID, date)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		_, err := l.client.SetArgs(ctx, key, token, redis.SetArgs{Mode: "NX", TTL: l.ttl}).Result()
		if err == nil {
			return func() {
				// Release with a fresh context so a cancelled request still frees the key.
				rctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = releaseScript.Run(rctx, l.client, []string{key}, token).Err()
			}, nil
		}
		if !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redis set: %w", err)
		}
		if time.Now().After(deadline) {
			return nil, ErrLocked
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.backoff):
		}
	}
}

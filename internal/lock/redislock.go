package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the context ends before the lock is free.
var ErrNotAcquired = errors.New("lock: not acquired")

// releaseScript deletes the key only while it still holds our token, so a
// holder whose TTL expired cannot free a lock another caller now owns.
var releaseScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)

const defaultPrefix = "lock:"

// Locker provides a Redis-backed mutual exclusion lock shared by every
// instance pointed at the same Redis.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
	// Prefix namespaces lock keys; defaults to "lock:".
	Prefix string
}

// WithLock runs fn while holding the lock for key. The lock is released when
// fn returns, whatever it returns. ttl bounds how long a crashed holder can
// block others.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	redisKey := l.key(key)
	token := uuid.NewString()

	ticker := time.NewTicker(retry)
	defer ticker.Stop()
	for {
		ok, err := l.R.SetNX(ctx, redisKey, token, ttl).Result()
		if err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("lock %s: %w: %w", key, ErrNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}
	defer l.release(redisKey, token)
	return fn(ctx)
}

func (l Locker) key(key string) string {
	if l.Prefix == "" {
		return defaultPrefix + key
	}
	return l.Prefix + key
}

func (l Locker) release(redisKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, l.R, []string{redisKey}, token).Err()
}

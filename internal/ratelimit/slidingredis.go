package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims entries older than the window and records the
// hit only when it fits, so rejected requests do not extend a client's
// penalty. It returns {allowed, count, oldest score or ""}.
var slidingWindowScript = redis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[2])
local count = redis.call("ZCARD", KEYS[1])
local allowed = 0
if count < tonumber(ARGV[3]) then
  redis.call("ZADD", KEYS[1], ARGV[1], ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call("PEXPIRE", KEYS[1], ARGV[5])
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
local score = ""
if oldest[2] then
  score = oldest[2]
end
return {allowed, count, score}
`)

// Limiter implements a sliding window rate limiter backed by a Redis sorted
// set per key. Scores are milliseconds since the epoch.
type Limiter struct {
	Client *redis.Client
	Prefix string
	// Now is overridable in tests.
	Now func() time.Time
}

// Allow records a request for key and reports whether it is within max per
// window, how many requests remain and when the oldest counted one expires.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error) {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, now.Add(window), nil
	}

	nowMs := now.UnixMilli()
	args := []any{
		nowMs,
		nowMs - window.Milliseconds(),
		max,
		fmt.Sprintf("%d:%s", nowMs, uuid.NewString()),
		window.Milliseconds(),
	}
	res, err := slidingWindowScript.Run(ctx, l.Client, []string{l.Prefix + key}, args...).Slice()
	if err != nil {
		return false, 0, now.Add(window), fmt.Errorf("ratelimit %s: %w", key, err)
	}
	if len(res) != 3 {
		return false, 0, now.Add(window), fmt.Errorf("ratelimit %s: unexpected reply %v", key, res)
	}

	ok, _ := res[0].(int64)
	count, _ := res[1].(int64)
	reset = now.Add(window)
	if raw, _ := res[2].(string); raw != "" {
		if oldest, perr := strconv.ParseFloat(raw, 64); perr == nil {
			reset = time.UnixMilli(int64(oldest)).Add(window)
		}
	}
	remaining = max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return ok == 1, remaining, reset, nil
}

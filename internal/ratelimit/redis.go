package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript is an atomic Lua script that implements a fixed-window
// counter. The key's expiry is the window boundary: INCR keeps the TTL set
// by the first request, so the counter vanishes exactly when the window ends.
// KEYS[1] = Redis key
// ARGV[1] = limit (max requests per window)
// ARGV[2] = window size in milliseconds
// Returns: 1 if allowed, 0 if rate limited.
var fixedWindowScript = redis.NewScript(`
		local key    = KEYS[1]
		local limit  = tonumber(ARGV[1])
		local window = tonumber(ARGV[2])

		local count = tonumber(redis.call('GET', key) or '0')
		if count == 0 then
			redis.call('SET', key, 1, 'PX', window)
			return 1
		end

		-- Rejections leave the counter untouched.
		if count >= limit then
			return 0
		end

		redis.call('INCR', key)
		return 1
`)

const keyPrefix = "ratelimit:compare:"

// RedisLimiter is a fixed-window limiter whose counters live in Redis and
// are shared by every replica.
type RedisLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

// NewRedisLimiter creates a RedisLimiter allowing limit requests per window.
// A limit ≤ 0 rejects every request without touching Redis.
func NewRedisLimiter(rdb *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limit: limit, window: window}
}

// Allow implements Limiter. When Redis is unreachable the request is allowed
// and the error is returned for the caller to record.
func (r *RedisLimiter) Allow(ctx context.Context, clientID string) (bool, error) {
	if r.limit <= 0 {
		return false, nil
	}
	result, err := fixedWindowScript.Run(ctx, r.rdb,
		[]string{keyPrefix + clientID},
		r.limit, r.window.Milliseconds(),
	).Int()
	if err != nil {
		// Redis unavailable: allow request (graceful degradation).
		return true, fmt.Errorf("ratelimit: redis: %w", err)
	}

	return result == 1, nil
}

// Ping reports whether the backing Redis answers.
func (r *RedisLimiter) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Package ratelimit implements per-client fixed-window rate limiting.
//
// Two stores are available:
//   - MemoryLimiter: process-local counters, reset on restart. Default.
//   - RedisLimiter: counters shared across replicas via an atomic Lua script.
//
// Both implement Limiter so they are fully interchangeable.
package ratelimit

import "context"

// Limiter decides whether a client may make another request in the current
// window. Allow checks and consumes one unit of quota in a single atomic
// step: two concurrent calls for the same client never both observe the
// last free slot.
//
// A non-nil error reports a store failure. Implementations that degrade open
// return allowed=true alongside the error so callers can log it and proceed.
type Limiter interface {
	Allow(ctx context.Context, clientID string) (bool, error)
}

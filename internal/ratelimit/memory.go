package ratelimit

import (
	"context"
	"sync"
	"time"
)

// entry is the fixed-window state of one client.
type entry struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is an in-process fixed-window limiter.
//
// It is safe for concurrent use. A background goroutine periodically
// removes entries whose window has elapsed so that one-off clients do not
// accumulate forever. Counters are lost on restart and are not shared
// across replicas; use RedisLimiter for that.
type MemoryLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*entry

	done      chan struct{}
	closeOnce sync.Once
}

// MemoryOption customises a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithClock replaces time.Now. Used by tests to step through windows.
func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) { l.now = now }
}

// NewMemoryLimiter creates a MemoryLimiter allowing limit requests per
// window and starts the eviction loop. A limit ≤ 0 rejects every request.
// A sweepEvery ≤ 0 disables the loop.
// The loop stops when ctx is cancelled or Close is called.
func NewMemoryLimiter(ctx context.Context, limit int, window, sweepEvery time.Duration, opts ...MemoryOption) *MemoryLimiter {
	l := &MemoryLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if sweepEvery > 0 {
		go l.sweep(ctx, sweepEvery)
	}
	return l
}

// Allow implements Limiter. It never returns an error.
func (l *MemoryLimiter) Allow(_ context.Context, clientID string) (bool, error) {
	if l.limit <= 0 {
		return false, nil
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[clientID]
	if !ok || now.After(e.resetAt) {
		l.entries[clientID] = &entry{count: 1, resetAt: now.Add(l.window)}
		return true, nil
	}
	if e.count >= l.limit {
		return false, nil
	}
	e.count++
	return true, nil
}

// Len returns the number of tracked clients, including entries whose window
// has elapsed but which have not been swept yet.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Close stops the eviction loop. Safe to call more than once.
func (l *MemoryLimiter) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

func (l *MemoryLimiter) sweep(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictExpired()
		case <-ctx.Done():
			return
		case <-l.done:
			return
		}
	}
}

// evictExpired drops entries whose window has elapsed. Such an entry would
// be reset on its next observation anyway, so dropping it changes nothing
// observable.
func (l *MemoryLimiter) evictExpired() {
	now := l.now()

	l.mu.Lock()
	for k, e := range l.entries {
		if now.After(e.resetAt) {
			delete(l.entries, k)
		}
	}
	l.mu.Unlock()
}

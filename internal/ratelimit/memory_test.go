package ratelimit_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aimantra/ai-compare/internal/ratelimit"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newMemory(t *testing.T, limit int, window time.Duration, clock *fakeClock) *ratelimit.MemoryLimiter {
	t.Helper()
	l := ratelimit.NewMemoryLimiter(context.Background(), limit, window, 0, ratelimit.WithClock(clock.Now))
	t.Cleanup(l.Close)
	return l
}

func mustAllow(t *testing.T, l ratelimit.Limiter, id string, want bool) {
	t.Helper()
	got, err := l.Allow(context.Background(), id)
	if err != nil {
		t.Fatalf("Allow(%q): %v", id, err)
	}
	if got != want {
		t.Fatalf("Allow(%q) = %v, want %v", id, got, want)
	}
}

func TestMemoryLimiter_QuotaThenReject(t *testing.T) {
	clock := newFakeClock()
	l := newMemory(t, 10, time.Hour, clock)

	for i := 0; i < 10; i++ {
		mustAllow(t, l, "1.2.3.4", true)
	}
	mustAllow(t, l, "1.2.3.4", false)
	// Rejections do not consume anything, so the state stays saturated.
	mustAllow(t, l, "1.2.3.4", false)
}

func TestMemoryLimiter_WindowReset(t *testing.T) {
	clock := newFakeClock()
	l := newMemory(t, 2, time.Hour, clock)

	mustAllow(t, l, "c", true)
	mustAllow(t, l, "c", true)
	mustAllow(t, l, "c", false)

	// Exactly at the boundary the window is still active.
	clock.Advance(time.Hour)
	mustAllow(t, l, "c", false)

	clock.Advance(time.Millisecond)
	mustAllow(t, l, "c", true)
	// Reset to count=1, so one more fits.
	mustAllow(t, l, "c", true)
	mustAllow(t, l, "c", false)
}

func TestMemoryLimiter_ClientsAreIndependent(t *testing.T) {
	clock := newFakeClock()
	l := newMemory(t, 1, time.Hour, clock)

	mustAllow(t, l, "a", true)
	mustAllow(t, l, "a", false)
	mustAllow(t, l, "b", true)
	mustAllow(t, l, "anonymous", true)
}

func TestMemoryLimiter_ConcurrentNeverExceedsQuota(t *testing.T) {
	clock := newFakeClock()
	const limit = 25
	l := newMemory(t, limit, time.Hour, clock)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := l.Allow(context.Background(), "same")
			if ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != limit {
		t.Errorf("allowed = %d, want exactly %d", got, limit)
	}
}

func TestMemoryLimiter_SweepEvictsExpired(t *testing.T) {
	clock := newFakeClock()
	l := ratelimit.NewMemoryLimiter(context.Background(), 5, time.Minute, 10*time.Millisecond, ratelimit.WithClock(clock.Now))
	defer l.Close()

	mustAllow(t, l, "x", true)
	mustAllow(t, l, "y", true)
	if l.Len() != 2 {
		t.Fatalf("Len = %d, want 2", l.Len())
	}

	clock.Advance(2 * time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for l.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("entries not evicted, Len = %d", l.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMemoryLimiter_CloseIsIdempotent(t *testing.T) {
	l := ratelimit.NewMemoryLimiter(context.Background(), 1, time.Minute, time.Minute)
	l.Close()
	l.Close()
}

func TestMemoryLimiter_NonPositiveLimitRejects(t *testing.T) {
	l := newMemory(t, 0, time.Hour, newFakeClock())

	mustAllow(t, l, "z", false)
	mustAllow(t, l, "z", false)
	if n := l.Len(); n != 0 {
		t.Errorf("Len = %d, want 0", n)
	}
}

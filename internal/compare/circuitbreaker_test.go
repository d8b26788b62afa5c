package compare

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aimantra/ai-compare/internal/metrics"
	"github.com/aimantra/ai-compare/internal/providers"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClockedBreaker(clock *stepClock) *CircuitBreaker {
	return NewCircuitBreakerWithConfig(catalogNames(providers.Catalog), CBConfig{Clock: clock.Now})
}

func tripBreaker(cb *CircuitBreaker, model string) {
	for i := 0; i < cb.cfg.ErrorThreshold; i++ {
		cb.RecordFailure(model)
	}
}

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb := NewCircuitBreaker()

	for _, s := range providers.Catalog {
		if cb.State(s.Name) != cbClosed {
			t.Errorf("%s should start closed, got %s", s.Name, cb.StateLabel(s.Name))
		}
		if !cb.Allow(s.Name) {
			t.Errorf("%s: closed breaker should allow", s.Name)
		}
	}
}

func TestCircuitBreaker_UnknownModel(t *testing.T) {
	cb := NewCircuitBreaker()
	if !cb.Allow("Mistral") {
		t.Error("unknown model should be allowed")
	}
	cb.RecordSuccess("Mistral")
	cb.RecordFailure("Mistral")
	if cb.State("Mistral") != cbClosed {
		t.Error("unknown model should report closed")
	}
	if _, ok := cb.States()["Mistral"]; ok {
		t.Error("unknown model must not appear in States")
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker()

	for i := 0; i < providers.CBErrorThreshold-1; i++ {
		cb.RecordFailure("Claude")
		if cb.State("Claude") != cbClosed {
			t.Fatalf("should remain closed before threshold, iteration %d", i)
		}
	}
	cb.RecordFailure("Claude")

	if cb.StateLabel("Claude") != "open" {
		t.Fatalf("expected open, got %s", cb.StateLabel("Claude"))
	}
	if cb.Allow("Claude") {
		t.Error("open breaker should reject calls")
	}
	if !cb.Allow("Gemini") {
		t.Error("breakers must be independent")
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker()

	for i := 0; i < providers.CBErrorThreshold-1; i++ {
		cb.RecordFailure("GPT-4")
	}
	cb.RecordSuccess("GPT-4")
	for i := 0; i < providers.CBErrorThreshold-1; i++ {
		cb.RecordFailure("GPT-4")
	}

	if cb.State("GPT-4") != cbClosed {
		t.Error("success should restart the failure count")
	}
}

func TestCircuitBreaker_WindowReset(t *testing.T) {
	clock := newStepClock()
	cb := newClockedBreaker(clock)

	for i := 0; i < providers.CBErrorThreshold-1; i++ {
		cb.RecordFailure("Llama")
	}
	clock.Advance(providers.CBTimeWindow + time.Second)
	cb.RecordFailure("Llama")

	if cb.State("Llama") != cbClosed {
		t.Error("failures outside the window should not trip the breaker")
	}
}

func TestCircuitBreaker_StaysOpenUntilTimeout(t *testing.T) {
	clock := newStepClock()
	cb := newClockedBreaker(clock)
	tripBreaker(cb, "Gemini")

	clock.Advance(providers.CBHalfOpenTimeout - time.Second)
	if cb.Allow("Gemini") {
		t.Fatal("breaker must stay open before the half-open timeout")
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	clock := newStepClock()
	cb := newClockedBreaker(clock)
	tripBreaker(cb, "Gemini")
	clock.Advance(providers.CBHalfOpenTimeout)

	if !cb.Allow("Gemini") {
		t.Fatal("should allow one probe after the half-open timeout")
	}
	if cb.StateLabel("Gemini") != "half_open" {
		t.Fatalf("expected half_open, got %s", cb.StateLabel("Gemini"))
	}
	if cb.Allow("Gemini") {
		t.Error("second call must be rejected while the probe is in flight")
	}

	cb.RecordSuccess("Gemini")
	if cb.State("Gemini") != cbClosed || !cb.Allow("Gemini") {
		t.Error("successful probe should close the breaker")
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newStepClock()
	cb := newClockedBreaker(clock)
	tripBreaker(cb, "Claude")

	// Past the error window too, so only the failed probe can reopen it.
	clock.Advance(providers.CBTimeWindow + time.Second)

	if !cb.Allow("Claude") {
		t.Fatal("expected a probe to be allowed")
	}
	cb.RecordFailure("Claude")

	if cb.State("Claude") != cbOpen {
		t.Errorf("failed probe should reopen the breaker, got %s", cb.StateLabel("Claude"))
	}
	if cb.Allow("Claude") {
		t.Error("reopened breaker should reject calls")
	}
}

func TestCircuitBreaker_OnTransition(t *testing.T) {
	clock := newStepClock()
	cb := newClockedBreaker(clock)

	var seen []string
	cb.OnTransition(func(model string, to cbState) {
		seen = append(seen, model+":"+to.String())
	})

	tripBreaker(cb, "Llama")
	cb.RecordFailure("Llama") // already open, no transition
	clock.Advance(providers.CBHalfOpenTimeout)
	cb.Allow("Llama")
	cb.RecordSuccess("Llama")
	cb.RecordSuccess("Llama") // already closed

	want := []string{"Llama:open", "Llama:half_open", "Llama:closed"}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestCircuitBreaker_TransitionsReachMetrics(t *testing.T) {
	m := metrics.New()
	cb := NewCircuitBreaker()
	NewDispatcher(bindAll(echoProvider("openrouter")), DispatcherOptions{
		Logger:  quietLogger(),
		Metrics: m,
		Breaker: cb,
	})

	tripBreaker(cb, "Claude")

	n, err := testutil.GatherAndCount(m.PromRegistry(), "aicompare_circuit_breaker_state")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != len(providers.Catalog) {
		t.Errorf("state series = %d, want one per model", n)
	}
	if got := cb.States(); got["Claude"] != "open" || got["Gemini"] != "closed" {
		t.Errorf("States = %v", got)
	}
}

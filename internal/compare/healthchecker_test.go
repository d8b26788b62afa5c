package compare

import (
	"context"
	"errors"
	"testing"

	"github.com/aimantra/ai-compare/internal/metrics"
	"github.com/aimantra/ai-compare/internal/providers"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func healthy(name string) *funcProvider { return &funcProvider{name: name} }

func unhealthy(name string) *funcProvider {
	return &funcProvider{name: name, health: func(context.Context) error { return errors.New("down") }}
}

func TestNewHealthChecker_PanicsOnNilContext(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for nil context")
		}
	}()
	//nolint:staticcheck // exercising the nil guard
	NewHealthChecker(nil, nil, nil, nil)
}

func TestHealthChecker_DemoMode(t *testing.T) {
	hc := NewHealthChecker(context.Background(), nil, nil, nil)
	defer hc.Close()

	snap := hc.Snapshot()
	if snap.Mode != ModeDemo || snap.Status != "ok" || len(snap.Backends) != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
	if !hc.ReadinessOK() {
		t.Error("in-memory store should always be ready")
	}
}

func TestHealthChecker_AllHealthy(t *testing.T) {
	hc := NewHealthChecker(context.Background(), map[string]providers.Provider{
		"openrouter": healthy("openrouter"),
		"anthropic":  healthy("anthropic"),
	}, func() bool { return true }, nil)
	defer hc.Close()

	snap := hc.Snapshot()
	if snap.Status != "ok" || snap.Mode != ModeLive {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Backends["openrouter"] != "ok" || snap.Backends["anthropic"] != "ok" {
		t.Errorf("backends = %v", snap.Backends)
	}
	if snap.UptimeSeconds < 0 {
		t.Error("uptime should be non-negative")
	}
}

func TestHealthChecker_DegradedBackend(t *testing.T) {
	m := metrics.New()
	hc := NewHealthChecker(context.Background(), map[string]providers.Provider{
		"openrouter": healthy("openrouter"),
		"groq":       unhealthy("groq"),
	}, nil, m)
	defer hc.Close()

	snap := hc.Snapshot()
	if snap.Status != "degraded" || snap.Backends["groq"] != "degraded" {
		t.Errorf("snapshot = %+v", snap)
	}
	if !hc.ReadinessOK() {
		t.Error("a degraded backend must not fail readiness")
	}
	n, err := testutil.GatherAndCount(m.PromRegistry(), "aicompare_provider_health")
	if err != nil || n != 2 {
		t.Errorf("provider_health series = %d (%v), want 2", n, err)
	}
}

func TestHealthChecker_StoreDown(t *testing.T) {
	hc := NewHealthChecker(context.Background(), nil, func() bool { return false }, nil)
	defer hc.Close()

	if hc.ReadinessOK() {
		t.Error("readiness should fail when the rate-limit store is down")
	}
	snap := hc.Snapshot()
	if snap.RateLimitStore != "down" || snap.Status != "degraded" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestHealthChecker_CloseIsIdempotent(t *testing.T) {
	hc := NewHealthChecker(context.Background(), nil, nil, nil)
	hc.Close()
	hc.Close()
}

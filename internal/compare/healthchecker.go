package compare

import (
	"context"
	"sync"
	"time"

	"github.com/aimantra/ai-compare/internal/metrics"
	"github.com/aimantra/ai-compare/internal/providers"
)

const (
	healthProbeInterval = 30 * time.Second
	healthProbeTimeout  = 5 * time.Second
)

const (
	ModeLive = "live"
	ModeDemo = "demo"
)

// componentStatus holds the last known result for one probed component.
type componentStatus struct {
	mu     sync.RWMutex
	status string // "ok" | "degraded" | "down"
}

func (s *componentStatus) set(v string) {
	s.mu.Lock()
	s.status = v
	s.mu.Unlock()
}

func (s *componentStatus) get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status == "" {
		return "unknown"
	}
	return s.status
}

// HealthChecker probes each configured backend and the rate-limit store in
// the background and serves the latest results.
type HealthChecker struct {
	backends   map[string]providers.Provider
	storeReady func() bool
	mode       string
	baseCtx    context.Context
	metrics    *metrics.Registry
	// models, when set, reports each compared model's breaker state.
	models func() map[string]string

	backendStatuses map[string]*componentStatus
	storeStatus     componentStatus

	startTime time.Time
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewHealthChecker runs a first probe synchronously and then starts the
// background loop. backends is keyed by backend name; a nil storeReady means
// the store needs no probing (in-memory limiter).
func NewHealthChecker(
	ctx context.Context,
	backends map[string]providers.Provider,
	storeReady func() bool,
	met *metrics.Registry,
) *HealthChecker {
	if ctx == nil {
		panic("healthchecker: context must not be nil")
	}
	mode := ModeDemo
	if len(backends) > 0 {
		mode = ModeLive
	}
	hc := &HealthChecker{
		backends:        backends,
		storeReady:      storeReady,
		mode:            mode,
		backendStatuses: make(map[string]*componentStatus, len(backends)),
		startTime:       time.Now(),
		done:            make(chan struct{}),
		baseCtx:         ctx,
		metrics:         met,
	}

	for name := range backends {
		hc.backendStatuses[name] = &componentStatus{status: "unknown"}
	}

	hc.probe()

	hc.wg.Add(1)
	go hc.run()

	return hc
}

// HealthSnapshot is the body of GET /health.
type HealthSnapshot struct {
	Status         string            `json:"status"`
	Mode           string            `json:"mode"`
	UptimeSeconds  int64             `json:"uptime_seconds"`
	Backends       map[string]string `json:"backends"`
	Models         map[string]string `json:"models,omitempty"`
	RateLimitStore string            `json:"rate_limit_store"`
}

// Snapshot reports "degraded" overall when any component is not "ok". An
// open model breaker counts as degraded too.
func (hc *HealthChecker) Snapshot() HealthSnapshot {
	overall := "ok"

	backends := make(map[string]string, len(hc.backendStatuses))
	for name, s := range hc.backendStatuses {
		st := s.get()
		backends[name] = st
		if st != "ok" {
			overall = "degraded"
		}
	}

	store := hc.storeStatus.get()
	if store != "ok" {
		overall = "degraded"
	}

	var models map[string]string
	if hc.models != nil {
		models = hc.models()
		for _, st := range models {
			if st == cbOpen.String() {
				overall = "degraded"
			}
		}
	}

	return HealthSnapshot{
		Status:         overall,
		Mode:           hc.mode,
		UptimeSeconds:  int64(time.Since(hc.startTime).Seconds()),
		Backends:       backends,
		Models:         models,
		RateLimitStore: store,
	}
}

// ReadinessOK reports whether the rate-limit store answered the last probe.
func (hc *HealthChecker) ReadinessOK() bool {
	return hc.storeStatus.get() == "ok"
}

func (hc *HealthChecker) Close() {
	hc.closeOnce.Do(func() { close(hc.done) })
	hc.wg.Wait()
}

func (hc *HealthChecker) run() {
	defer hc.wg.Done()
	ticker := time.NewTicker(healthProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			hc.probe()
		case <-hc.done:
			return
		}
	}
}

func (hc *HealthChecker) probe() {
	ctx, cancel := context.WithTimeout(hc.baseCtx, healthProbeTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for name, prov := range hc.backends {
		s := hc.backendStatuses[name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok := prov.HealthCheck(ctx) == nil
			if ok {
				s.set("ok")
			} else {
				s.set("degraded")
			}
			if hc.metrics != nil {
				hc.metrics.SetProviderHealth(name, ok)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if hc.storeReady == nil || hc.storeReady() {
			hc.storeStatus.set("ok")
		} else {
			hc.storeStatus.set("down")
		}
	}()

	wg.Wait()
}

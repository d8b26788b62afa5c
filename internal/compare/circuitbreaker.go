package compare

import (
	"sync"
	"time"

	"github.com/aimantra/ai-compare/internal/providers"
)

// cbState is the operational state of one model's breaker. The numeric
// values are exported as the aicompare_circuit_breaker_state gauge.
//
//	cbClosed   calls pass through.
//	cbOpen     the model keeps failing; it is reported unavailable without a call.
//	cbHalfOpen one comparison is allowed to ask the model again.
type cbState int

const (
	cbClosed   cbState = 0
	cbOpen     cbState = 1
	cbHalfOpen cbState = 2
)

func (s cbState) String() string {
	switch s {
	case cbOpen:
		return "open"
	case cbHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CBConfig holds circuit breaker tuning. Zero values fall back to the
// defaults in the providers package.
type CBConfig struct {
	// ErrorThreshold is the number of failures within TimeWindow that trips
	// the breaker.
	ErrorThreshold int
	TimeWindow     time.Duration
	// HalfOpenTimeout is how long the breaker stays open before a probe.
	HalfOpenTimeout time.Duration
	// Clock replaces time.Now.
	Clock func() time.Time
}

func (c CBConfig) withDefaults() CBConfig {
	if c.ErrorThreshold <= 0 {
		c.ErrorThreshold = providers.CBErrorThreshold
	}
	if c.TimeWindow <= 0 {
		c.TimeWindow = providers.CBTimeWindow
	}
	if c.HalfOpenTimeout <= 0 {
		c.HalfOpenTimeout = providers.CBHalfOpenTimeout
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

type modelBreaker struct {
	mu sync.Mutex

	state       cbState
	failures    int
	windowStart time.Time
	openedAt    time.Time
	probing     bool
}

// CircuitBreaker keeps one breaker per compared model, keyed by the catalog
// display name, so a model that keeps failing stops costing every comparison
// a full provider timeout. The set of models is fixed at construction.
type CircuitBreaker struct {
	cfg      CBConfig
	models   map[string]*modelBreaker
	order    []string
	observer func(model string, to cbState)
}

// NewCircuitBreaker creates breakers with default thresholds for every entry
// in providers.Catalog.
func NewCircuitBreaker() *CircuitBreaker {
	return NewCircuitBreakerWithConfig(catalogNames(providers.Catalog), CBConfig{})
}

// NewCircuitBreakerWithConfig creates one closed breaker per model name.
func NewCircuitBreakerWithConfig(names []string, cfg CBConfig) *CircuitBreaker {
	cfg = cfg.withDefaults()
	cb := &CircuitBreaker{
		cfg:    cfg,
		models: make(map[string]*modelBreaker, len(names)),
		order:  append([]string(nil), names...),
	}
	now := cfg.Clock()
	for _, name := range names {
		cb.models[name] = &modelBreaker{windowStart: now}
	}
	return cb
}

// OnTransition registers fn to be called after a model's breaker changes
// state. It must be set before the breaker is shared between goroutines.
func (cb *CircuitBreaker) OnTransition(fn func(model string, to cbState)) {
	cb.observer = fn
}

// Allow reports whether the named model should be asked in this comparison.
// An open breaker lets exactly one caller through once HalfOpenTimeout has
// passed; everyone else keeps getting false until that probe reports back.
// Unknown names are always allowed.
func (cb *CircuitBreaker) Allow(model string) bool {
	m := cb.models[model]
	if m == nil {
		return true
	}

	m.mu.Lock()
	allowed, moved := true, false
	switch m.state {
	case cbOpen:
		if cb.cfg.Clock().Sub(m.openedAt) < cb.cfg.HalfOpenTimeout {
			allowed = false
			break
		}
		m.state, m.probing, moved = cbHalfOpen, true, true
	case cbHalfOpen:
		allowed = !m.probing
		m.probing = true
	}
	m.mu.Unlock()

	if moved {
		cb.notify(model, cbHalfOpen)
	}
	return allowed
}

// RecordSuccess closes the breaker for model.
func (cb *CircuitBreaker) RecordSuccess(model string) {
	m := cb.models[model]
	if m == nil {
		return
	}

	m.mu.Lock()
	from := m.state
	m.state = cbClosed
	m.failures = 0
	m.probing = false
	m.windowStart = cb.cfg.Clock()
	m.mu.Unlock()

	if from != cbClosed {
		cb.notify(model, cbClosed)
	}
}

// RecordFailure counts a failed call. ErrorThreshold failures inside
// TimeWindow open the breaker, and a failed probe reopens it at once.
func (cb *CircuitBreaker) RecordFailure(model string) {
	m := cb.models[model]
	if m == nil {
		return
	}

	m.mu.Lock()
	now := cb.cfg.Clock()
	if now.Sub(m.windowStart) > cb.cfg.TimeWindow {
		m.failures = 0
		m.windowStart = now
	}
	m.failures++

	from := m.state
	m.probing = false
	if from == cbHalfOpen || (from == cbClosed && m.failures >= cb.cfg.ErrorThreshold) {
		m.state = cbOpen
		m.openedAt = now
	}
	to := m.state
	m.mu.Unlock()

	if to != from {
		cb.notify(model, to)
	}
}

func (cb *CircuitBreaker) State(model string) cbState {
	m := cb.models[model]
	if m == nil {
		return cbClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StateLabel returns "closed", "open" or "half_open".
func (cb *CircuitBreaker) StateLabel(model string) string {
	return cb.State(model).String()
}

// States returns every model's state label, as shown on /health.
func (cb *CircuitBreaker) States() map[string]string {
	out := make(map[string]string, len(cb.order))
	for _, name := range cb.order {
		out[name] = cb.StateLabel(name)
	}
	return out
}

func (cb *CircuitBreaker) notify(model string, to cbState) {
	if cb.observer != nil {
		cb.observer(model, to)
	}
}

func catalogNames(specs []providers.Spec) []string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}

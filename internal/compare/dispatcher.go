package compare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aimantra/ai-compare/internal/metrics"
	"github.com/aimantra/ai-compare/internal/providers"
)

// Result is one model's entry in the comparison response.
type Result struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Icon     string `json:"icon"`
	Color    string `json:"color"`
	Failed   bool   `json:"failed,omitempty"`
}

// Failure reasons used in logs and the aicompare_provider_errors_total metric.
const (
	errUnconfigured = "unconfigured"
	errCircuitOpen  = "circuit_open"
	errTimeout      = "timeout"
	errCanceled     = "canceled"
	errNoContent    = "no_content"
	errUpstream     = "upstream_error"
)

// DispatcherOptions tunes the per-call request. Zero values use the
// providers package defaults. Temperature is a pointer because 0 is a valid
// setting; nil selects the default.
type DispatcherOptions struct {
	Logger          *slog.Logger
	Metrics         *metrics.Registry
	Breaker         *CircuitBreaker
	MaxTokens       int
	Temperature     *float64
	ProviderTimeout time.Duration
}

// Dispatcher fans one prompt out to every bound catalog entry.
type Dispatcher struct {
	bindings    []providers.Binding
	cb          *CircuitBreaker
	log         *slog.Logger
	metrics     *metrics.Registry
	maxTokens   int
	temperature float64
	timeout     time.Duration
}

func NewDispatcher(bindings []providers.Binding, opts DispatcherOptions) *Dispatcher {
	d := &Dispatcher{
		bindings:    bindings,
		cb:          opts.Breaker,
		log:         opts.Logger,
		metrics:     opts.Metrics,
		maxTokens:   opts.MaxTokens,
		temperature: providers.Temperature,
		timeout:     opts.ProviderTimeout,
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	if d.maxTokens <= 0 {
		d.maxTokens = providers.MaxTokens
	}
	if opts.Temperature != nil {
		d.temperature = *opts.Temperature
	}
	if d.timeout <= 0 {
		d.timeout = providers.ProviderTimeout
	}
	if d.cb != nil && d.metrics != nil {
		for _, b := range bindings {
			d.metrics.SetCircuitBreaker(b.Spec.Name, int64(d.cb.State(b.Spec.Name)))
		}
		d.cb.OnTransition(func(model string, to cbState) {
			d.metrics.SetCircuitBreaker(model, int64(to))
		})
	}
	return d
}

// Live reports whether at least one catalog entry has a backend.
func (d *Dispatcher) Live() bool {
	return providers.Live(d.bindings)
}

// Specs returns the catalog entries in result order.
func (d *Dispatcher) Specs() []providers.Spec {
	specs := make([]providers.Spec, len(d.bindings))
	for i, b := range d.bindings {
		specs[i] = b.Spec
	}
	return specs
}

// Dispatch calls every entry concurrently and waits for all of them. The
// result has exactly one element per binding, in binding order; a model that
// fails for any reason yields its unavailable message with Failed set.
func (d *Dispatcher) Dispatch(ctx context.Context, prompt, requestID string) []Result {
	results := make([]Result, len(d.bindings))

	var g errgroup.Group
	for i, b := range d.bindings {
		g.Go(func() error {
			results[i] = d.call(ctx, b, prompt, requestID)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (d *Dispatcher) call(ctx context.Context, b providers.Binding, prompt, requestID string) Result {
	name := b.Spec.Name

	if b.Provider == nil {
		d.fail(ctx, b, requestID, errUnconfigured, nil)
		return unavailable(b.Spec)
	}
	if d.cb != nil && !d.cb.Allow(name) {
		if d.metrics != nil {
			d.metrics.RecordCircuitBreakerRejection(name, d.cb.StateLabel(name))
		}
		d.fail(ctx, b, requestID, errCircuitOpen, nil)
		return unavailable(b.Spec)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	resp, err := b.Provider.Complete(callCtx, &providers.CompletionRequest{
		Model:       b.Model,
		Messages:    []providers.Message{{Role: "user", Content: prompt}},
		Temperature: d.temperature,
		MaxTokens:   d.maxTokens,
		RequestID:   requestID,
	})
	if err == nil && (resp == nil || resp.Content == "") {
		err = providers.ErrNoContent
	}
	dur := time.Since(start)

	if err != nil {
		d.recordBreaker(name, false)
		reason := classifyError(err)
		if d.metrics != nil {
			d.metrics.ObserveUpstreamAttempt(name, b.Provider.Name(), reason, dur)
		}
		d.fail(ctx, b, requestID, reason, err)
		return unavailable(b.Spec)
	}

	d.recordBreaker(name, true)
	if d.metrics != nil {
		d.metrics.ObserveUpstreamAttempt(name, b.Provider.Name(), "success", dur)
		d.metrics.AddTokens(name, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}

	return Result{
		Model:    name,
		Response: resp.Content,
		Icon:     b.Spec.Icon,
		Color:    b.Spec.Color,
	}
}

func (d *Dispatcher) recordBreaker(name string, ok bool) {
	if d.cb == nil {
		return
	}
	if ok {
		d.cb.RecordSuccess(name)
	} else {
		d.cb.RecordFailure(name)
	}
}

func (d *Dispatcher) fail(ctx context.Context, b providers.Binding, requestID, reason string, err error) {
	if d.metrics != nil {
		d.metrics.RecordError(b.Spec.Name, reason)
	}
	attrs := []any{
		slog.String("request_id", requestID),
		slog.String("model", b.Spec.Name),
		slog.String("reason", reason),
	}
	if b.Provider != nil {
		attrs = append(attrs, slog.String("backend", b.Provider.Name()))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	d.log.WarnContext(ctx, "model_unavailable", attrs...)
}

// classifyError maps a provider error to a short metric label.
func classifyError(err error) string {
	var sc providers.StatusCoder
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errTimeout
	case errors.Is(err, context.Canceled):
		return errCanceled
	case errors.Is(err, providers.ErrNoContent):
		return errNoContent
	case errors.As(err, &sc) && sc.HTTPStatus() > 0:
		return fmt.Sprintf("http_%d", sc.HTTPStatus())
	default:
		return errUpstream
	}
}

func unavailable(s providers.Spec) Result {
	return Result{
		Model:    s.Name,
		Response: UnavailableMessage(s.Name),
		Icon:     s.Icon,
		Color:    s.Color,
		Failed:   true,
	}
}

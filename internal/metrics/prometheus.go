// Package metrics provides a Prometheus metrics registry for the comparison
// service.
//
// All metrics are scoped to a private registry (not the global default) so
// they don't interfere with host-level metrics when embedded in other
// applications. The /metrics HTTP handler is exposed via Handler().
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60}

// Registry holds all exported metrics.
type Registry struct {
	reg *prometheus.Registry

	// aicompare_inflight_requests
	inFlight prometheus.Gauge

	// aicompare_http_requests_total{route,status}
	httpRequestsTotal *prometheus.CounterVec

	// aicompare_http_request_duration_seconds{route}
	httpDuration *prometheus.HistogramVec

	// aicompare_http_request_size_bytes{route}
	httpReqSize *prometheus.HistogramVec

	// aicompare_http_response_size_bytes{route,status}
	httpRespSize *prometheus.HistogramVec

	// aicompare_comparisons_total{mode}
	comparisons *prometheus.CounterVec

	// aicompare_comparison_failed_models: failed entries per live comparison
	failedModels prometheus.Histogram

	// aicompare_upstream_attempts_total{model,backend,outcome}
	upstreamAttempts *prometheus.CounterVec

	// aicompare_upstream_attempt_duration_seconds{model,backend,outcome}
	upstreamDuration *prometheus.HistogramVec

	// aicompare_provider_errors_total{model,error_type}
	providerErrors *prometheus.CounterVec

	// aicompare_tokens_total{model,direction}
	tokensTotal *prometheus.CounterVec

	// aicompare_ratelimit_total{result}
	rateLimitTotal *prometheus.CounterVec

	// aicompare_validation_rejections_total{reason}
	validationRejections *prometheus.CounterVec

	// aicompare_circuit_breaker_state{model}: 0=closed, 1=open, 2=half-open
	circuitBreakerState *prometheus.GaugeVec

	// aicompare_circuit_breaker_transitions_total{model,to_state}
	cbTransitions *prometheus.CounterVec

	// aicompare_circuit_breaker_rejections_total{model,state}
	cbRejections *prometheus.CounterVec

	// aicompare_provider_health{backend}
	providerHealth *prometheus.GaugeVec

	// aicompare_build_info{version,mode}
	buildInfo *prometheus.GaugeVec

	cbMu        sync.Mutex
	lastCBState map[string]float64

	metricsHandler fasthttp.RequestHandler
}

func New() *Registry {
	reg := prometheus.NewRegistry()

	// Baseline runtime metrics even with a private registry.
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	r := &Registry{
		reg:         reg,
		lastCBState: make(map[string]float64),

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aicompare_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aicompare_http_requests_total",
				Help: "Total number of HTTP requests handled",
			},
			[]string{"route", "status"},
		),

		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aicompare_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds (end-to-end, includes the slowest upstream)",
				Buckets: latencyBuckets,
			},
			[]string{"route"},
		),

		httpReqSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aicompare_http_request_size_bytes",
				Help:    "HTTP request body size in bytes",
				Buckets: prometheus.ExponentialBuckets(64, 2, 10), // 64B .. ~32KB
			},
			[]string{"route"},
		),

		httpRespSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aicompare_http_response_size_bytes",
				Help:    "HTTP response body size in bytes",
				Buckets: prometheus.ExponentialBuckets(64, 2, 12), // 64B .. ~128KB
			},
			[]string{"route", "status"},
		),

		comparisons: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aicompare_comparisons_total",
				Help: "Completed comparisons by mode (live or demo)",
			},
			[]string{"mode"},
		),

		failedModels: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aicompare_comparison_failed_models",
			Help:    "Number of models that failed within a single live comparison",
			Buckets: []float64{0, 1, 2, 3, 4},
		}),

		upstreamAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aicompare_upstream_attempts_total",
				Help: "Total upstream model calls",
			},
			[]string{"model", "backend", "outcome"},
		),

		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aicompare_upstream_attempt_duration_seconds",
				Help:    "Upstream model call duration in seconds",
				Buckets: latencyBuckets,
			},
			[]string{"model", "backend", "outcome"},
		),

		providerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aicompare_provider_errors_total",
				Help: "Total upstream errors by type",
			},
			[]string{"model", "error_type"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aicompare_tokens_total",
				Help: "Token usage totals derived from upstream usage fields",
			},
			[]string{"model", "direction"},
		),

		rateLimitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aicompare_ratelimit_total",
				Help: "Rate limit decisions",
			},
			[]string{"result"},
		),

		validationRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aicompare_validation_rejections_total",
				Help: "Prompts rejected by validation, by reason",
			},
			[]string{"reason"},
		),

		circuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aicompare_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed,1=open,2=half-open)",
			},
			[]string{"model"},
		),

		cbTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aicompare_circuit_breaker_transitions_total",
				Help: "Circuit breaker transitions to a new state",
			},
			[]string{"model", "to_state"},
		),

		cbRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aicompare_circuit_breaker_rejections_total",
				Help: "Model calls skipped due to circuit breaker state",
			},
			[]string{"model", "state"},
		),

		providerHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aicompare_provider_health",
				Help: "Upstream backend health status (1=ok, 0=degraded)",
			},
			[]string{"backend"},
		),

		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aicompare_build_info",
				Help: "Build information",
			},
			[]string{"version", "mode"},
		),
	}

	reg.MustRegister(
		r.inFlight,
		r.httpRequestsTotal,
		r.httpDuration,
		r.httpReqSize,
		r.httpRespSize,
		r.comparisons,
		r.failedModels,
		r.upstreamAttempts,
		r.upstreamDuration,
		r.providerErrors,
		r.tokensTotal,
		r.rateLimitTotal,
		r.validationRejections,
		r.circuitBreakerState,
		r.cbTransitions,
		r.cbRejections,
		r.providerHealth,
		r.buildInfo,
	)

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	r.metricsHandler = fasthttpadaptor.NewFastHTTPHandler(h)

	return r
}

func (r *Registry) IncInFlight() { r.inFlight.Inc() }
func (r *Registry) DecInFlight() { r.inFlight.Dec() }

// ObserveHTTP records end-to-end HTTP metrics.
func (r *Registry) ObserveHTTP(route string, statusCode int, dur time.Duration, reqBytes, respBytes int) {
	status := strconv.Itoa(statusCode)
	r.httpRequestsTotal.WithLabelValues(route, status).Inc()
	r.httpDuration.WithLabelValues(route).Observe(dur.Seconds())
	if reqBytes >= 0 {
		r.httpReqSize.WithLabelValues(route).Observe(float64(reqBytes))
	}
	if respBytes >= 0 {
		r.httpRespSize.WithLabelValues(route, status).Observe(float64(respBytes))
	}
}

// RecordComparison counts a completed comparison. failed is only observed
// for live comparisons.
func (r *Registry) RecordComparison(demo bool, failed int) {
	if demo {
		r.comparisons.WithLabelValues("demo").Inc()
		return
	}
	r.comparisons.WithLabelValues("live").Inc()
	r.failedModels.Observe(float64(failed))
}

// ObserveUpstreamAttempt records one upstream model call.
func (r *Registry) ObserveUpstreamAttempt(model, backend, outcome string, dur time.Duration) {
	r.upstreamAttempts.WithLabelValues(model, backend, outcome).Inc()
	r.upstreamDuration.WithLabelValues(model, backend, outcome).Observe(dur.Seconds())
}

func (r *Registry) AddTokens(model string, inputTokens, outputTokens int) {
	if inputTokens > 0 {
		r.tokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		r.tokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

func (r *Registry) RecordRateLimit(result string) {
	r.rateLimitTotal.WithLabelValues(result).Inc()
}

func (r *Registry) RecordValidationRejection(reason string) {
	r.validationRejections.WithLabelValues(reason).Inc()
}

func (r *Registry) RecordError(model, errType string) {
	r.providerErrors.WithLabelValues(model, errType).Inc()
}

func (r *Registry) SetProviderHealth(backend string, ok bool) {
	if ok {
		r.providerHealth.WithLabelValues(backend).Set(1)
		return
	}
	r.providerHealth.WithLabelValues(backend).Set(0)
}

func (r *Registry) SetBuildInfo(version string, demo bool) {
	mode := "live"
	if demo {
		mode = "demo"
	}
	// Gauge is used so the time series always exists.
	r.buildInfo.WithLabelValues(version, mode).Set(1)
}

// SetCircuitBreaker sets the circuit breaker state gauge and increments a
// transition counter when the state changes.
func (r *Registry) SetCircuitBreaker(model string, state int64) {
	r.circuitBreakerState.WithLabelValues(model).Set(float64(state))

	r.cbMu.Lock()
	prev, ok := r.lastCBState[model]
	if !ok || prev != float64(state) {
		r.lastCBState[model] = float64(state)
		r.cbTransitions.WithLabelValues(model, strconv.FormatInt(state, 10)).Inc()
	}
	r.cbMu.Unlock()
}

func (r *Registry) RecordCircuitBreakerRejection(model, state string) {
	r.cbRejections.WithLabelValues(model, state).Inc()
}

func (r *Registry) Handler() fasthttp.RequestHandler {
	return r.metricsHandler
}

func (r *Registry) PromRegistry() *prometheus.Registry { return r.reg }

// Package compare serves the model comparison endpoint.
//
// A POST to ComparePath is rate limited per client, validated, and then fanned
// out to every catalog model at once. The response always lists one result
// per model in catalog order; a model that fails is reported inline and never
// fails the whole request. When no backend is configured the service answers
// with canned demo responses instead.
//
// Rate limiter, request logger and metrics are optional and nil-safe.
package compare

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/aimantra/ai-compare/internal/filter"
	"github.com/aimantra/ai-compare/internal/logger"
	"github.com/aimantra/ai-compare/internal/metrics"
	"github.com/aimantra/ai-compare/internal/providers"
	"github.com/aimantra/ai-compare/internal/ratelimit"
	"github.com/aimantra/ai-compare/pkg/apierr"
)

// ComparePath is the route of the comparison endpoint.
const ComparePath = "/api/ai-compare"

const (
	rejectRateLimited = "rate_limited"
	rejectBadBody     = "invalid_body"
)

// ServiceOptions holds the optional collaborators of a Service.
type ServiceOptions struct {
	Logger  *slog.Logger
	Metrics *metrics.Registry

	// RateWindow is reported to rejected callers as retryAfter. Default: 1h.
	RateWindow time.Duration

	// ExposeErrorDetails adds the underlying error text to 500 responses.
	ExposeErrorDetails bool

	// StoreReady probes the rate-limit store for /readiness. Nil means the
	// store is in-process and always ready.
	StoreReady func() bool
}

type Service struct {
	dispatcher *Dispatcher
	limiter    ratelimit.Limiter
	filter     *filter.Filter
	health     *HealthChecker

	baseCtx context.Context
	log     *slog.Logger
	metrics *metrics.Registry

	window        time.Duration
	exposeDetails bool

	reqLogger   *logger.Logger
	corsOrigins []string

	srv *fasthttp.Server
}

// NewService builds the comparison service and starts health probes for the
// distinct backends behind d. limiter may be nil to disable rate limiting.
func NewService(
	baseCtx context.Context,
	d *Dispatcher,
	limiter ratelimit.Limiter,
	f *filter.Filter,
	opts ServiceOptions,
) *Service {
	if baseCtx == nil {
		panic("compare: context must not be nil")
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	window := opts.RateWindow
	if window <= 0 {
		window = time.Hour
	}

	s := &Service{
		dispatcher:    d,
		limiter:       limiter,
		filter:        f,
		baseCtx:       baseCtx,
		log:           log,
		metrics:       opts.Metrics,
		window:        window,
		exposeDetails: opts.ExposeErrorDetails,
	}
	s.health = NewHealthChecker(baseCtx, backendsOf(d.bindings), opts.StoreReady, s.metrics)
	if d.cb != nil {
		s.health.models = d.cb.States
	}

	return s
}

// SetLogger injects the async comparison logger.
func (s *Service) SetLogger(l *logger.Logger) {
	s.reqLogger = l
}

func (s *Service) SetCORSOrigins(origins []string) {
	s.corsOrigins = origins
}

// Close stops the background health probes.
func (s *Service) Close() {
	s.health.Close()
}

type compareResponse struct {
	Success   bool     `json:"success"`
	Responses []Result `json:"responses"`
	Demo      bool     `json:"demo"`
}

func (s *Service) handleCompare(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	reqBytes := len(ctx.PostBody())
	reqID, _ := ctx.UserValue("request_id").(string)
	client := clientIdentifier(ctx)

	entry := logger.ComparisonLog{
		RequestID: reqID,
		ClientID:  client,
		CreatedAt: start,
	}

	if s.metrics != nil {
		s.metrics.IncInFlight()
	}
	defer func() {
		status := ctx.Response.StatusCode()
		dur := time.Since(start)
		if s.metrics != nil {
			s.metrics.DecInFlight()
			s.metrics.ObserveHTTP("compare", status, dur, reqBytes, len(ctx.Response.Body()))
		}
		if s.reqLogger != nil {
			entry.Status = uint16(status)
			entry.LatencyMs = uint32(dur.Milliseconds())
			s.reqLogger.Log(entry)
		}
	}()

	// 1. Rate limit.
	if !s.allow(ctx, client, reqID) {
		entry.Rejection = rejectRateLimited
		s.log.InfoContext(ctx, "rate_limit_exceeded",
			slog.String("request_id", reqID),
			slog.String("client_id", client),
		)
		apierr.WriteRateLimit(ctx, s.window)
		return
	}

	// 2. Parse body. Malformed JSON is a server-side parse failure; any
	// well-formed body without a string prompt is left to the validator.
	var body any
	if err := json.Unmarshal(ctx.PostBody(), &body); err != nil {
		entry.Rejection = rejectBadBody
		s.log.WarnContext(ctx, "compare_bad_body",
			slog.String("request_id", reqID),
			slog.String("error", err.Error()),
		)
		details := ""
		if s.exposeDetails {
			details = err.Error()
		}
		apierr.WriteInternal(ctx, details)
		return
	}
	var raw any
	if obj, ok := body.(map[string]any); ok {
		raw = obj["prompt"]
	}

	// 3. Validate.
	prompt, err := s.filter.Validate(raw)
	if err != nil {
		reason := filter.Reason(err)
		entry.Rejection = reason
		if s.metrics != nil {
			s.metrics.RecordValidationRejection(reason)
		}
		apierr.Write(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}

	// 4. Fan out, or answer with demo text when nothing is configured.
	demo := !s.dispatcher.Live()
	var results []Result
	if demo {
		results = DemoResponses(s.dispatcher.Specs(), prompt)
	} else {
		results = s.dispatcher.Dispatch(s.baseCtx, prompt, reqID)
	}

	failed := 0
	for _, r := range results {
		if r.Failed {
			failed++
		}
	}
	entry.Demo = demo
	entry.Models = uint8(len(results))
	entry.Failed = uint8(failed)
	if s.metrics != nil {
		s.metrics.RecordComparison(demo, failed)
	}

	s.log.InfoContext(ctx, "compare_request",
		slog.String("request_id", reqID),
		slog.Bool("demo", demo),
		slog.Int("models", len(results)),
		slog.Int("failed", failed),
		slog.Duration("latency", time.Since(start)),
	)

	writeJSON(ctx, compareResponse{Success: true, Responses: results, Demo: demo})
}

// allow consults the limiter. A store error lets the request through.
func (s *Service) allow(ctx *fasthttp.RequestCtx, client, reqID string) bool {
	if s.limiter == nil {
		return true
	}
	ok, err := s.limiter.Allow(s.baseCtx, client)
	switch {
	case err != nil:
		s.log.WarnContext(ctx, "ratelimit_unavailable",
			slog.String("request_id", reqID),
			slog.String("error", err.Error()),
		)
		s.recordRateLimit("error")
	case ok:
		s.recordRateLimit("allowed")
	default:
		s.recordRateLimit("rejected")
	}
	return ok
}

func (s *Service) recordRateLimit(result string) {
	if s.metrics != nil {
		s.metrics.RecordRateLimit(result)
	}
}

// backendsOf returns the distinct clients behind bindings, keyed by name.
func backendsOf(bindings []providers.Binding) map[string]providers.Provider {
	out := make(map[string]providers.Provider)
	for _, b := range bindings {
		if b.Provider != nil {
			out[b.Provider.Name()] = b.Provider
		}
	}
	return out
}

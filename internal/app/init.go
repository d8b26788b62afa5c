package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aimantra/ai-compare/internal/compare"
	"github.com/aimantra/ai-compare/internal/config"
	"github.com/aimantra/ai-compare/internal/filter"
	"github.com/aimantra/ai-compare/internal/logger"
	"github.com/aimantra/ai-compare/internal/metrics"
	"github.com/aimantra/ai-compare/internal/providers"
	"github.com/aimantra/ai-compare/internal/ratelimit"
)

// initInfra establishes optional external connections.
// Redis is only required when RATE_LIMIT_BACKEND=redis.
func (a *App) initInfra(ctx context.Context) error {
	if a.cfg.RateLimit.Backend == config.RateLimitRedis {
		a.log.Info("connecting to redis", slog.String("url", redactURL(a.cfg.Redis.URL)))

		rdb, err := connectRedis(ctx, a.cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb
		a.log.Info("redis connected")
	}

	return nil
}

// initProviders builds the upstream clients and binds them to the catalog.
// No key at all is valid: every entry stays unbound and the service runs in
// demo mode.
func (a *App) initProviders(ctx context.Context) error {
	direct, err := buildDirect(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.bindings = providers.Bind(providers.Catalog, direct, buildRouter(a.cfg))

	if !providers.Live(a.bindings) {
		a.log.Warn("no provider API key configured, serving demo responses")
	}

	return nil
}

// initServices creates the metrics registry, prompt filter, rate limiter and
// request logger.
func (a *App) initServices(ctx context.Context) error {
	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version, !providers.Live(a.bindings))

	f, err := filter.New(a.cfg.Content.MaxPromptLength, a.cfg.Content.Denylist, a.cfg.Content.DenyPatterns)
	if err != nil {
		return fmt.Errorf("content filter: %w", err)
	}
	a.filter = f

	switch a.cfg.RateLimit.Backend {
	case config.RateLimitRedis:
		rl := ratelimit.NewRedisLimiter(a.rdb, a.cfg.RateLimit.Requests, a.cfg.RateLimit.Window)
		a.limiter = rl
		a.storeReady = storePinger(a.baseCtx, rl)
		a.log.Info("rate limit store: redis")

	case config.RateLimitMemory:
		a.memLimiter = ratelimit.NewMemoryLimiter(ctx,
			a.cfg.RateLimit.Requests, a.cfg.RateLimit.Window, a.cfg.RateLimit.SweepInterval)
		a.limiter = a.memLimiter
		a.log.Info("rate limit store: memory (in-process)")

	default:
		return fmt.Errorf("unknown rate limit backend: %s", a.cfg.RateLimit.Backend)
	}
	a.log.Info("rate limiting enabled",
		slog.Int("requests", a.cfg.RateLimit.Requests),
		slog.Duration("window", a.cfg.RateLimit.Window),
	)

	reqLogger, err := logger.New(a.baseCtx, a.log)
	if err != nil {
		return fmt.Errorf("request logger: %w", err)
	}
	a.reqLogger = reqLogger

	return nil
}

// initCompare wires the comparison service with all configured subsystems.
func (a *App) initCompare(_ context.Context) error {
	cb := compare.NewCircuitBreakerWithConfig(
		specNames(providers.Catalog),
		compare.CBConfig{
			ErrorThreshold:  a.cfg.CircuitBreaker.ErrorThreshold,
			TimeWindow:      a.cfg.CircuitBreaker.TimeWindow,
			HalfOpenTimeout: a.cfg.CircuitBreaker.HalfOpenTimeout,
		},
	)

	temperature := a.cfg.Completion.Temperature
	d := compare.NewDispatcher(a.bindings, compare.DispatcherOptions{
		Logger:          a.log,
		Metrics:         a.prom,
		Breaker:         cb,
		MaxTokens:       a.cfg.Completion.MaxTokens,
		Temperature:     &temperature,
		ProviderTimeout: a.cfg.Completion.ProviderTimeout,
	})

	svc := compare.NewService(a.baseCtx, d, a.limiter, a.filter, compare.ServiceOptions{
		Logger:             a.log,
		Metrics:            a.prom,
		RateWindow:         a.cfg.RateLimit.Window,
		ExposeErrorDetails: a.cfg.ExposeErrorDetails(),
		StoreReady:         a.storeReady,
	})
	svc.SetLogger(a.reqLogger)
	svc.SetCORSOrigins(a.cfg.CORSOrigins)

	a.mgmt = &compare.ManagementRoutes{
		Metrics: a.prom.Handler(),
	}
	a.svc = svc

	return nil
}

func specNames(specs []providers.Spec) []string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}

// redactURL replaces the userinfo portion of a URL with "***" for safe logging.
// e.g. "redis://:secret@localhost:6379" → "redis://***@localhost:6379"
func redactURL(raw string) string {
	for i, c := range raw {
		if c == '@' {
			for j := i - 1; j >= 0; j-- {
				if j+2 < len(raw) && raw[j:j+3] == "://" {
					return raw[:j+3] + "***" + raw[i:]
				}
			}
			return "***" + raw[i:]
		}
	}
	return raw
}

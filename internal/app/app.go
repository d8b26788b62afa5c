// Package app wires up all subsystems and owns the application lifecycle.
//
// Startup order:
//  1. initInfra     external connections (Redis when the limiter needs it)
//  2. initProviders upstream clients and the catalog bindings
//  3. initServices  metrics, filter, rate limiter, request logger
//  4. initCompare   the comparison service and management routes
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/aimantra/ai-compare/internal/compare"
	"github.com/aimantra/ai-compare/internal/config"
	"github.com/aimantra/ai-compare/internal/filter"
	"github.com/aimantra/ai-compare/internal/logger"
	"github.com/aimantra/ai-compare/internal/metrics"
	"github.com/aimantra/ai-compare/internal/providers"
	anthropicprov "github.com/aimantra/ai-compare/internal/providers/anthropic"
	geminiprov "github.com/aimantra/ai-compare/internal/providers/gemini"
	"github.com/aimantra/ai-compare/internal/providers/openaicompat"
	"github.com/aimantra/ai-compare/internal/ratelimit"
)

const shutdownTimeout = 10 * time.Second

// App owns all long-lived resources and exposes Run / Close.
type App struct {
	version string
	cfg     *config.Config
	baseCtx context.Context
	log     *slog.Logger

	// Optional external connection, nil unless RATE_LIMIT_BACKEND=redis.
	rdb *redis.Client

	prom       *metrics.Registry
	filter     *filter.Filter
	limiter    ratelimit.Limiter
	memLimiter *ratelimit.MemoryLimiter
	storeReady func() bool
	reqLogger  *logger.Logger

	bindings []providers.Binding
	mgmt     *compare.ManagementRoutes
	svc      *compare.Service
}

// New initialises all subsystems and returns a ready-to-run App.
// All resources allocated here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("app: context must not be nil")
	}

	a := &App{cfg: cfg, version: version, baseCtx: ctx, log: log}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"infra", a.initInfra},
		{"providers", a.initProviders},
		{"services", a.initServices},
		{"compare", a.initCompare},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}

	return a, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails. In-flight comparisons are drained before it returns.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Port)

	mode := compare.ModeDemo
	if providers.Live(a.bindings) {
		mode = compare.ModeLive
	}
	a.log.Info("starting ai-compare",
		slog.String("version", a.version),
		slog.String("addr", addr),
		slog.String("mode", mode),
		slog.String("rate_limit_backend", a.cfg.RateLimit.Backend),
		slog.Any("bindings", describeBindings(a.bindings)),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.svc.Start(addr, a.mgmt)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.svc.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server shutdown error", slog.String("error", err.Error()))
		}
		a.Close()
		return nil
	})

	return g.Wait()
}

// Close releases all resources in reverse-init order. Safe to call multiple
// times.
func (a *App) Close() {
	if a.svc != nil {
		a.svc.Close()
		a.svc = nil
	}
	if a.reqLogger != nil {
		if err := a.reqLogger.Close(); err != nil {
			a.log.Error("logger close error", slog.String("error", err.Error()))
		}
		a.reqLogger = nil
	}
	if a.memLimiter != nil {
		a.memLimiter.Close()
		a.memLimiter = nil
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis close error", slog.String("error", err.Error()))
		}
		a.rdb = nil
	}
}

// connectRedis parses the URL and verifies connectivity with a PING.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return rdb, nil
}

// storePinger returns a readiness probe that pings the limiter's store.
func storePinger(ctx context.Context, rl *ratelimit.RedisLimiter) func() bool {
	return func() bool {
		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		return rl.Ping(pingCtx) == nil
	}
}

// buildDirect creates a client for every direct backend with a key.
func buildDirect(ctx context.Context, cfg *config.Config) (map[string]providers.Provider, error) {
	direct := make(map[string]providers.Provider)

	if cfg.OpenAI.APIKey != "" {
		base := cfg.OpenAI.BaseURL
		if base == "" {
			base = openaicompat.OpenAIBaseURL
		}
		direct[providers.BackendOpenAI] = openaicompat.New(providers.BackendOpenAI, cfg.OpenAI.APIKey, base)
	}
	if cfg.Anthropic.APIKey != "" {
		var opts []anthropicprov.Option
		if cfg.Anthropic.BaseURL != "" {
			opts = append(opts, anthropicprov.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		direct[providers.BackendAnthropic] = anthropicprov.New(cfg.Anthropic.APIKey, opts...)
	}
	if cfg.Gemini.APIKey != "" {
		var opts []geminiprov.Option
		if cfg.Gemini.BaseURL != "" {
			opts = append(opts, geminiprov.WithBaseURL(cfg.Gemini.BaseURL))
		}
		p, err := geminiprov.New(ctx, cfg.Gemini.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		direct[providers.BackendGemini] = p
	}
	if cfg.Groq.APIKey != "" {
		base := cfg.Groq.BaseURL
		if base == "" {
			base = openaicompat.GroqBaseURL
		}
		direct[providers.BackendGroq] = openaicompat.New(providers.BackendGroq, cfg.Groq.APIKey, base)
	}

	return direct, nil
}

// buildRouter creates the OpenRouter client, or nil without a key.
func buildRouter(cfg *config.Config) providers.Provider {
	if cfg.OpenRouter.APIKey == "" {
		return nil
	}
	return openaicompat.NewOpenRouter(cfg.OpenRouter.APIKey, cfg.OpenRouter.BaseURL, cfg.OpenRouter.AppTitle)
}

// describeBindings renders "model=backend" pairs for the startup log.
func describeBindings(bindings []providers.Binding) []string {
	out := make([]string, 0, len(bindings))
	for _, b := range bindings {
		backend := "none"
		if b.Provider != nil {
			backend = b.Provider.Name()
		}
		out = append(out, b.Spec.Name+"="+backend)
	}
	sort.Strings(out)
	return out
}

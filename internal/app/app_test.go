package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/aimantra/ai-compare/internal/config"
	"github.com/aimantra/ai-compare/internal/providers"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:     0,
		LogLevel: "info",
		Env:      config.EnvTest,
		OpenRouter: config.OpenRouterConfig{
			ProviderConfig: config.ProviderConfig{BaseURL: "https://openrouter.ai/api/v1"},
			AppTitle:       "Ai-Mantra",
		},
		RateLimit: config.RateLimitConfig{
			Requests:      10,
			Window:        time.Hour,
			Backend:       config.RateLimitMemory,
			SweepInterval: time.Minute,
		},
		Content: config.ContentConfig{
			MaxPromptLength: 1000,
			Denylist:        config.DefaultDenylist,
		},
		Completion: config.CompletionConfig{
			MaxTokens:       500,
			Temperature:     0.7,
			ProviderTimeout: time.Second,
		},
		CORSOrigins: []string{"*"},
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_DemoMode(t *testing.T) {
	a, err := New(context.Background(), testConfig(), discard(), "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if providers.Live(a.bindings) {
		t.Error("no keys configured, expected demo mode")
	}
	if a.svc == nil || a.limiter == nil || a.reqLogger == nil {
		t.Error("services not wired")
	}
	if a.rdb != nil {
		t.Error("redis must not be dialled for the memory backend")
	}
}

func TestNew_BindsOpenRouterAndDirect(t *testing.T) {
	cfg := testConfig()
	cfg.OpenRouter.APIKey = "sk-or-test"
	cfg.OpenRouter.BaseURL = "http://127.0.0.1:1/api/v1"
	cfg.Anthropic.APIKey = "sk-ant-test"
	cfg.Anthropic.BaseURL = "http://127.0.0.1:1"

	a, err := New(context.Background(), cfg, discard(), "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	got := describeBindings(a.bindings)
	want := []string{"Claude=anthropic", "GPT-4=openrouter", "Gemini=openrouter", "Llama=openrouter"}
	if len(got) != len(want) {
		t.Fatalf("bindings = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("bindings[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNew_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RateLimit.Backend = config.RateLimitRedis
	cfg.Redis.URL = "redis://" + mr.Addr()

	a, err := New(context.Background(), cfg, discard(), "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.rdb == nil || a.storeReady == nil {
		t.Fatal("redis limiter not wired")
	}
	if !a.storeReady() {
		t.Error("store should be ready while miniredis runs")
	}
	mr.Close()
	if a.storeReady() {
		t.Error("store should report down after redis stops")
	}
}

func TestNew_RedisUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Backend = config.RateLimitRedis
	cfg.Redis.URL = "redis://127.0.0.1:1"

	if _, err := New(context.Background(), cfg, discard(), "test"); err == nil {
		t.Fatal("expected startup to fail without redis")
	}
}

func TestNew_BadDenyPattern(t *testing.T) {
	cfg := testConfig()
	cfg.Content.DenyPatterns = []string{"("}

	if _, err := New(context.Background(), cfg, discard(), "test"); err == nil {
		t.Fatal("expected an invalid pattern to fail startup")
	}
}

func TestRedactURL(t *testing.T) {
	cases := map[string]string{
		"redis://:secret@localhost:6379": "redis://***@localhost:6379",
		"redis://localhost:6379":         "redis://localhost:6379",
	}
	for in, want := range cases {
		if got := redactURL(in); got != want {
			t.Errorf("redactURL(%q) = %q, want %q", in, got, want)
		}
	}
}

// Package config loads and validates all runtime configuration for the
// comparison service.
//
// Configuration is read from environment variables (preferred for containers)
// or from a config.yaml file in the working directory. Environment variables
// take precedence over the YAML file. A .env file, when present, is loaded
// into the process environment first.
//
// No provider key is required. With no key configured the service runs in
// demo mode and answers every comparison with templated responses.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Deployment environments accepted in APP_ENV.
const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// Rate-limit store backends accepted in RATE_LIMIT_BACKEND.
const (
	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"
)

// Config is the top-level configuration container.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Default: 8080.
	Port int

	// LogLevel controls the minimum log level. One of: debug, info, warn, error.
	// Default: info.
	LogLevel string

	// Env is the deployment environment. Error details are only echoed to
	// callers outside production. Default: production.
	Env string

	// OpenRouter serves every catalog model through one key.
	OpenRouter OpenRouterConfig

	// Direct backends. A configured key takes precedence over OpenRouter
	// for the catalog entry that backend can serve.
	OpenAI    ProviderConfig
	Anthropic ProviderConfig
	Gemini    ProviderConfig
	Groq      ProviderConfig

	// Redis holds the connection URL for the Redis-backed rate limiter.
	// Required only when RateLimit.Backend is "redis".
	Redis RedisConfig

	RateLimit RateLimitConfig

	Content ContentConfig

	Completion CompletionConfig

	// CircuitBreaker controls per-model circuit breaker thresholds.
	CircuitBreaker CircuitBreakerConfig

	// CORSOrigins is the list of allowed CORS origins.
	// Use ["*"] to allow any origin (default).
	CORSOrigins []string
}

// ProviderConfig holds configuration for a single upstream provider.
type ProviderConfig struct {
	// APIKey is the provider API key. Leave empty to disable the provider.
	APIKey string

	// BaseURL overrides the provider's default API endpoint.
	// Useful for local mocks and development. Leave empty to use the default.
	BaseURL string
}

// OpenRouterConfig holds the OpenRouter aggregator configuration.
type OpenRouterConfig struct {
	ProviderConfig

	// AppTitle is sent as the X-Title attribution header. Default: "Ai-Mantra".
	AppTitle string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is a redis:// or rediss:// URL. Example: redis://localhost:6379
	URL string
}

// RateLimitConfig controls the per-client fixed-window limiter.
type RateLimitConfig struct {
	// Requests is the quota per window. Default: 10.
	Requests int

	// Window is the fixed window length. Default: 1h.
	Window time.Duration

	// Backend selects the counter store:
	//   "memory": process-local map, reset on restart (default).
	//   "redis" : shared counters in Redis (requires REDIS_URL).
	Backend string

	// SweepInterval is how often the memory store evicts expired entries.
	// Default: 5m.
	SweepInterval time.Duration
}

// ContentConfig controls prompt validation.
type ContentConfig struct {
	// MaxPromptLength is the maximum prompt length in characters. Default: 1000.
	MaxPromptLength int

	// Denylist holds case-insensitive substrings that reject a prompt.
	Denylist []string

	// DenyPatterns holds Go regular expressions that reject a prompt.
	// Example: ["(?i)\\bddos\\b"]
	DenyPatterns []string
}

// CompletionConfig holds the fixed parameters of every upstream call.
type CompletionConfig struct {
	// MaxTokens caps the response length. Default: 500.
	MaxTokens int

	// Temperature is the sampling temperature. Default: 0.7.
	Temperature float64

	// ProviderTimeout bounds a single upstream call. Default: 30s.
	ProviderTimeout time.Duration
}

// CircuitBreakerConfig controls per-model circuit breaker settings.
type CircuitBreakerConfig struct {
	// ErrorThreshold is the number of errors that trip the breaker.
	// Default: 5.
	ErrorThreshold int

	// TimeWindow is the rolling window over which errors are counted.
	// Default: 60s.
	TimeWindow time.Duration

	// HalfOpenTimeout is how long the breaker stays open before allowing a
	// single probe request. Default: 30s.
	HalfOpenTimeout time.Duration
}

// DefaultDenylist is the built-in content denylist.
var DefaultDenylist = []string{"hack", "exploit", "malware", "virus"}

// Load reads configuration from environment variables and (optionally) from
// config.yaml in the current working directory.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := fromViper(v)
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", EnvProduction)
	v.SetDefault("CORS_ORIGINS", []string{"*"})

	v.SetDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1")
	v.SetDefault("OPENROUTER_APP_TITLE", "Ai-Mantra")

	v.SetDefault("RATE_LIMIT_REQUESTS", 10)
	v.SetDefault("RATE_LIMIT_WINDOW", "1h")
	v.SetDefault("RATE_LIMIT_BACKEND", RateLimitMemory)
	v.SetDefault("RATE_LIMIT_SWEEP_INTERVAL", "5m")

	v.SetDefault("PROMPT_MAX_LENGTH", 1000)
	v.SetDefault("CONTENT_DENYLIST", DefaultDenylist)

	v.SetDefault("MAX_TOKENS", 500)
	v.SetDefault("TEMPERATURE", 0.7)
	v.SetDefault("PROVIDER_TIMEOUT", "30s")

	v.SetDefault("CB_ERROR_THRESHOLD", 5)
	v.SetDefault("CB_TIME_WINDOW", "60s")
	v.SetDefault("CB_HALF_OPEN_TIMEOUT", "30s")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Port:     v.GetInt("PORT"),
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),
		Env:      strings.ToLower(v.GetString("APP_ENV")),

		OpenRouter: OpenRouterConfig{
			ProviderConfig: ProviderConfig{
				APIKey:  v.GetString("OPENROUTER_API_KEY"),
				BaseURL: v.GetString("OPENROUTER_BASE_URL"),
			},
			AppTitle: v.GetString("OPENROUTER_APP_TITLE"),
		},

		OpenAI:    ProviderConfig{APIKey: v.GetString("OPENAI_API_KEY"), BaseURL: v.GetString("OPENAI_BASE_URL")},
		Anthropic: ProviderConfig{APIKey: v.GetString("ANTHROPIC_API_KEY"), BaseURL: v.GetString("ANTHROPIC_BASE_URL")},
		Gemini:    ProviderConfig{APIKey: v.GetString("GOOGLE_API_KEY"), BaseURL: v.GetString("GEMINI_BASE_URL")},
		Groq:      ProviderConfig{APIKey: v.GetString("GROQ_API_KEY"), BaseURL: v.GetString("GROQ_BASE_URL")},

		Redis: RedisConfig{URL: v.GetString("REDIS_URL")},

		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			Window:        v.GetDuration("RATE_LIMIT_WINDOW"),
			Backend:       strings.ToLower(v.GetString("RATE_LIMIT_BACKEND")),
			SweepInterval: v.GetDuration("RATE_LIMIT_SWEEP_INTERVAL"),
		},

		Content: ContentConfig{
			MaxPromptLength: v.GetInt("PROMPT_MAX_LENGTH"),
			Denylist:        splitList(v.GetStringSlice("CONTENT_DENYLIST")),
			DenyPatterns:    v.GetStringSlice("CONTENT_DENY_PATTERNS"),
		},

		Completion: CompletionConfig{
			MaxTokens:       v.GetInt("MAX_TOKENS"),
			Temperature:     v.GetFloat64("TEMPERATURE"),
			ProviderTimeout: v.GetDuration("PROVIDER_TIMEOUT"),
		},

		CircuitBreaker: CircuitBreakerConfig{
			ErrorThreshold:  v.GetInt("CB_ERROR_THRESHOLD"),
			TimeWindow:      v.GetDuration("CB_TIME_WINDOW"),
			HalfOpenTimeout: v.GetDuration("CB_HALF_OPEN_TIMEOUT"),
		},

		CORSOrigins: splitList(v.GetStringSlice("CORS_ORIGINS")),
	}
}

// splitList flattens comma-separated entries. Viper splits env values on
// whitespace only, so "a,b" arrives as a single element.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// validate checks all semantic constraints that cannot be expressed as defaults.
func (c *Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf(
			"config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error",
			c.LogLevel,
		)
	}

	switch c.Env {
	case EnvDevelopment, EnvTest, EnvProduction:
	default:
		return fmt.Errorf(
			"config: invalid APP_ENV %q; must be one of: development, test, production",
			c.Env,
		)
	}

	switch c.RateLimit.Backend {
	case RateLimitMemory:
	case RateLimitRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf(
				"config: REDIS_URL is required when RATE_LIMIT_BACKEND=redis; " +
					"set RATE_LIMIT_BACKEND=memory to count requests in-process",
			)
		}
	default:
		return fmt.Errorf(
			"config: invalid RATE_LIMIT_BACKEND %q; must be one of: memory, redis",
			c.RateLimit.Backend,
		)
	}

	if c.RateLimit.Requests < 1 {
		return fmt.Errorf("config: RATE_LIMIT_REQUESTS must be ≥ 1, got %d", c.RateLimit.Requests)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("config: RATE_LIMIT_WINDOW must be a positive duration")
	}
	if c.RateLimit.SweepInterval <= 0 {
		return fmt.Errorf("config: RATE_LIMIT_SWEEP_INTERVAL must be a positive duration")
	}

	if c.Content.MaxPromptLength < 1 {
		return fmt.Errorf("config: PROMPT_MAX_LENGTH must be ≥ 1, got %d", c.Content.MaxPromptLength)
	}
	for _, p := range c.Content.DenyPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("config: invalid CONTENT_DENY_PATTERNS entry %q: %w", p, err)
		}
	}

	if c.Completion.MaxTokens < 1 {
		return fmt.Errorf("config: MAX_TOKENS must be ≥ 1, got %d", c.Completion.MaxTokens)
	}
	if c.Completion.Temperature < 0 || c.Completion.Temperature > 2 {
		return fmt.Errorf("config: TEMPERATURE must be within [0, 2], got %g", c.Completion.Temperature)
	}
	if c.Completion.ProviderTimeout <= 0 {
		return fmt.Errorf("config: PROVIDER_TIMEOUT must be a positive duration")
	}

	if c.CircuitBreaker.ErrorThreshold < 1 {
		return fmt.Errorf("config: CB_ERROR_THRESHOLD must be ≥ 1, got %d", c.CircuitBreaker.ErrorThreshold)
	}
	if c.CircuitBreaker.TimeWindow <= 0 {
		return fmt.Errorf("config: CB_TIME_WINDOW must be a positive duration")
	}

	return nil
}

// AnyProviderKey reports whether any upstream credential is configured.
// With none the service answers in demo mode.
func (c *Config) AnyProviderKey() bool {
	return c.OpenRouter.APIKey != "" ||
		c.OpenAI.APIKey != "" ||
		c.Anthropic.APIKey != "" ||
		c.Gemini.APIKey != "" ||
		c.Groq.APIKey != ""
}

// ExposeErrorDetails reports whether internal error details may be echoed
// to callers.
func (c *Config) ExposeErrorDetails() bool {
	return c.Env != EnvProduction
}

// loadDotEnv populates process env vars from a .env file when present.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}

// Command providers runs HTTP mock servers that simulate every upstream the
// comparison service can call. It is used for local runs and load testing
// without real credentials.
//
// Each upstream listens on its own port:
//
//	OpenAI-compatible (OpenRouter, OpenAI, Groq)  :19001
//	Anthropic                                     :19002
//	Gemini                                        :19003
//
// Point the service at them with, for example:
//
//	OPENROUTER_API_KEY=mock OPENROUTER_BASE_URL=http://localhost:19001/api/v1
//	ANTHROPIC_API_KEY=mock  ANTHROPIC_BASE_URL=http://localhost:19002
//	GOOGLE_API_KEY=mock     GEMINI_BASE_URL=http://localhost:19003/v1beta
//
// Environment overrides: PORT_OPENAI, PORT_ANTHROPIC, PORT_GEMINI.
//
// Behaviour flags (via env):
//
//	MOCK_LATENCY_MS  artificial latency added to every completion (default 0)
//	MOCK_ERROR_RATE  fraction [0,1] of completions that return HTTP 500 (default 0)
//	MOCK_WORDS       words in each completion (default 20)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// Config holds runtime configuration shared across all mock servers.
type Config struct {
	LatencyMS int
	ErrorRate float64
	Words     int
}

func loadConfig() Config {
	c := Config{Words: 20}

	if v := os.Getenv("MOCK_LATENCY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LatencyMS = n
		}
	}
	if v := os.Getenv("MOCK_ERROR_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			c.ErrorRate = f
		}
	}
	if v := os.Getenv("MOCK_WORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Words = n
		}
	}
	return c
}

func portFromEnv(key string, defaultPort int) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return strconv.Itoa(defaultPort)
}

func startServer(name, addr string, h http.Handler, log *slog.Logger) *http.Server {
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		log.Info("mock upstream listening", slog.String("upstream", name), slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("upstream", name), slog.String("error", err.Error()))
		}
	}()
	return srv
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := loadConfig()

	log.Info("starting mock upstreams",
		slog.Int("latency_ms", cfg.LatencyMS),
		slog.Float64("error_rate", cfg.ErrorRate),
		slog.Int("words", cfg.Words),
	)

	servers := []*http.Server{
		startServer("openai-compatible", ":"+portFromEnv("PORT_OPENAI", 19001), newOpenAIHandler(cfg, log), log),
		startServer("anthropic", ":"+portFromEnv("PORT_ANTHROPIC", 19002), newAnthropicHandler(cfg), log),
		startServer("gemini", ":"+portFromEnv("PORT_GEMINI", 19003), newGeminiHandler(cfg), log),
	}

	fmt.Println("READY")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down mock upstreams")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for _, srv := range servers {
		wg.Add(1)
		go func(s *http.Server) {
			defer wg.Done()
			_ = s.Shutdown(ctx)
		}(srv)
	}
	wg.Wait()
	log.Info("mock upstreams stopped")
}

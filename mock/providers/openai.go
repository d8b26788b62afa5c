package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
)

// newOpenAIHandler simulates the OpenAI chat completions wire format. Any
// path ending in /chat/completions or /models is served, so one server
// stands in for OpenRouter (/api/v1), OpenAI (/v1) and Groq (/openai/v1).
func newOpenAIHandler(cfg Config, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			handleChatCompletion(w, r, cfg, log)
		case strings.HasSuffix(r.URL.Path, "/models"):
			writeJSON(w, http.StatusOK, map[string]any{
				"object": "list",
				"data": []map[string]any{
					{"id": "openai/gpt-4", "object": "model", "created": 1710000000, "owned_by": "openai"},
					{"id": "meta-llama/llama-3.1-8b-instruct", "object": "model", "created": 1710000000, "owned_by": "meta"},
					{"id": "gpt-4", "object": "model", "created": 1710000000, "owned_by": "openai"},
					{"id": "llama-3.1-8b-instant", "object": "model", "created": 1710000000, "owned_by": "groq"},
				},
			})
		default:
			writeError(w, http.StatusNotFound, fmt.Sprintf("mock: unknown path %s", r.URL.Path), "not_found")
		}
	})
}

func handleChatCompletion(w http.ResponseWriter, r *http.Request, cfg Config, log *slog.Logger) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
		return
	}
	applyLatency(cfg)
	if shouldError(cfg) {
		writeError(w, http.StatusInternalServerError, "mock internal server error", "server_error")
		return
	}

	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_request")
		return
	}
	if req.Model == "" || len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "model and messages are required", "invalid_request")
		return
	}

	log.Debug("chat completion",
		slog.String("path", r.URL.Path),
		slog.String("model", req.Model),
		slog.String("x_title", r.Header.Get("X-Title")),
		slog.Int("max_tokens", req.MaxTokens),
	)

	inTokens := 10
	outTokens := cfg.Words
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      fmt.Sprintf("chatcmpl-mock%x", rand.Int64()),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   req.Model,
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]string{
					"role":    "assistant",
					"content": mockAnswer(req.Model, cfg),
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{
			"prompt_tokens":     inTokens,
			"completion_tokens": outTokens,
			"total_tokens":      inTokens + outTokens,
		},
	})
}

package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"
)

// newAnthropicHandler simulates the Anthropic Messages API.
func newAnthropicHandler(cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeAnthropicError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error")
			return
		}
		applyLatency(cfg)
		if shouldError(cfg) {
			writeAnthropicError(w, http.StatusInternalServerError, "mock internal error", "overloaded_error")
			return
		}

		var req struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeAnthropicError(w, http.StatusBadRequest, "invalid request body", "invalid_request_error")
			return
		}
		if req.MaxTokens <= 0 {
			writeAnthropicError(w, http.StatusBadRequest, "max_tokens: field required", "invalid_request_error")
			return
		}

		outTokens := cfg.Words
		writeJSON(w, http.StatusOK, map[string]any{
			"id":            fmt.Sprintf("msg_%x", rand.Int64()),
			"type":          "message",
			"role":          "assistant",
			"model":         req.Model,
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"content": []map[string]string{
				{"type": "text", "text": mockAnswer(req.Model, cfg)},
			},
			"usage": map[string]int{
				"input_tokens":  15,
				"output_tokens": outTokens,
			},
		})
	})

	// GET /v1/models is the health probe.
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]any{
				{"id": "claude-3-haiku-20240307", "type": "model", "display_name": "Claude 3 Haiku", "created_at": time.Now().UTC().Format(time.RFC3339)},
			},
			"has_more": false,
			"first_id": "claude-3-haiku-20240307",
			"last_id":  "claude-3-haiku-20240307",
		})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeAnthropicError(w, http.StatusNotFound, fmt.Sprintf("mock: unknown path %s", r.URL.Path), "not_found_error")
	})

	return mux
}

func writeAnthropicError(w http.ResponseWriter, status int, msg, typ string) {
	writeJSON(w, status, map[string]any{
		"type": "error",
		"error": map[string]string{
			"type":    typ,
			"message": msg,
		},
	})
}

package main

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
)

// newGeminiHandler simulates the Gemini API as called by google.golang.org/genai:
//
//	POST {base}/models/{model}:generateContent
//	GET  {base}/models      (health probe)
//
// where {base} is /v1beta.
func newGeminiHandler(cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if !strings.HasSuffix(path, ":generateContent") {
			writeGeminiError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("mock: unknown path %s", path))
			return
		}
		if r.Method != http.MethodPost {
			writeGeminiError(w, http.StatusMethodNotAllowed, "INVALID_ARGUMENT", "method not allowed")
			return
		}
		applyLatency(cfg)
		if shouldError(cfg) {
			writeGeminiError(w, http.StatusInternalServerError, "INTERNAL", "mock internal error")
			return
		}

		model := extractModel(path)
		inTokens := 10
		outTokens := cfg.Words
		writeJSON(w, http.StatusOK, map[string]any{
			"candidates": []any{
				map[string]any{
					"content": map[string]any{
						"role":  "model",
						"parts": []map[string]string{{"text": mockAnswer(model, cfg)}},
					},
					"finishReason": "STOP",
					"index":        0,
				},
			},
			"usageMetadata": map[string]int{
				"promptTokenCount":     inTokens,
				"candidatesTokenCount": outTokens,
				"totalTokenCount":      inTokens + outTokens,
			},
			"responseId":   fmt.Sprintf("gemini-%x", rand.Int64()),
			"modelVersion": model,
		})
	})

	mux.HandleFunc("/v1beta/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"models": []map[string]any{
				{"name": "models/gemini-pro", "displayName": "Gemini Pro", "description": "Mock Gemini Pro"},
			},
		})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeGeminiError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("mock: unknown path %s", r.URL.Path))
	})

	return mux
}

func writeGeminiError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": msg,
			"status":  code,
		},
	})
}

// extractModel pulls the model name out of /v1beta/models/gemini-pro:generateContent.
func extractModel(path string) string {
	const prefix = "/v1beta/models/"
	if idx := strings.Index(path, prefix); idx >= 0 {
		rest := path[idx+len(prefix):]
		if col := strings.Index(rest, ":"); col >= 0 {
			return rest[:col]
		}
		return rest
	}
	return "gemini-pro"
}

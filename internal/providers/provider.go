// Package providers defines the common interface and types used by all
// upstream model clients (OpenRouter and the direct OpenAI, Anthropic,
// Gemini and Groq backends), together with the fixed model catalog the
// comparison service fans out to.
//
// Each backend lives in its own sub-package and implements Provider.
package providers

import (
	"context"
	"errors"
	"time"
)

type (
	// Message is a single turn in a conversation (role + text content).
	Message struct {
		Role    string
		Content string
	}

	// Usage: token usage stats.
	Usage struct {
		InputTokens  int
		OutputTokens int
	}

	// CompletionRequest: normalized single-turn completion request.
	CompletionRequest struct {
		Model       string
		Messages    []Message
		Temperature float64
		MaxTokens   int
		RequestID   string
	}

	// Completion: normalized provider response.
	Completion struct {
		ID      string
		Model   string
		Content string
		Usage   Usage
	}
)

// Provider: upstream model client interface.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)
	HealthCheck(ctx context.Context) error
}

// Backend identifiers used for binding catalog entries, health reporting,
// and logs.
const (
	BackendOpenRouter = "openrouter"
	BackendOpenAI     = "openai"
	BackendAnthropic  = "anthropic"
	BackendGemini     = "gemini"
	BackendGroq       = "groq"
)

// Default request parameters and circuit breaker constants.
const (
	MaxTokens         = 500
	Temperature       = 0.7
	ProviderTimeout   = 30 * time.Second
	CBErrorThreshold  = 5
	CBTimeWindow      = 60 * time.Second
	CBHalfOpenTimeout = 30 * time.Second
)

// ErrNoContent is returned when an upstream answered successfully but the
// response carries no completion text to show.
var ErrNoContent = errors.New("response contained no completion content")

// StatusCoder is implemented by provider errors that carry the upstream
// HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

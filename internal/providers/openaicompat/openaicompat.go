// Package openaicompat provides a generic OpenAI-compatible provider.
// Use it for any service that implements the OpenAI chat completions API:
// OpenRouter, OpenAI itself, and Groq.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openaiSDK "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/aimantra/ai-compare/internal/providers"
)

// Well-known base URLs.
const (
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	OpenAIBaseURL     = "https://api.openai.com/v1"
	GroqBaseURL       = "https://api.groq.com/openai/v1"
)

// Provider is a configurable OpenAI-compatible provider.
type Provider struct {
	name       string
	httpClient *http.Client
	client     openaiSDK.Client
}

type settings struct {
	httpClient *http.Client
	opts       []option.RequestOption
}

// Option customises a Provider.
type Option func(*settings)

// WithHeader adds a header to every request, e.g. OpenRouter's X-Title.
func WithHeader(key, value string) Option {
	return func(s *settings) {
		if value != "" {
			s.opts = append(s.opts, option.WithHeader(key, value))
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// New creates a new OpenAI-compatible Provider.
//
//   - name   : unique provider identifier used for health and logs.
//   - apiKey : API key sent as "Authorization: Bearer <key>".
//   - baseURL: API base URL, e.g. "https://openrouter.ai/api/v1".
//
// The SDK's automatic retries are disabled: a failed call is reported once
// and the comparison shows that model as unavailable. The default HTTP
// client has no timeout of its own; the caller's context bounds each call.
func New(name, apiKey, baseURL string, extra ...Option) *Provider {
	s := settings{httpClient: &http.Client{}}
	for _, o := range extra {
		o(&s)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(s.httpClient),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, s.opts...)

	return &Provider{
		name:       name,
		httpClient: s.httpClient,
		client:     openaiSDK.NewClient(opts...),
	}
}

// NewOpenRouter creates the OpenRouter aggregator client. title is sent as
// the X-Title attribution header.
func NewOpenRouter(apiKey, baseURL, title string, extra ...Option) *Provider {
	if baseURL == "" {
		baseURL = OpenRouterBaseURL
	}
	extra = append([]Option{WithHeader("X-Title", title)}, extra...)
	return New(providers.BackendOpenRouter, apiKey, baseURL, extra...)
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("%s: health check: %w", p.name, p.toProviderError(err))
	}
	return nil
}

func (p *Provider) Complete(ctx context.Context, req *providers.CompletionRequest) (*providers.Completion, error) {
	resp, err := p.client.Chat.Completions.New(ctx, buildParams(req))
	if err != nil {
		return nil, p.toProviderError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: %w", p.name, providers.ErrNoContent)
	}

	return &providers.Completion{
		ID:      resp.ID,
		Model:   resp.Model,
		Content: resp.Choices[0].Message.Content,
		Usage: providers.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

func buildParams(req *providers.CompletionRequest) openaiSDK.ChatCompletionNewParams {
	msgs := make([]openaiSDK.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, toSDKMessage(m.Role, m.Content))
	}

	params := openaiSDK.ChatCompletionNewParams{
		Messages:    msgs,
		Model:       req.Model,
		Temperature: openaiSDK.Float(req.Temperature),
	}

	// OpenRouter and Groq read max_tokens, not max_completion_tokens.
	if req.MaxTokens > 0 {
		params.MaxTokens = openaiSDK.Int(int64(req.MaxTokens))
	}

	return params
}

// ProviderError is a structured error returned by an OpenAI-compatible API.
type ProviderError struct {
	Name       string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s (status=%d)", e.Name, e.Message, e.StatusCode)
}

func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

func (p *Provider) toProviderError(err error) error {
	var apierr *openaiSDK.Error
	if errors.As(err, &apierr) {
		return &ProviderError{
			Name:       p.name,
			StatusCode: apierr.StatusCode,
			Message:    apierr.Error(),
		}
	}
	return err
}

func toSDKMessage(role, content string) openaiSDK.ChatCompletionMessageParamUnion {
	switch strings.ToLower(role) {
	case "system":
		return openaiSDK.SystemMessage(content)
	case "assistant":
		return openaiSDK.AssistantMessage(content)
	default:
		return openaiSDK.UserMessage(content)
	}
}

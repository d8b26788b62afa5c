package compare

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/aimantra/ai-compare/internal/providers"
)

// funcProvider is a Provider whose Complete and HealthCheck are test closures.
type funcProvider struct {
	name     string
	calls    atomic.Int32
	complete func(ctx context.Context, req *providers.CompletionRequest) (*providers.Completion, error)
	health   func(ctx context.Context) error
}

func (p *funcProvider) Name() string { return p.name }

func (p *funcProvider) Complete(ctx context.Context, req *providers.CompletionRequest) (*providers.Completion, error) {
	p.calls.Add(1)
	return p.complete(ctx, req)
}

func (p *funcProvider) HealthCheck(ctx context.Context) error {
	if p.health == nil {
		return nil
	}
	return p.health(ctx)
}

// echoProvider answers "<name>: <model>" for every request.
func echoProvider(name string) *funcProvider {
	return &funcProvider{
		name: name,
		complete: func(_ context.Context, req *providers.CompletionRequest) (*providers.Completion, error) {
			return &providers.Completion{
				ID:      "resp-" + req.RequestID,
				Model:   req.Model,
				Content: name + ": " + req.Model,
				Usage:   providers.Usage{InputTokens: 10, OutputTokens: 5},
			}, nil
		},
	}
}

func failingProvider(name string, err error) *funcProvider {
	return &funcProvider{
		name: name,
		complete: func(context.Context, *providers.CompletionRequest) (*providers.Completion, error) {
			return nil, err
		},
	}
}

// statusError is a provider error carrying an upstream HTTP status.
type statusError struct{ code int }

func (e *statusError) Error() string   { return "upstream status" }
func (e *statusError) HTTPStatus() int { return e.code }

var errBoom = errors.New("boom")

// bindAll routes every catalog entry through p.
func bindAll(p providers.Provider) []providers.Binding {
	return providers.Bind(providers.Catalog, nil, p)
}

package compare

import (
	"context"
	"testing"

	"github.com/valyala/fasthttp"
)

// BenchmarkDispatch measures fan-out overhead when every model answers
// instantly.
//
// Run: go test -bench=BenchmarkDispatch -benchmem ./internal/compare/
func BenchmarkDispatch(b *testing.B) {
	d := NewDispatcher(bindAll(echoProvider("openrouter")), DispatcherOptions{
		Logger:  quietLogger(),
		Breaker: NewCircuitBreaker(),
	})
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.Dispatch(ctx, "benchmark prompt", "bench")
	}
}

// BenchmarkHandleCompare measures the full handler path in demo mode:
// body parse, validation and response encoding.
func BenchmarkHandleCompare(b *testing.B) {
	s := newTestService(b, serviceConfig{limiter: &countingLimiter{allow: true}})
	body := []byte(`{"prompt":"What is the capital of France?"}`)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var ctx fasthttp.RequestCtx
		ctx.Request.Header.SetMethod(fasthttp.MethodPost)
		ctx.Request.SetBody(body)
		s.handleCompare(&ctx)
		if ctx.Response.StatusCode() != fasthttp.StatusOK {
			b.Fatalf("status = %d", ctx.Response.StatusCode())
		}
	}
}

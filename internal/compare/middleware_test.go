package compare

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/valyala/fasthttp"

	"github.com/aimantra/ai-compare/pkg/apierr"
)

func TestRecovery_NoPanic(t *testing.T) {
	handler := recovery(true)(func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})

	ctx := &fasthttp.RequestCtx{}
	handler(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Errorf("expected 200, got %d", ctx.Response.StatusCode())
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	for _, expose := range []bool{true, false} {
		handler := recovery(expose)(func(ctx *fasthttp.RequestCtx) {
			ctx.SetBodyString("partial")
			panic("boom")
		})

		ctx := &fasthttp.RequestCtx{}
		handler(ctx)

		if ctx.Response.StatusCode() != fasthttp.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", ctx.Response.StatusCode())
		}
		var body map[string]string
		if err := json.Unmarshal(ctx.Response.Body(), &body); err != nil {
			t.Fatalf("invalid JSON %q: %v", ctx.Response.Body(), err)
		}
		if body["error"] != apierr.MsgInternal {
			t.Errorf("error = %q", body["error"])
		}
		details, ok := body["details"]
		if expose && details != "boom" {
			t.Errorf("details = %q, want panic value", details)
		}
		if !expose && ok {
			t.Errorf("details must be hidden, got %q", details)
		}
	}
}

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	handler := requestID(func(ctx *fasthttp.RequestCtx) {
		if id, _ := ctx.UserValue("request_id").(string); id == "" {
			t.Error("request_id should be generated")
		}
	})

	ctx := &fasthttp.RequestCtx{}
	handler(ctx)

	if len(ctx.Response.Header.Peek("X-Request-ID")) == 0 {
		t.Error("X-Request-ID response header should be set")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	handler := requestID(func(ctx *fasthttp.RequestCtx) {
		if id, _ := ctx.UserValue("request_id").(string); id != "custom-id-123" {
			t.Errorf("expected preserved ID, got %s", id)
		}
	})

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("X-Request-ID", "custom-id-123")
	handler(ctx)

	if got := string(ctx.Response.Header.Peek("X-Request-ID")); got != "custom-id-123" {
		t.Errorf("expected 'custom-id-123' in response, got %s", got)
	}
}

func TestTiming_SetsHeader(t *testing.T) {
	handler := timing(func(ctx *fasthttp.RequestCtx) {})

	ctx := &fasthttp.RequestCtx{}
	handler(ctx)

	if len(ctx.Response.Header.Peek("X-Response-Time")) == 0 {
		t.Error("X-Response-Time header should be set")
	}
}

func TestSecurityHeaders_AllSet(t *testing.T) {
	handler := securityHeaders(func(ctx *fasthttp.RequestCtx) {})

	ctx := &fasthttp.RequestCtx{}
	handler(ctx)

	for header, want := range map[string]string{
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"Content-Security-Policy":   "default-src 'none'",
		"Referrer-Policy":           "no-referrer",
	} {
		if got := string(ctx.Response.Header.Peek(header)); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestCORS(t *testing.T) {
	allowlist := []string{"https://a.example", "https://b.example"}
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    string
	}{
		{"nil allows all", nil, "https://x.example", "*"},
		{"wildcard", []string{"*"}, "", "*"},
		{"allowlist echoes first", allowlist, "https://a.example", "https://a.example"},
		{"allowlist echoes second", allowlist, "https://b.example", "https://b.example"},
		{"allowlist rejects other", allowlist, "https://evil.example", ""},
		{"allowlist without origin", allowlist, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := corsHandler(tt.origins)(func(ctx *fasthttp.RequestCtx) { called = true })

			ctx := &fasthttp.RequestCtx{}
			ctx.Request.Header.SetMethod(fasthttp.MethodPost)
			if tt.origin != "" {
				ctx.Request.Header.Set("Origin", tt.origin)
			}
			handler(ctx)

			if got := string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")); got != tt.want {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.want)
			}
			if strings.Contains(string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")), ",") {
				t.Error("Allow-Origin must carry a single origin")
			}
			if !called {
				t.Error("POST must reach the next handler")
			}
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	handler := corsHandler(nil)(func(ctx *fasthttp.RequestCtx) { called = true })

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodOptions)
	handler(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", ctx.Response.StatusCode())
	}
	if called {
		t.Error("preflight must not reach the next handler")
	}
}

func TestApplyMiddleware_Order(t *testing.T) {
	var order []string
	mw := func(name string) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
			return func(ctx *fasthttp.RequestCtx) {
				order = append(order, name)
				next(ctx)
			}
		}
	}

	h := applyMiddleware(func(ctx *fasthttp.RequestCtx) { order = append(order, "handler") }, mw("a"), mw("b"))
	h(&fasthttp.RequestCtx{})

	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "handler" {
		t.Errorf("order = %v", order)
	}
}

func TestClientIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1", "X-Real-IP": "10.0.0.2"}, "203.0.113.7"},
		{"forwarded single", map[string]string{"X-Forwarded-For": " 198.51.100.4 "}, "198.51.100.4"},
		{"real ip", map[string]string{"X-Real-IP": "192.0.2.9"}, "192.0.2.9"},
		{"empty forwarded falls through", map[string]string{"X-Forwarded-For": " , 10.0.0.1", "X-Real-IP": "192.0.2.9"}, "192.0.2.9"},
		{"no headers", nil, anonymousClient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := &fasthttp.RequestCtx{}
			for k, v := range tt.headers {
				ctx.Request.Header.Set(k, v)
			}
			if got := clientIdentifier(ctx); got != tt.want {
				t.Errorf("clientIdentifier = %q, want %q", got, tt.want)
			}
		})
	}
}

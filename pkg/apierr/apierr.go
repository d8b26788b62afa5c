// Package apierr writes the JSON error envelope returned by the comparison
// endpoint: {"error": "...", "retryAfter"?: "...", "details"?: "..."}.
package apierr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
)

// Caller-facing messages.
const (
	MsgRateLimited      = "Rate limit exceeded. Please try again later."
	MsgInternal         = "Internal server error. Please try again later."
	MsgMethodNotAllowed = "Method not allowed. Use POST to compare AI models."
)

type envelope struct {
	Error      string `json:"error"`
	RetryAfter string `json:"retryAfter,omitempty"`
	Details    string `json:"details,omitempty"`
}

func write(ctx *fasthttp.RequestCtx, status int, env envelope) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(env)
	ctx.SetBody(body)
}

// Write writes {"error": message} with the given HTTP status.
func Write(ctx *fasthttp.RequestCtx, status int, message string) {
	write(ctx, status, envelope{Error: message})
}

// WriteRateLimit writes a 429 with a human-readable retryAfter and a
// Retry-After header in seconds.
func WriteRateLimit(ctx *fasthttp.RequestCtx, window time.Duration) {
	ctx.Response.Header.Set("Retry-After", strconv.Itoa(int(window.Seconds())))
	write(ctx, fasthttp.StatusTooManyRequests, envelope{
		Error:      MsgRateLimited,
		RetryAfter: HumanizeWindow(window),
	})
}

// WriteInternal writes a 500. details is omitted from the body when empty.
func WriteInternal(ctx *fasthttp.RequestCtx, details string) {
	write(ctx, fasthttp.StatusInternalServerError, envelope{
		Error:   MsgInternal,
		Details: details,
	})
}

// WriteMethodNotAllowed writes a 405 and advertises POST in the Allow header.
func WriteMethodNotAllowed(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Allow", fasthttp.MethodPost)
	write(ctx, fasthttp.StatusMethodNotAllowed, envelope{Error: MsgMethodNotAllowed})
}

// HumanizeWindow renders a whole number of hours, minutes or seconds as
// "1 hour", "30 minutes" and so on, falling back to Go duration syntax.
func HumanizeWindow(d time.Duration) string {
	unit := func(n int64, name string) string {
		if n == 1 {
			return "1 " + name
		}
		return fmt.Sprintf("%d %ss", n, name)
	}
	switch {
	case d <= 0:
		return d.String()
	case d%time.Hour == 0:
		return unit(int64(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return unit(int64(d/time.Minute), "minute")
	case d%time.Second == 0:
		return unit(int64(d/time.Second), "second")
	default:
		return d.String()
	}
}

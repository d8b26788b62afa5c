package compare

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/aimantra/ai-compare/pkg/apierr"
)

// RouteHandler is a fasthttp handler function.
type RouteHandler = fasthttp.RequestHandler

// ManagementRoutes holds optional handlers registered next to the
// comparison endpoint.
type ManagementRoutes struct {
	Metrics RouteHandler
}

// Handler builds the routed handler with the full middleware chain.
func (s *Service) Handler(mgmt *ManagementRoutes) fasthttp.RequestHandler {
	r := router.New()

	r.POST(ComparePath, s.handleCompare)
	r.GET(ComparePath, s.handleMethodNotAllowed)
	r.PUT(ComparePath, s.handleMethodNotAllowed)
	r.DELETE(ComparePath, s.handleMethodNotAllowed)
	r.MethodNotAllowed = s.handleMethodNotAllowed

	r.GET("/health", s.handleHealth)
	r.GET("/readiness", s.handleReadiness)

	if mgmt != nil && mgmt.Metrics != nil {
		r.GET("/metrics", mgmt.Metrics)
	}

	return applyMiddleware(r.Handler,
		recovery(s.exposeDetails),
		requestID,
		timing,
		corsHandler(s.corsOrigins),
		securityHeaders,
	)
}

// Start serves on addr (e.g. ":3000") until Shutdown is called.
func (s *Service) Start(addr string, mgmt *ManagementRoutes) error {
	s.srv = &fasthttp.Server{
		Handler: s.Handler(mgmt),
		// Fan-out waits for the slowest model, so the write deadline has to
		// cover the provider timeout.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.dispatcher.timeout + 15*time.Second,
	}
	return s.srv.ListenAndServe(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.ShutdownWithContext(ctx)
}

// handleMethodNotAllowed answers every non-POST method on the comparison
// route before any rate limiting or validation.
func (s *Service) handleMethodNotAllowed(ctx *fasthttp.RequestCtx) {
	if string(ctx.Path()) != ComparePath {
		ctx.Error(fasthttp.StatusMessage(fasthttp.StatusMethodNotAllowed), fasthttp.StatusMethodNotAllowed)
		return
	}
	apierr.WriteMethodNotAllowed(ctx)
}

func (s *Service) handleHealth(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, s.health.Snapshot())
}

func (s *Service) handleReadiness(ctx *fasthttp.RequestCtx) {
	if s.health.ReadinessOK() {
		writeJSON(ctx, map[string]string{"status": "ok"})
		return
	}
	ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	writeJSON(ctx, map[string]string{"status": "unavailable"})
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	data, _ := json.Marshal(v)
	ctx.SetBody(data)
}

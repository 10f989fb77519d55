package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fasthttp/router"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel/propagation"

	"github.com/curaious/llmux/internal/api/controllers"
)

var tracePropagator = propagation.TraceContext{}

func (s *Server) initRoutes() fasthttp.RequestHandler {
	r := router.New()

	r.GET("/health", func(ctx *fasthttp.RequestCtx) {
		ctx.Response.Header.Set("content-type", "application/json")
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBody([]byte(`{"status":"ok"}`))
	})

	controllers.RegisterGenerateRoute(r, s.gateway)

	return s.withMiddlewares(r.Handler)
}

func (s *Server) withMiddlewares(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		requestID := uuid.NewString()

		h := http.Header{}
		ctx.Request.Header.VisitAll(func(k, v []byte) {
			h[string(k)] = []string{string(v)}
		})
		traceCtx := tracePropagator.Extract(context.Background(), propagation.HeaderCarrier(h))
		ctx.SetUserValue("traceCtx", traceCtx)

		slog.Info("Started processing",
			slog.String("request_id", requestID),
			slog.String("method", string(ctx.Method())),
			slog.String("path", string(ctx.Path())),
		)

		next(ctx)

		slog.Info("Completed processing",
			slog.String("request_id", requestID),
			slog.Int("status", ctx.Response.StatusCode()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

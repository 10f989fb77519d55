package controllers

import (
	"context"
	"errors"
	"net/http"

	json "github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"

	"github.com/curaious/llmux/internal/api/response"
)

// requestContext returns the context for downstream calls. The middleware
// stores the extracted trace context as a user value; fasthttp itself does
// not provide a standard context.
func requestContext(ctx *fasthttp.RequestCtx) context.Context {
	if traceCtx, ok := ctx.UserValue("traceCtx").(context.Context); ok {
		return traceCtx
	}
	return context.Background()
}

func parseBody(ctx *fasthttp.RequestCtx, target any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return errors.New("request body is empty")
	}

	return json.Unmarshal(body, target)
}

func writeError(ctx *fasthttp.RequestCtx, stdCtx context.Context, message string, err error) {
	response.WriteError(ctx, stdCtx, message, err)
}

func writeOK(ctx *fasthttp.RequestCtx, data any) {
	response.WriteJSON(ctx, http.StatusOK, data)
}

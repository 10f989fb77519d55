package controllers

import (
	"encoding/json"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/curaious/llmux/internal/perrors"
	"github.com/curaious/llmux/pkg/gateway"
)

var tracer = otel.Tracer("llmux/api")

type generateRequest struct {
	Provider string          `json:"provider"`
	Model    string          `json:"model"`
	Prompt   string          `json:"prompt"`
	Schema   json.RawMessage `json:"schema"`
}

type generateResponse struct {
	Output json.RawMessage `json:"output"`
}

func RegisterGenerateRoute(r *router.Router, gw *gateway.Gateway) {
	r.POST("/generate", func(reqCtx *fasthttp.RequestCtx) {
		stdCtx := requestContext(reqCtx)

		ctx, span := tracer.Start(stdCtx, "Controller.Generate")
		defer span.End()

		var in generateRequest
		if err := parseBody(reqCtx, &in); err != nil {
			err = perrors.NewErrInvalidRequest("Error unmarshalling the request body", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			writeError(reqCtx, stdCtx, "Error unmarshalling the request body", err)
			return
		}

		span.SetAttributes(
			attribute.String("provider", in.Provider),
			attribute.String("model", in.Model),
		)

		out, err := gw.Generate(ctx, &gateway.GenerateRequest{
			Provider: in.Provider,
			Model:    in.Model,
			Prompt:   in.Prompt,
			Schema:   in.Schema,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			writeError(reqCtx, stdCtx, "Error handling generate request", err)
			return
		}

		writeOK(reqCtx, generateResponse{Output: out})
	})
}

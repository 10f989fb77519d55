package response

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	json "github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"

	"github.com/curaious/llmux/internal/perrors"
)

// Error is the wire shape of a classified failure. Stderr carries whatever
// diagnostic text the failing executor produced, when there is any.
type Error struct {
	Code   string `json:"code"`
	Error  string `json:"error"`
	Stderr string `json:"stderr,omitempty"`
}

// WriteJSON sets the content-type, status, and JSON-encoded body.
func WriteJSON(ctx *fasthttp.RequestCtx, status int, payload any) {
	ctx.Response.Header.Set("content-type", "application/json")
	ctx.SetStatusCode(status)

	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Unable to json encode response", slog.Any("error", err))
		ctx.SetStatusCode(http.StatusInternalServerError)
		return
	}

	ctx.SetBody(body)
}

// WriteError renders err with its mapped HTTP status. Anything that is not
// already a perrors.Err is treated as an internal server error.
func WriteError(ctx *fasthttp.RequestCtx, stdCtx context.Context, msg string, err error) {
	var perr perrors.Err
	if !errors.As(err, &perr) {
		perr = perrors.NewErrInternalServerError(msg, err).(perrors.Err)
	}

	perr.Print(stdCtx)

	out := Error{Code: perr.Code.Code, Error: perr.Error()}
	if len(perr.Args) > 0 {
		if s, ok := perr.Args[0]["stderr"].(string); ok {
			out.Stderr = s
		} else if s, ok := perr.Args[0]["stdout"].(string); ok {
			out.Stderr = s
		}
	}

	WriteJSON(ctx, perr.HttpStatus(), out)
}

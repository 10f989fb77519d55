package perrors

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"
)

type ErrCode struct {
	Code   string `json:"code"`
	Status int    `json:"status"`
}

var (
	ErrCodeInvalidRequest        ErrCode = ErrCode{"invalid_request", http.StatusBadRequest}
	ErrCodeInvalidSchema                 = ErrCode{"invalid_schema", http.StatusBadRequest}
	ErrCodeProviderNotFound              = ErrCode{"provider_not_found", http.StatusBadRequest}
	ErrCodeModelNotFound                 = ErrCode{"model_not_found", http.StatusBadRequest}
	ErrCodeAutoModelNotSupported         = ErrCode{"auto_model_not_supported", http.StatusBadRequest}
	ErrCodeRateLimited                   = ErrCode{"rate_limited", http.StatusTooManyRequests}
	ErrCodeTimeout                       = ErrCode{"timeout", http.StatusGatewayTimeout}
	ErrCodeProviderExecution             = ErrCode{"provider_execution_failed", http.StatusInternalServerError}
	ErrCodeOutputParse                   = ErrCode{"output_parse_error", http.StatusInternalServerError}
	ErrCodeInternalServer                = ErrCode{"internal_server_error", http.StatusInternalServerError}
)

type Err struct {
	Message    string                   `json:"-"`
	Err        string                   `json:"error"`
	Code       ErrCode                  `json:"-"`
	Stacktrace []string                 `json:"-"`
	Args       []map[string]interface{} `json:"args,omitempty"`
}

func (e Err) Error() string {
	return e.Err
}

func (e Err) HttpStatus() int {
	return e.Code.Status
}

func (e Err) Print(ctx context.Context) {
	args := []any{slog.Any("error", e.Error()), slog.Any("code", e.Code.Code)}
	if len(e.Args) > 0 {
		for k, v := range e.Args[0] {
			args = append(args, slog.Any(k, v))
		}
	}
	args = append(args, slog.Any("stacktrace", e.Stacktrace))
	slog.ErrorContext(ctx, e.Message, args...)
}

func New(code ErrCode, msg string, err error, args ...map[string]interface{}) error {
	pc := make([]uintptr, 20)
	count := runtime.Callers(1, pc)
	frames := runtime.CallersFrames(pc[:count])

	var stacktrace []string
	for frame, hasMore := frames.Next(); hasMore; frame, hasMore = frames.Next() {
		stacktrace = append(stacktrace, fmt.Sprintf("%s:%d", frame.File, frame.Line))
	}

	errString := msg
	if err != nil {
		errString = err.Error()
	}

	return Err{
		Code:       code,
		Message:    msg,
		Err:        errString,
		Stacktrace: stacktrace,
		Args:       args,
	}
}

func NewErrInvalidRequest(msg string, err error, args ...map[string]interface{}) error {
	return New(ErrCodeInvalidRequest, msg, err, args...)
}

func NewErrInvalidSchema(msg string, err error) error {
	return New(ErrCodeInvalidSchema, msg, err)
}

func NewErrProviderNotFound(provider string) error {
	return New(ErrCodeProviderNotFound, "Provider not found", fmt.Errorf("provider not found: %s", provider))
}

func NewErrModelNotFound(provider, model string) error {
	return New(ErrCodeModelNotFound, "Model not found", fmt.Errorf("model '%s' not found for provider '%s'", model, provider))
}

func NewErrAutoModelNotSupported(provider string) error {
	return New(ErrCodeAutoModelNotSupported, "Auto model selection not supported", fmt.Errorf("provider '%s' requires an explicit model", provider))
}

func NewErrRateLimited(provider, model string) error {
	return New(ErrCodeRateLimited, "Rate limited", fmt.Errorf("rate limited: %s/%s", provider, model),
		map[string]interface{}{"provider": provider, "model": model})
}

func NewErrTimeout(provider string, timeout time.Duration) error {
	return New(ErrCodeTimeout, "Provider timed out", fmt.Errorf("%s timed out after %s", provider, timeout))
}

func NewErrProviderExecution(msg string, err error, stderr string) error {
	return New(ErrCodeProviderExecution, msg, err, map[string]interface{}{"stderr": stderr})
}

func NewErrOutputParse(msg string, err error, stdout string) error {
	return New(ErrCodeOutputParse, msg, err, map[string]interface{}{"stdout": stdout})
}

func NewErrInternalServerError(msg string, err error, args ...map[string]interface{}) error {
	return New(ErrCodeInternalServer, msg, err, args...)
}

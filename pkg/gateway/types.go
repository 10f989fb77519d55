package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/curaious/llmux/internal/perrors"
)

// GenerateRequest is one structured-output generation request, already parsed
// by the transport layer. Model is optional: when empty the provider's auto
// model selection governs, if the provider allows it.
type GenerateRequest struct {
	Provider string          `json:"provider"`
	Model    string          `json:"model,omitempty"`
	Prompt   string          `json:"prompt"`
	Schema   json.RawMessage `json:"schema"`
}

func (r *GenerateRequest) Validate() error {
	if r.Provider == "" {
		return perrors.NewErrInvalidRequest("Provider is required", errors.New("provider is required"))
	}
	if r.Prompt == "" {
		return perrors.NewErrInvalidRequest("Prompt is required", errors.New("prompt must not be empty"))
	}
	if len(r.Schema) == 0 {
		return perrors.NewErrInvalidRequest("Schema is required", errors.New("schema is required"))
	}
	return nil
}

// Invocation carries everything a provider needs for one execution.
type Invocation struct {
	Prompt  string
	Schema  json.RawMessage
	Model   string // empty when the target is AUTO
	Timeout time.Duration
}

// Provider is the capability of one executor family: invoke with
// prompt+schema and return the raw text the output extractor should parse.
// New providers plug in here; the dispatcher never branches on names.
type Provider interface {
	Name() string
	Invoke(ctx context.Context, inv Invocation) (string, error)
}

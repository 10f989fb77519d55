// Package claude invokes the claude CLI, which supports native structured
// output: the schema is passed on the command line and the response arrives
// as a JSON envelope carrying the document in "structured_output".
package claude

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bytedance/sonic"

	"github.com/curaious/llmux/internal/perrors"
	"github.com/curaious/llmux/pkg/gateway"
	"github.com/curaious/llmux/pkg/gateway/execute"
)

type Provider struct {
	run execute.Runner
}

func New() *Provider {
	return &Provider{run: execute.Run}
}

func (p *Provider) Name() string {
	return "claude"
}

func (p *Provider) Invoke(ctx context.Context, inv gateway.Invocation) (string, error) {
	compact, err := compactJSON(inv.Schema)
	if err != nil {
		return "", perrors.NewErrInvalidSchema("Schema is invalid", err)
	}

	var args []string
	if inv.Model != "" {
		args = append(args, "--model", inv.Model)
	}
	args = append(args, "--output-format", "json", "--json-schema", compact, "-p")

	res, err := p.run(ctx, "claude", args, inv.Prompt, inv.Timeout)
	if err != nil {
		return "", err
	}

	var envelope struct {
		StructuredOutput json.RawMessage `json:"structured_output"`
	}
	if err := sonic.Unmarshal([]byte(res.Stdout), &envelope); err != nil {
		return "", perrors.NewErrOutputParse("Failed to parse claude output", err, res.Stdout)
	}

	if len(envelope.StructuredOutput) == 0 || string(envelope.StructuredOutput) == "null" {
		return "", perrors.NewErrOutputParse("Claude output is missing structured content", errors.New("missing 'structured_output' field"), res.Stdout)
	}

	return string(envelope.StructuredOutput), nil
}

func compactJSON(raw json.RawMessage) (string, error) {
	var value any
	if err := sonic.Unmarshal(raw, &value); err != nil {
		return "", err
	}

	buf, err := sonic.Marshal(value)
	if err != nil {
		return "", err
	}

	return string(buf), nil
}

// Package gemini invokes the gemini CLI, which has no native structured
// output: the schema is appended to the prompt and the document is expected
// somewhere in the prose of stdout.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"

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
	return "gemini"
}

func (p *Provider) Invoke(ctx context.Context, inv gateway.Invocation) (string, error) {
	pretty, err := prettyJSON(inv.Schema)
	if err != nil {
		return "", perrors.NewErrInvalidSchema("Schema is invalid", err)
	}

	combined := fmt.Sprintf("%s\n\n---\nRespond with JSON matching this schema:\n```json\n%s\n```", inv.Prompt, pretty)

	var args []string
	if inv.Model != "" {
		args = append(args, "--model", inv.Model)
	}

	res, err := p.run(ctx, "gemini", args, combined, inv.Timeout)
	if err != nil {
		return "", err
	}

	return res.Stdout, nil
}

func prettyJSON(raw json.RawMessage) (string, error) {
	var value any
	if err := sonic.Unmarshal(raw, &value); err != nil {
		return "", err
	}

	buf, err := sonic.MarshalIndent(value, "", "  ")
	if err != nil {
		return "", err
	}

	return string(buf), nil
}

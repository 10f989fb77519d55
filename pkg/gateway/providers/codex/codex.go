// Package codex invokes the codex CLI. The output schema is handed over as a
// temp file; stdout is the structured document itself.
package codex

import (
	"context"
	"fmt"
	"os"

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
	return "codex"
}

func (p *Provider) Invoke(ctx context.Context, inv gateway.Invocation) (string, error) {
	schemaPath, cleanup, err := writeSchemaFile(inv.Schema)
	if err != nil {
		return "", err
	}
	defer cleanup()

	args := []string{"exec"}
	if inv.Model != "" {
		args = append(args, "--model", inv.Model)
	}
	args = append(args, "--output-schema", schemaPath, "--skip-git-repo-check")

	res, err := p.run(ctx, "codex", args, inv.Prompt, inv.Timeout)
	if err != nil {
		return "", err
	}

	return res.Stdout, nil
}

func writeSchemaFile(schema []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "llmux-schema-*.json")
	if err != nil {
		return "", nil, perrors.NewErrProviderExecution("failed to create schema file", fmt.Errorf("failed to create temp file: %w", err), "")
	}

	cleanup := func() { _ = os.Remove(f.Name()) }

	if _, err := f.Write(schema); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, perrors.NewErrProviderExecution("failed to write schema file", err, "")
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, perrors.NewErrProviderExecution("failed to write schema file", err, "")
	}

	return f.Name(), cleanup, nil
}

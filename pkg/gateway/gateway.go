// Package gateway is the admission-control and dispatch core: it resolves the
// target governing a request, enforces its rate limits, supervises the
// provider execution, and validates the structured result.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/curaious/llmux/internal/config"
	"github.com/curaious/llmux/internal/perrors"
	"github.com/curaious/llmux/pkg/schema"
)

type Gateway struct {
	registry  *Registry
	providers map[string]Provider
}

// New builds a gateway over the configured providers. A request is only
// servable when its provider is both configured and registered here.
func New(conf []config.ProviderConfig, providers ...Provider) *Gateway {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}

	return &Gateway{
		registry:  NewRegistry(conf),
		providers: byName,
	}
}

// Generate handles one request end to end: validate, resolve the target,
// acquire admission, run the executor, extract and validate the output.
// Denied admission returns rate_limited immediately; nothing queues and
// nothing retries. Every failure leaves here as a classified perrors.Err.
func (g *Gateway) Generate(ctx context.Context, req *GenerateRequest) (json.RawMessage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	resolvedSchema, err := schema.Compile(req.Schema)
	if err != nil {
		return nil, err
	}

	target, limiter, err := g.registry.Resolve(req.Provider, req.Model)
	if err != nil {
		return nil, err
	}

	provider, ok := g.providers[target.Provider]
	if !ok {
		return nil, perrors.NewErrProviderNotFound(target.Provider)
	}

	if !limiter.TryAcquire() {
		return nil, perrors.NewErrRateLimited(target.Provider, target.modelLabel())
	}

	slog.InfoContext(ctx, "Executing request",
		slog.String("provider", target.Provider),
		slog.String("model", target.modelLabel()),
		slog.Duration("timeout", target.Timeout),
	)

	// The permit is held for the execution only and released on every exit
	// path, including panics and caller cancellation.
	raw, err := func() (string, error) {
		defer limiter.Release()
		return provider.Invoke(ctx, Invocation{
			Prompt:  req.Prompt,
			Schema:  req.Schema,
			Model:   target.Model,
			Timeout: target.Timeout,
		})
	}()
	if err != nil {
		return nil, classify(err)
	}

	doc, err := schema.Extract(raw)
	if err != nil {
		return nil, err
	}

	if err := schema.Validate(resolvedSchema, doc); err != nil {
		return nil, err
	}

	return doc, nil
}

// classify guarantees no failure escapes the dispatcher unmapped.
func classify(err error) error {
	var perr perrors.Err
	if errors.As(err, &perr) {
		return err
	}
	return perrors.NewErrInternalServerError("Provider invocation failed", err)
}

package gateway

import (
	"sync"
	"time"

	"github.com/curaious/llmux/internal/config"
	"github.com/curaious/llmux/internal/perrors"
	"github.com/curaious/llmux/pkg/gateway/ratelimit"
)

// autoModelLabel names the AUTO target in logs and errors.
const autoModelLabel = "auto"

type targetKey struct {
	provider string
	model    string
}

// Target is the resolved unit of rate limiting and execution. Its limit tuple
// is fixed at resolution time and never changes afterwards.
type Target struct {
	Provider string
	Model    string // empty means auto model selection
	Limits   ratelimit.Limits
	Timeout  time.Duration
}

func (t Target) modelLabel() string {
	if t.Model == "" {
		return autoModelLabel
	}
	return t.Model
}

// Registry resolves (provider, model) pairs against the configuration and
// owns one lazily created limiter per distinct target. The configuration is
// immutable after construction; the limiter map is the only mutable state.
type Registry struct {
	providers map[string]config.ProviderConfig
	limiters  sync.Map // targetKey -> *ratelimit.Limiter
}

func NewRegistry(providers []config.ProviderConfig) *Registry {
	byName := make(map[string]config.ProviderConfig, len(providers))
	for _, p := range providers {
		byName[p.Name] = p
	}

	return &Registry{providers: byName}
}

// Resolve maps a (provider, model) pair to its target and limiter. Model-level
// limits fully override the provider defaults; the provider-level tuple only
// governs auto-model requests.
func (r *Registry) Resolve(provider, model string) (Target, *ratelimit.Limiter, error) {
	p, ok := r.providers[provider]
	if !ok {
		return Target{}, nil, perrors.NewErrProviderNotFound(provider)
	}

	var target Target
	if model == "" {
		if !p.AutoModelAllowed() {
			return Target{}, nil, perrors.NewErrAutoModelNotSupported(provider)
		}

		target = Target{
			Provider: provider,
			Limits:   ratelimit.Limits{RPS: p.RPS, RPM: p.RPM, Concurrent: p.Concurrent},
			Timeout:  time.Duration(p.TimeoutSecs) * time.Second,
		}
	} else {
		m, ok := findModel(p, model)
		if !ok {
			return Target{}, nil, perrors.NewErrModelNotFound(provider, model)
		}

		target = Target{
			Provider: provider,
			Model:    model,
			Limits:   ratelimit.Limits{RPS: m.RPS, RPM: m.RPM, Concurrent: m.Concurrent},
			Timeout:  time.Duration(m.TimeoutSecs) * time.Second,
		}
	}

	return target, r.limiter(targetKey{provider: provider, model: model}, target.Limits), nil
}

// limiter returns the one limiter for key, creating it on first use. The
// LoadOrStore pairing guarantees concurrent first resolvers of a new target
// all end up sharing a single limiter.
func (r *Registry) limiter(key targetKey, limits ratelimit.Limits) *ratelimit.Limiter {
	if lim, ok := r.limiters.Load(key); ok {
		return lim.(*ratelimit.Limiter)
	}

	lim, _ := r.limiters.LoadOrStore(key, ratelimit.New(limits))
	return lim.(*ratelimit.Limiter)
}

func findModel(p config.ProviderConfig, name string) (config.ModelConfig, bool) {
	for _, m := range p.Models {
		if m.Name == name {
			return m, true
		}
	}
	return config.ModelConfig{}, false
}

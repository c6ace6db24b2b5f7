package app

import (
	"context"
	"fmt"

	"github.com/MrWong99/narrator/internal/backend"
	"github.com/MrWong99/narrator/internal/config"
	"github.com/MrWong99/narrator/internal/resilience"
	"github.com/MrWong99/narrator/pkg/provider/llm"
)

// BuildProfiles creates one backend profile per configured backend. Each
// transport comes from reg. A backend with fallbacks gets a transport that
// tries its own provider first and then the fallbacks' providers in order,
// each behind its own circuit breaker.
func BuildProfiles(cfg *config.Config, reg *config.Registry) (*backend.Set, error) {
	transports := make(map[string]llm.Provider, len(cfg.Backends))
	for _, b := range cfg.Backends {
		p, err := reg.CreateLLM(b)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		transports[b.Name] = p
	}

	profiles := make([]*backend.Profile, 0, len(cfg.Backends))
	active := ""
	for _, b := range cfg.Backends {
		p := &backend.Profile{
			Name:           b.Name,
			Provider:       b.Provider,
			Model:          b.Model,
			SecondaryModel: b.SecondaryModel,
			UseSecondary:   b.UseSecondary,
			SwitchCadence:  b.SwitchCadence,
			JSONModels:     b.JSONModels,
			LLM:            transports[b.Name],
		}
		if len(b.Fallbacks) > 0 {
			fb := resilience.NewLLMFallback(transports[b.Name], b.Name, resilience.FallbackConfig{})
			for _, name := range b.Fallbacks {
				alt := cfg.Backend(name)
				if alt == nil {
					return nil, fmt.Errorf("app: backend %q: unknown fallback %q", b.Name, name)
				}
				fb.AddFallback(name, &modelOverride{Provider: transports[name], model: alt.Model})
			}
			p.LLM = fb
		}
		if b.Active {
			active = b.Name
		}
		profiles = append(profiles, p)
	}

	set, err := backend.NewSet(profiles, active)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return set, nil
}

// modelOverride sends every request with a fixed model. Fallback transports
// belong to other backends and do not know the failing backend's model ids.
type modelOverride struct {
	llm.Provider
	model string
}

func (m *modelOverride) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if m.model != "" {
		req.Model = m.model
	}
	return m.Provider.Complete(ctx, req)
}

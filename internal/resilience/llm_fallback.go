package resilience

import (
	"context"

	"github.com/MrWong99/narrator/pkg/provider/llm"
)

// LLMFallback is an [llm.Provider] that fails over across several backends,
// each behind its own circuit breaker.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an LLMFallback with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend behind the existing ones.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends req to the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Capabilities reports what every backend supports, since any of them may
// serve the next request.
func (f *LLMFallback) Capabilities() llm.Capabilities {
	entries := f.group.snapshot()
	if len(entries) == 0 {
		return llm.Capabilities{}
	}
	caps := entries[0].value.Capabilities()
	for _, e := range entries[1:] {
		c := e.value.Capabilities()
		caps.SupportsPenalties = caps.SupportsPenalties && c.SupportsPenalties
		caps.SupportsResponseFormat = caps.SupportsResponseFormat && c.SupportsResponseFormat
	}
	return caps
}

// States returns the breaker state of every backend keyed by name.
func (f *LLMFallback) States() map[string]State {
	return f.group.States()
}

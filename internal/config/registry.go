package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/narrator/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by [Registry.CreateLLM] when no
// factory is registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// LLMFactory builds a transport for a backend profile.
type LLMFactory func(BackendConfig) (llm.Provider, error)

// Registry maps provider names to LLM factories. It is safe for concurrent
// use.
type Registry struct {
	mu  sync.RWMutex
	llm map[string]LLMFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{llm: make(map[string]LLMFactory)}
}

// RegisterLLM registers factory under name, replacing any previous one.
func (r *Registry) RegisterLLM(name string, factory LLMFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// Has reports whether a factory is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.llm[name]
	return ok
}

// CreateLLM builds the transport for b using the factory registered under
// b.Provider.
func (r *Registry) CreateLLM(b BackendConfig) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[b.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, b.Provider)
	}
	p, err := factory(b)
	if err != nil {
		return nil, fmt.Errorf("config: create backend %q: %w", b.Name, err)
	}
	return p, nil
}

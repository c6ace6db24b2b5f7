// Package backend holds the configured LLM backend profiles and the single
// active profile that narration turns target.
//
// A [Profile] pairs a transport ([llm.Provider]) with a primary and optional
// secondary model, a switch cadence, and cumulative character counters used
// for usage accounting. Counters are updated by concurrent persona turns and
// are therefore atomic.
//
// All exported types are safe for concurrent use.
package backend

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/narrator/pkg/provider/llm"
)

// DefaultJSONModels lists the model id substrings known to honour the
// json_object response format.
var DefaultJSONModels = []string{"1106", "0125"}

// ErrNoActiveProfile is returned when no profile is marked active.
var ErrNoActiveProfile = errors.New("backend: no active profile")

// Usage is a point-in-time copy of a profile's character counters.
type Usage struct {
	CharactersSent     int64
	CharactersReceived int64
}

// Profile is one configured backend: provider identity, model pair and usage
// counters.
type Profile struct {
	// Name uniquely identifies the profile.
	Name string

	// Provider is the provider registry name (e.g. "openai", "ollama").
	Provider string

	// Model is the primary model id. An empty value means the profile is not
	// usable for narration.
	Model string

	// SecondaryModel is the optional secondary model id.
	SecondaryModel string

	// UseSecondary enables alternation to SecondaryModel.
	UseSecondary bool

	// SwitchCadence N means "use the secondary model every Nth turn".
	SwitchCadence int

	// JSONModels overrides [DefaultJSONModels] when non-empty.
	JSONModels []string

	// LLM is the transport used for every request against this profile.
	LLM llm.Provider

	sent     atomic.Int64
	received atomic.Int64
}

// HasSecondary reports whether turns may alternate to the secondary model.
func (p *Profile) HasSecondary() bool {
	return p.UseSecondary && p.SecondaryModel != ""
}

// SupportsJSON reports whether model matches one of the profile's JSON-ready
// model id substrings.
func (p *Profile) SupportsJSON(model string) bool {
	list := p.JSONModels
	if len(list) == 0 {
		list = DefaultJSONModels
	}
	return slices.ContainsFunc(list, func(id string) bool {
		return id != "" && strings.Contains(model, id)
	})
}

// AddSent adds n characters to the sent counter.
func (p *Profile) AddSent(n int) { p.sent.Add(int64(n)) }

// AddReceived adds n characters to the received counter.
func (p *Profile) AddReceived(n int) { p.received.Add(int64(n)) }

// Usage returns the current counter values.
func (p *Profile) Usage() Usage {
	return Usage{
		CharactersSent:     p.sent.Load(),
		CharactersReceived: p.received.Load(),
	}
}

// SeedUsage overwrites the counters, typically with values loaded from
// persistent storage at startup.
func (p *Profile) SeedUsage(u Usage) {
	p.sent.Store(u.CharactersSent)
	p.received.Store(u.CharactersReceived)
}

// Set is the collection of configured profiles with exactly one active.
type Set struct {
	mu       sync.RWMutex
	profiles []*Profile
	active   *Profile
}

// NewSet creates a Set from profiles and activates the one named active.
// Profile names must be unique.
func NewSet(profiles []*Profile, active string) (*Set, error) {
	seen := make(map[string]bool, len(profiles))
	var errs []error
	for i, p := range profiles {
		switch {
		case p == nil:
			errs = append(errs, fmt.Errorf("backend: profile[%d] is nil", i))
			continue
		case p.Name == "":
			errs = append(errs, fmt.Errorf("backend: profile[%d] has no name", i))
		case seen[p.Name]:
			errs = append(errs, fmt.Errorf("backend: duplicate profile name %q", p.Name))
		}
		seen[p.Name] = true
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	s := &Set{profiles: slices.Clone(profiles)}
	if active != "" {
		if err := s.Activate(active); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Active returns the active profile, or nil when none is active.
func (s *Set) Active() *Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Activate makes the named profile the active one. Any previously active
// profile becomes inactive.
func (s *Set) Activate(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.Name == name {
			s.active = p
			return nil
		}
	}
	return fmt.Errorf("backend: unknown profile %q", name)
}

// Get returns the named profile.
func (s *Set) Get(name string) (*Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// All returns every profile in configuration order.
func (s *Set) All() []*Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.profiles)
}

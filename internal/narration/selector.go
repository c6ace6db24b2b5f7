package narration

import (
	"sync"

	"github.com/MrWong99/narrator/internal/backend"
)

// ProfileSource yields the active backend profile. *backend.Set implements it.
type ProfileSource interface {
	Active() *backend.Profile
}

// Selector picks the model for each request of one session, alternating
// between the active profile's primary and secondary models. Counter updates
// and reads happen under one lock.
type Selector struct {
	profiles ProfileSource

	mu      sync.Mutex
	counter int
}

// NewSelector creates a Selector reading the active profile from profiles.
func NewSelector(profiles ProfileSource) *Selector {
	return &Selector{profiles: profiles}
}

// Resolve returns the model id for the next request and the profile it
// belongs to. The model is empty when there is no active profile or the
// profile has no primary model.
//
// With a secondary model configured, every SwitchCadence-th call returns the
// secondary model and resets the counter.
func (s *Selector) Resolve() (string, *backend.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked()
}

// ResolveSecondary forces the secondary model and resolves in one step.
func (s *Selector) ResolveSecondary() (string, *backend.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.profiles.Active(); p != nil {
		s.counter = p.SwitchCadence
	}
	return s.resolveLocked()
}

func (s *Selector) resolveLocked() (string, *backend.Profile) {
	p := s.profiles.Active()
	if p == nil || p.Model == "" {
		return "", p
	}
	if !p.HasSecondary() || p.SwitchCadence < 1 {
		return p.Model, p
	}

	s.counter++
	// A forced counter sits at the cadence before the increment, hence >=.
	if s.counter >= p.SwitchCadence {
		s.counter = 0
		return p.SecondaryModel, p
	}
	return p.Model, p
}

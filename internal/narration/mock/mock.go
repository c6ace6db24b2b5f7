// Package mock provides test doubles for the collaborators of the narration
// controller: the persona registry, the snapshot source and the state store.
package mock

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/narrator/internal/narration"
)

// Registry is a mock implementation of narration.Registry.
type Registry struct {
	mu sync.Mutex

	// Others is returned by ListOtherActive with the excluded name removed.
	Others []string

	// ResetFunc, if set, is called by ResetAll.
	ResetFunc func()

	// ListCalls records the argument of every ListOtherActive call.
	ListCalls []string

	// ResetCalls records the generation of every ResetAll call.
	ResetCalls []uint64
}

// ListOtherActive records the call and returns Others without excluding.
func (r *Registry) ListOtherActive(excluding string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ListCalls = append(r.ListCalls, excluding)
	out := make([]string, 0, len(r.Others))
	for _, n := range r.Others {
		if n != excluding {
			out = append(out, n)
		}
	}
	return out
}

// ResetAll records the call and invokes ResetFunc.
func (r *Registry) ResetAll(generation uint64) {
	r.mu.Lock()
	r.ResetCalls = append(r.ResetCalls, generation)
	fn := r.ResetFunc
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Resets returns the generations passed to ResetAll in call order.
// Thread-safe.
func (r *Registry) Resets() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.ResetCalls)
}

// SnapshotSource is a mock implementation of narration.SnapshotSource.
type SnapshotSource struct {
	mu sync.Mutex

	// Current is returned by Snapshot.
	Current narration.Snapshot

	// Calls counts Snapshot invocations.
	Calls int
}

// Snapshot returns Current.
func (s *SnapshotSource) Snapshot(context.Context) narration.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	return s.Current
}

// Set replaces Current. Thread-safe.
func (s *SnapshotSource) Set(snap narration.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Current = snap
}

// StateStore is an in-memory narration.StateStore.
type StateStore struct {
	mu sync.Mutex

	// LoadErr and SaveErr, if non-nil, are returned by the respective calls.
	LoadErr error
	SaveErr error

	states map[string]narration.State
	saves  int
}

// LoadState returns the stored state for persona.
func (s *StateStore) LoadState(_ context.Context, persona string) (narration.State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return narration.State{}, false, s.LoadErr
	}
	st, ok := s.states[persona]
	return st, ok, nil
}

// SaveState stores st for persona.
func (s *StateStore) SaveState(_ context.Context, persona string, st narration.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.SaveErr != nil {
		return s.SaveErr
	}
	if s.states == nil {
		s.states = make(map[string]narration.State)
	}
	st.History = slices.Clone(st.History)
	s.states[persona] = st
	return nil
}

// Saves returns the number of SaveState calls, failed ones included.
func (s *StateStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Personas returns the names with stored state, sorted.
func (s *StateStore) Personas() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.states))
}

var (
	_ narration.Registry       = (*Registry)(nil)
	_ narration.SnapshotSource = (*SnapshotSource)(nil)
	_ narration.StateStore     = (*StateStore)(nil)
)

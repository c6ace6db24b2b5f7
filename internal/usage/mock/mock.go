// Package mock provides an in-memory usage.Store for tests.
package mock

import (
	"context"
	"maps"
	"sync"

	"github.com/MrWong99/narrator/internal/backend"
	"github.com/MrWong99/narrator/internal/usage"
)

// Store is an in-memory usage.Store.
type Store struct {
	mu sync.Mutex

	// LoadErr and SaveErr, if non-nil, are returned by the respective calls.
	LoadErr error
	SaveErr error

	// Rows is the stored data.
	Rows map[string]backend.Usage

	// SaveCalls counts Save invocations, failed ones included.
	SaveCalls int
}

// Load returns a copy of Rows.
func (s *Store) Load(context.Context) (map[string]backend.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	return maps.Clone(s.Rows), nil
}

// Save merges totals into Rows.
func (s *Store) Save(_ context.Context, totals map[string]backend.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SaveCalls++
	if s.SaveErr != nil {
		return s.SaveErr
	}
	if s.Rows == nil {
		s.Rows = make(map[string]backend.Usage)
	}
	maps.Copy(s.Rows, totals)
	return nil
}

// Saves returns SaveCalls. Thread-safe.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SaveCalls
}

// Row returns the stored counters of profile. Thread-safe.
func (s *Store) Row(profile string) backend.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Rows[profile]
}

var _ usage.Store = (*Store)(nil)

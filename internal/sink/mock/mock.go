// Package mock provides a recording sink for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/narrator/internal/sink"
)

// Sink records delivered lines.
type Sink struct {
	mu sync.Mutex

	// Err is returned by Deliver when non-nil. The line is still recorded.
	Err error

	lines []sink.Line
}

// Deliver records line and returns Err.
func (s *Sink) Deliver(_ context.Context, line sink.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
	return s.Err
}

// Lines returns a copy of the delivered lines.
func (s *Sink) Lines() []sink.Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sink.Line, len(s.lines))
	copy(out, s.lines)
	return out
}

// Texts returns the text of every delivered line.
func (s *Sink) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	for i, l := range s.lines {
		out[i] = l.Text
	}
	return out
}

var _ sink.Sink = (*Sink)(nil)

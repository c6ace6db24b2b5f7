// Package observation buffers and debounces game events between narration
// turns.
package observation

import (
	"sync"
	"time"

	"github.com/MrWong99/narrator/internal/narration"
)

// Buffer holds the observations a persona has not yet narrated. It keeps at
// most maxSize entries and drops entries older than maxAge; both limits are
// enforced on every [Buffer.Add] and [Buffer.Drain].
//
// All methods are safe for concurrent use.
type Buffer struct {
	maxSize int
	maxAge  time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries []narration.Observation
	dropped int
}

// NewBuffer creates a buffer. A maxSize below 1 or a non-positive maxAge
// disables the respective limit.
func NewBuffer(maxSize int, maxAge time.Duration) *Buffer {
	return &Buffer{maxSize: maxSize, maxAge: maxAge, now: time.Now}
}

// Add appends obs. A zero timestamp is set to the current time.
func (b *Buffer) Add(obs narration.Observation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if obs.At.IsZero() {
		obs.At = b.now()
	}
	b.entries = append(b.entries, obs)
	b.evict()
}

// Drain returns the pending observations, oldest first, and empties the
// buffer.
func (b *Buffer) Drain() []narration.Observation {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evict()
	out := b.entries
	b.entries = nil
	return out
}

// Len returns the number of pending observations.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Dropped returns how many observations were evicted unread.
func (b *Buffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Clear discards every pending observation.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
}

// evict enforces the age and size limits. Must be called with b.mu held.
func (b *Buffer) evict() {
	start := 0
	if b.maxAge > 0 {
		cutoff := b.now().Add(-b.maxAge)
		for start < len(b.entries) && b.entries[start].At.Before(cutoff) {
			start++
		}
	}
	if b.maxSize > 0 && len(b.entries)-start > b.maxSize {
		start = len(b.entries) - b.maxSize
	}
	if start == 0 {
		return
	}
	b.dropped += start
	// Copy so evicted entries do not pin the old backing array.
	b.entries = append([]narration.Observation(nil), b.entries[start:]...)
}

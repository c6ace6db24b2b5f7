// Package persona keeps the configured narrator personas: each one's
// narration session, pending observations and speaking schedule.
//
// [Registry] implements narration.Registry so the controller can list
// co-observers and broadcast a reset after a game restart.
package persona

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/narrator/internal/narration"
	"github.com/MrWong99/narrator/internal/observation"
)

// Entry is one registered persona.
type Entry struct {
	Session *narration.Session
	Buffer  *observation.Buffer

	mu            sync.Mutex
	enabled       bool
	speakInterval time.Duration
	lastTurn      time.Time
}

// Name returns the persona name.
func (e *Entry) Name() string { return e.Session.Name() }

// Enabled reports whether the persona takes turns.
func (e *Entry) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Due reports whether the persona is enabled and its speak interval has
// elapsed since the last turn.
func (e *Entry) Due(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled && now.Sub(e.lastTurn) >= e.speakInterval
}

// MarkTurn records that a turn started at t.
func (e *Entry) MarkTurn(t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastTurn = t
}

// Spec describes a persona to register.
type Spec struct {
	Persona       narration.Persona
	Enabled       bool
	SpeakInterval time.Duration

	// SessionOptions are passed to narration.NewSession.
	SessionOptions []narration.SessionOption
}

// Registry is the ordered set of personas. All methods are safe for
// concurrent use.
type Registry struct {
	profiles   narration.ProfileSource
	bufferSize int
	bufferAge  time.Duration
	onReset    func()

	mu      sync.RWMutex
	entries []*Entry
	// Generation of the last handled reset; valid once resetDone is set.
	resetGen  uint64
	resetDone bool
}

// Option configures a [Registry].
type Option func(*Registry)

// WithBuffer sets the per-persona observation buffer limits.
func WithBuffer(maxSize int, maxAge time.Duration) Option {
	return func(r *Registry) {
		r.bufferSize = maxSize
		r.bufferAge = maxAge
	}
}

// WithResetHook registers fn to run after every effective [Registry.ResetAll],
// e.g. to drop the record keeper's stale colony data.
func WithResetHook(fn func()) Option {
	return func(r *Registry) { r.onReset = fn }
}

// NewRegistry creates an empty registry whose sessions target the active
// profile of profiles.
func NewRegistry(profiles narration.ProfileSource, opts ...Option) *Registry {
	r := &Registry{
		profiles:   profiles,
		bufferSize: 50,
		bufferAge:  5 * time.Minute,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Add registers a persona at the end of the order. Names must be unique.
func (r *Registry) Add(spec Spec) (*Entry, error) {
	if spec.Persona.Name == "" {
		return nil, fmt.Errorf("persona: name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexLocked(spec.Persona.Name) >= 0 {
		return nil, fmt.Errorf("persona: %q already registered", spec.Persona.Name)
	}
	e := &Entry{
		Session:       narration.NewSession(spec.Persona, r.profiles, spec.SessionOptions...),
		Buffer:        observation.NewBuffer(r.bufferSize, r.bufferAge),
		enabled:       spec.Enabled,
		speakInterval: spec.SpeakInterval,
	}
	r.entries = append(r.entries, e)
	return e, nil
}

// Update changes a persona's settings in place, keeping its session state.
func (r *Registry) Update(spec Spec) error {
	e := r.Get(spec.Persona.Name)
	if e == nil {
		return fmt.Errorf("persona: %q not registered", spec.Persona.Name)
	}
	e.Session.SetPersona(spec.Persona)
	e.mu.Lock()
	e.enabled = spec.Enabled
	e.speakInterval = spec.SpeakInterval
	e.mu.Unlock()
	if !spec.Enabled {
		e.Buffer.Clear()
	}
	return nil
}

// Remove unregisters the persona named name. It reports whether it existed.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(name)
	if i < 0 {
		return false
	}
	r.entries = slices.Delete(r.entries, i, i+1)
	return true
}

// Get returns the persona named name, or nil.
func (r *Registry) Get(name string) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexLocked(name); i >= 0 {
		return r.entries[i]
	}
	return nil
}

// All returns every persona in registration order.
func (r *Registry) All() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.entries)
}

// Active returns the enabled personas in registration order.
func (r *Registry) Active() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Enabled() {
			out = append(out, e)
		}
	}
	return out
}

// ListOtherActive returns the names of the enabled personas other than
// excluding, in registration order.
func (r *Registry) ListOtherActive(excluding string) []string {
	var out []string
	for _, e := range r.Active() {
		if n := e.Name(); n != excluding {
			out = append(out, n)
		}
	}
	return out
}

// ResetAll schedules a state reset on every session and clears pending
// observations. Sessions apply the reset at the start of their next turn.
//
// Personas running in the same round see the same restart; only the first
// call for a snapshot generation resets, later calls for that generation or
// an older one are ignored.
func (r *Registry) ResetAll(generation uint64) {
	r.mu.Lock()
	if r.resetDone && generation <= r.resetGen {
		r.mu.Unlock()
		return
	}
	r.resetGen, r.resetDone = generation, true
	r.mu.Unlock()

	for _, e := range r.All() {
		e.Session.MarkReset()
		e.Buffer.Clear()
	}
	if r.onReset != nil {
		r.onReset()
	}
}

// Observe hands obs to every enabled persona.
func (r *Registry) Observe(obs narration.Observation) {
	for _, e := range r.Active() {
		e.Buffer.Add(obs)
	}
}

func (r *Registry) indexLocked(name string) int {
	return slices.IndexFunc(r.entries, func(e *Entry) bool { return e.Name() == name })
}

var _ narration.Registry = (*Registry)(nil)

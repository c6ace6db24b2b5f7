package narration

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultInitialPenalty is the penalty a fresh session starts with.
const DefaultInitialPenalty = 0.5

// State is the persisted part of a session.
type State struct {
	History        []string `json:"history"`
	LastSpokenText string   `json:"last_spoken_text"`
	Penalty        float64  `json:"penalty"`
}

// StateStore persists session state across restarts.
type StateStore interface {
	LoadState(ctx context.Context, persona string) (State, bool, error)
	SaveState(ctx context.Context, persona string, st State) error
}

// Phase is the position of a session in the turn state machine.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseAssembling
	PhaseAwaitingModel
	PhaseParsing
	PhaseValidating
	PhaseRetrying
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAssembling:
		return "assembling"
	case PhaseAwaitingModel:
		return "awaiting_model"
	case PhaseParsing:
		return "parsing"
	case PhaseValidating:
		return "validating"
	case PhaseRetrying:
		return "retrying"
	default:
		return "unknown"
	}
}

// Session is the narration state owned by one persona: rolling history,
// current penalty, last accepted line and model selection counter.
type Session struct {
	selector       *Selector
	initialPenalty float64

	busy         atomic.Bool
	resetPending atomic.Bool
	phase        atomic.Int32

	mu         sync.Mutex
	persona    Persona
	history    *History
	lastSpoken string
	penalty    float64
}

type sessionConfig struct {
	threshold      int
	initialPenalty float64
	state          *State
}

// SessionOption configures a [Session].
type SessionOption func(*sessionConfig)

// WithHistoryThreshold sets the condensation threshold.
func WithHistoryThreshold(n int) SessionOption {
	return func(c *sessionConfig) { c.threshold = n }
}

// WithInitialPenalty sets the penalty used before the first accepted turn and
// after a reset.
func WithInitialPenalty(p float64) SessionOption {
	return func(c *sessionConfig) { c.initialPenalty = p }
}

// WithState restores previously persisted state.
func WithState(st State) SessionOption {
	return func(c *sessionConfig) { c.state = &st }
}

// NewSession creates a session for p that targets the active profile of
// profiles.
func NewSession(p Persona, profiles ProfileSource, opts ...SessionOption) *Session {
	cfg := sessionConfig{
		threshold:      DefaultHistoryThreshold,
		initialPenalty: DefaultInitialPenalty,
	}
	for _, o := range opts {
		o(&cfg)
	}

	s := &Session{
		selector:       NewSelector(profiles),
		initialPenalty: cfg.initialPenalty,
		persona:        p,
		history:        NewHistory(cfg.threshold),
		penalty:        cfg.initialPenalty,
	}
	if cfg.state != nil {
		s.history.Replace(cfg.state.History...)
		s.lastSpoken = cfg.state.LastSpokenText
		s.penalty = cfg.state.Penalty
	}
	return s
}

// Name returns the persona name.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persona.Name
}

// Persona returns the current persona settings.
func (s *Session) Persona() Persona {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persona
}

// SetPersona replaces the persona settings. The name must not change; state
// is kept. Takes effect at the next turn.
func (s *Session) SetPersona(p Persona) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Name = s.persona.Name
	s.persona = p
}

// Selector returns the session's model selector.
func (s *Session) Selector() *Selector { return s.selector }

// History returns a copy of the current history.
func (s *Session) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Entries()
}

// LastSpokenText returns the last accepted line.
func (s *Session) LastSpokenText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSpoken
}

// Penalty returns the penalty that the next request will carry.
func (s *Session) Penalty() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.penalty
}

// NeedsCondense reports whether the committed history exceeds the
// condensation threshold.
func (s *Session) NeedsCondense() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.NeedsCondense()
}

// SetHistoryThreshold changes the condensation threshold. It applies from
// the next turn on.
func (s *Session) SetHistoryThreshold(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.SetThreshold(n)
}

// Phase returns the session's current turn phase.
func (s *Session) Phase() Phase { return Phase(s.phase.Load()) }

// State returns a copy of the persisted state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		History:        s.history.Entries(),
		LastSpokenText: s.lastSpoken,
		Penalty:        s.penalty,
	}
}

// MarkReset schedules a state reset before the next turn. Safe to call while
// a turn is running.
func (s *Session) MarkReset() { s.resetPending.Store(true) }

func (s *Session) setPhase(p Phase) { s.phase.Store(int32(p)) }

// applyPendingReset clears history, last line and penalty if a reset was
// scheduled.
func (s *Session) applyPendingReset() bool {
	if !s.resetPending.CompareAndSwap(true, false) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Replace()
	s.lastSpoken = ""
	s.penalty = s.initialPenalty
	return true
}

// prepared is the per-attempt copy of session state.
type prepared struct {
	history       []string
	lastSpoken    string
	penalty       float64
	notice        bool
	needsCondense bool
}

// prepare returns a copy of the committed state for one attempt. A detected
// restart first replaces the committed history with [RestartMarker].
// Attempts never write history back; only [Session.commit] does.
func (s *Session) prepare(reset bool) prepared {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reset {
		s.history.Replace(RestartMarker)
	}
	p := prepared{
		history:       s.history.Entries(),
		lastSpoken:    s.lastSpoken,
		penalty:       s.penalty,
		notice:        s.penalty > 1,
		needsCondense: s.history.NeedsCondense(),
	}
	return p
}

func (s *Session) replaceHistory(entries []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Replace(entries...)
}

func (s *Session) setPenalty(p float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.penalty = p
}

// commit installs the outcome of an accepted attempt: the spoken line and,
// when adoptHistory is set, the reply's key events.
func (s *Session) commit(text string, events []string, adoptHistory bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if adoptHistory {
		s.history.Replace(events...)
	}
	s.lastSpoken = text
}

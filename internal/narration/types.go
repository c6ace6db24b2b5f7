// Package narration implements the persona-driven narration turn: prompt
// assembly from game snapshots and rolling history, model selection, strict
// reply parsing, similarity-based repetition control, history condensation
// and a bounded retry loop around the LLM transport.
//
// The entry point is [Controller.Evaluate], which runs one turn for one
// persona [Session]. Sessions of different personas are independent and may
// run turns concurrently; a single session runs at most one turn at a time.
package narration

import (
	"context"
	"time"
)

// Persona is a configured narrator identity.
type Persona struct {
	// Name is the persona's display name and unique key.
	Name string

	// Personality is the persona description. The placeholder PLAYERNAME is
	// replaced with the audience framing.
	Personality string

	// Chronicler selects balanced broad narration. When false the persona is
	// an interactor that improvises from its personality.
	Chronicler bool

	// PhraseMaxWords caps the length of ResponseText.
	PhraseMaxWords int

	// HistoryMaxWords caps the length of NewHistoricalKeyEvents.
	HistoryMaxWords int
}

// Default persona length caps.
const (
	DefaultPhraseMaxWords  = 40
	DefaultHistoryMaxWords = 100
)

// Observation is one textual game event.
type Observation struct {
	Text string
	At   time.Time
}

// Context describes where the player currently is.
type Context int

const (
	// ContextInGame means a game is loaded and the player is on a normal
	// in-game view.
	ContextInGame Context = iota

	// ContextMainMenu means no game is running and the start screen is shown.
	ContextMainMenu

	// ContextSiteSelection means no game is running and the player is picking
	// a starting site on the world map.
	ContextSiteSelection

	// ContextDialog means no game is running and a setup dialog is focused.
	// Snapshot.Window carries the dialog name.
	ContextDialog
)

// String returns the wire name of c.
func (c Context) String() string {
	switch c {
	case ContextInGame:
		return "in_game"
	case ContextMainMenu:
		return "main_menu"
	case ContextSiteSelection:
		return "site_selection"
	case ContextDialog:
		return "dialog"
	default:
		return "unknown"
	}
}

// ParseContext maps a wire name back to a Context. Unknown names map to
// ContextInGame.
func ParseContext(s string) Context {
	switch s {
	case "main_menu":
		return ContextMainMenu
	case "site_selection":
		return ContextSiteSelection
	case "dialog":
		return ContextDialog
	default:
		return ContextInGame
	}
}

// UnsetColonySetting is the record keeper's sentinel for "no colony yet".
const UnsetColonySetting = "Unknown as of now..."

// Snapshot is a read-only view of the world at turn time. Every summary may
// be empty when its report is disabled.
type Snapshot struct {
	Context Context
	Window  string

	// Generation counts the colony data resets of the source. Snapshots
	// taken before a reset carry a lower value than those taken after it.
	Generation uint64

	ColonyRoster    []string
	ColonySetting   string
	ResearchSummary string
	ResourceData    string
	EnergyStatus    string
	EnergySummary   string
	RoomsSummary    string
}

// WindowDescription renders the CurrentWindow payload field.
func (s Snapshot) WindowDescription() string {
	switch s.Context {
	case ContextMainMenu:
		return "The player is at the start screen"
	case ContextSiteSelection:
		return "The player is selecting a starting site"
	case ContextDialog:
		return "The player is looking at the dialog " + s.Window
	default:
		return s.Window
	}
}

// colonySet reports whether the snapshot still carries colony data.
func (s Snapshot) colonySet() bool {
	return s.ColonySetting != "" && s.ColonySetting != UnsetColonySetting
}

// SnapshotSource provides the current world snapshot.
type SnapshotSource interface {
	Snapshot(ctx context.Context) Snapshot
}

// Registry is the persona registry collaborator.
type Registry interface {
	// ListOtherActive returns the names of active personas other than
	// excluding, in configuration order.
	ListOtherActive(excluding string) []string

	// ResetAll clears per-persona session state after a game restart was
	// detected in a snapshot of the given generation. Repeated calls for a
	// generation that was already handled are no-ops.
	ResetAll(generation uint64)
}

// Result is an accepted turn.
type Result struct {
	TurnID   string
	Persona  string
	Text     string
	Model    string
	Attempts int
	Penalty  float64
}

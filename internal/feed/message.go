// Package feed receives game state from the game mod over a websocket and
// turns it into narration input: world snapshots for the prompt payload and
// observations for the persona buffers.
//
// Each websocket text frame carries one JSON [Message]:
//
//	{"type":"observation","text":"A raid is approaching"}
//	{"type":"window","window":{"in_game":false,"page":"Page_CreateWorldParams"}}
//	{"type":"snapshot","snapshot":{"colony_roster":["Ada"],"research_summary":"..."}}
package feed

import (
	"time"

	"github.com/MrWong99/narrator/internal/narration"
)

// Message types.
const (
	TypeObservation = "observation"
	TypeWindow      = "window"
	TypeSnapshot    = "snapshot"
)

// Message is one frame sent by the game mod.
type Message struct {
	Type string `json:"type"`

	// Text and At are set for observation messages. A zero At means "now".
	Text string    `json:"text,omitempty"`
	At   time.Time `json:"at,omitzero"`

	Window   *WindowState  `json:"window,omitempty"`
	Snapshot *SnapshotData `json:"snapshot,omitempty"`
}

// WindowState describes the game's focused window.
type WindowState struct {
	// InGame is true when a game is loaded.
	InGame bool `json:"in_game"`

	// Title is the in-game view description, used only when InGame is set.
	Title string `json:"title,omitempty"`

	// Page is the type name of the focused setup page, empty when the
	// focused window is not a setup page.
	Page string `json:"page,omitempty"`

	// SiteSelection is true while the world map site picker is open.
	SiteSelection bool `json:"site_selection,omitempty"`
}

// SnapshotData carries the periodic reports of the game mod. Each message
// replaces all previously received report data.
type SnapshotData struct {
	ColonyRoster    []string `json:"colony_roster,omitempty"`
	ColonySetting   string   `json:"colony_setting,omitempty"`
	ResearchSummary string   `json:"research_summary,omitempty"`
	ResourceData    string   `json:"resource_data,omitempty"`
	EnergyStatus    string   `json:"energy_status,omitempty"`
	EnergySummary   string   `json:"energy_summary,omitempty"`
	RoomsSummary    string   `json:"rooms_summary,omitempty"`
}

// DetectContext maps the focused window to a narration context and the
// window description carried in the snapshot.
//
// Outside a game, a focused setup page is a dialog named after the page.
// Any other window is the site picker or the start screen.
func DetectContext(w WindowState) (narration.Context, string) {
	switch {
	case w.InGame:
		return narration.ContextInGame, w.Title
	case w.Page != "":
		return narration.ContextDialog, w.Page
	case w.SiteSelection:
		return narration.ContextSiteSelection, ""
	default:
		return narration.ContextMainMenu, ""
	}
}

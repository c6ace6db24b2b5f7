package narration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Marker texts written into history and payloads.
const (
	// RestartMarker replaces feed and history after a detected game restart.
	RestartMarker = "The player restarted the game"

	// RepetitionNote is appended to the history sent with an attempt when the
	// previous penalty was high. It is never stored.
	RepetitionNote = "My recent output was too repetitive, I need to check the data and LastSpokenText"

	// PlayerPlaceholder is replaced in persona personalities.
	PlayerPlaceholder = "PLAYERNAME"
)

// Input is the wire shape of the per-turn user payload. Empty members are
// omitted from the encoded JSON.
type Input struct {
	CurrentWindow               string   `json:"CurrentWindow,omitempty"`
	PreviousHistoricalKeyEvents []string `json:"PreviousHistoricalKeyEvents,omitempty"`
	LastSpokenText              string   `json:"LastSpokenText,omitempty"`
	ActivityFeed                []string `json:"ActivityFeed,omitempty"`
	ColonyRoster                []string `json:"ColonyRoster,omitempty"`
	ColonySetting               string   `json:"ColonySetting,omitempty"`
	ResearchSummary             string   `json:"ResearchSummary,omitempty"`
	ResourceData                string   `json:"ResourceData,omitempty"`
	EnergyStatus                string   `json:"EnergyStatus,omitempty"`
	EnergySummary               string   `json:"EnergySummary,omitempty"`
	RoomsSummary                string   `json:"RoomsSummary,omitempty"`
}

// FragmentKind identifies one system prompt fragment.
type FragmentKind int

// System prompt fragments in emission order.
const (
	FragmentIdentity FragmentKind = iota
	FragmentRole
	FragmentCoObservers
	FragmentAudience
	FragmentPersonality
	FragmentExampleInput
	FragmentExampleOutput
	FragmentPhraseCap
	FragmentHistoryCap
	FragmentPriority
	FragmentFusion
	FragmentTimeline
	FragmentStrictJSON
	FragmentExample
	FragmentLanguage
)

var fragmentNames = [...]string{
	FragmentIdentity:      "identity",
	FragmentRole:          "role",
	FragmentCoObservers:   "co-observers",
	FragmentAudience:      "audience",
	FragmentPersonality:   "personality",
	FragmentExampleInput:  "example-input",
	FragmentExampleOutput: "example-output",
	FragmentPhraseCap:     "phrase-cap",
	FragmentHistoryCap:    "history-cap",
	FragmentPriority:      "priority",
	FragmentFusion:        "fusion",
	FragmentTimeline:      "timeline",
	FragmentStrictJSON:    "strict-json",
	FragmentExample:       "example",
	FragmentLanguage:      "language",
}

// String returns the fragment's short name.
func (k FragmentKind) String() string {
	if int(k) < len(fragmentNames) {
		return fragmentNames[k]
	}
	return "unknown"
}

// Fragment is one piece of the system prompt.
type Fragment struct {
	Kind FragmentKind
	Text string
}

// Assembler builds the system prompt and user payload for a turn.
type Assembler struct {
	registry   Registry
	playerName string
	game       string
	language   string

	exampleInput  string
	exampleOutput string
}

// AssemblerOption configures an [Assembler].
type AssemblerOption func(*Assembler)

// WithPlayerName sets the player's name used in the audience framing.
func WithPlayerName(name string) AssemblerOption {
	return func(a *Assembler) { a.playerName = name }
}

// WithGame sets the name of the game being narrated. Default: "RimWorld".
func WithGame(game string) AssemblerOption {
	return func(a *Assembler) {
		if game != "" {
			a.game = game
		}
	}
}

// WithLanguage sets the language replies must be written in. Default: "English".
func WithLanguage(lang string) AssemblerOption {
	return func(a *Assembler) {
		if lang != "" {
			a.language = lang
		}
	}
}

// NewAssembler creates an Assembler. registry supplies the co-observer list.
func NewAssembler(registry Registry, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		registry: registry,
		game:     "RimWorld",
		language: "English",
	}
	for _, o := range opts {
		o(a)
	}
	a.exampleInput = mustJSON(Input{
		CurrentWindow:               "<current window information>",
		ActivityFeed:                []string{"Event1", "Event2", "Event3"},
		PreviousHistoricalKeyEvents: []string{"Old event1", "Old event2", "Old event3"},
		LastSpokenText:              "<previous response, the last thing you said>",
		ColonyRoster:                []string{"Colonist1", "Colonist2", "Colonist3"},
		ColonySetting:               "<the colony's setting and description>",
		ResourceData:                "<a periodically updated report of selected resources>",
		RoomsSummary:                "<a periodically updated summary of the colony's rooms, may never update if the player disabled it>",
		ResearchSummary:             "<a periodically updated summary of completed, current and available research, may never update if the player disabled it>",
		EnergyStatus:                "<the current power grid status>",
		EnergySummary:               "<a periodically updated summary of power generation and demand, may never update if the player disabled it>",
	})
	a.exampleOutput = mustJSON(Output{
		ResponseText:           "<new commentary>",
		NewHistoricalKeyEvents: []string{"Summary of old events", "Event1 and Event2", "Event3"},
	})
	return a
}

// audience returns the player framing.
func (a *Assembler) audience() string {
	if a.playerName == "" {
		return "the player"
	}
	return fmt.Sprintf("the player named '%s'", a.playerName)
}

// Fragments returns the system prompt fragments for p in their fixed order.
// The co-observer fragment is omitted when p is the only active persona.
func (a *Assembler) Fragments(p Persona) []Fragment {
	player := a.audience()
	var others []string
	if a.registry != nil {
		others = a.registry.ListOtherActive(p.Name)
	}

	frags := make([]Fragment, 0, 15)
	add := func(k FragmentKind, format string, args ...any) {
		frags = append(frags, Fragment{Kind: k, Text: fmt.Sprintf(format, args...)})
	}

	add(FragmentIdentity, "You are %s.\n", p.Name)
	if p.Chronicler {
		add(FragmentRole, "Unless instructed otherwise, balance major events with subtle details and express them in your own distinctive style. ")
	} else {
		add(FragmentRole, "Unless instructed otherwise, let your distinctive personality show in every interaction and improvise from your background, the current situation and the actions of others. ")
	}
	watching := "you are watching"
	if len(others) > 0 {
		quoted := make([]string, len(others))
		for i, o := range others {
			quoted[i] = "'" + o + "'"
		}
		add(FragmentCoObservers, "Unless instructed otherwise, your fellow commentators are %s. ", strings.Join(quoted, ", "))
		watching = "you are all watching"
	}
	add(FragmentAudience, "Unless instructed otherwise, %s %s play %s.\n", watching, player, a.game)
	add(FragmentPersonality, "Your role/personality is: %s\n", strings.ReplaceAll(p.Personality, PlayerPlaceholder, player))
	add(FragmentExampleInput, "Your input comes from the game and will always be JSON in this format: %s\n", a.exampleInput)
	add(FragmentExampleOutput, "Your output must follow this JSON format: %s\n", a.exampleOutput)
	add(FragmentPhraseCap, "Limit ResponseText to %d words.\n", p.PhraseMaxWords)
	add(FragmentHistoryCap, "Limit NewHistoricalKeyEvents to %d words.\n", p.HistoryMaxWords)
	add(FragmentPriority, "Update priority: 1. ActivityFeed, 2. everything else as background.\n")
	add(FragmentFusion, "Combine PreviousHistoricalKeyEvents with each event from ActivityFeed into a new, concise NewHistoricalKeyEvents. Make sure the result fits your character.\n")
	add(FragmentTimeline, "The order of LastSpokenText, PreviousHistoricalKeyEvents and ActivityFeed reflects the timeline of events; use it to form coherent replies or interactions.\n")
	add(FragmentStrictJSON, "Remember: your output must be valid JSON and NewHistoricalKeyEvents may only contain simple text entries, each a double-quoted string literal.\n")
	add(FragmentExample, "For example: %s. Nested objects, arrays or non-string values are not allowed in NewHistoricalKeyEvents.\n", a.exampleOutput)
	add(FragmentLanguage, "ResponseText and NewHistoricalKeyEvents must be written in %s.", a.language)
	return frags
}

// SystemPrompt joins the fragments for p.
func (a *Assembler) SystemPrompt(p Persona) string {
	var sb strings.Builder
	for _, f := range a.Fragments(p) {
		sb.WriteString(f.Text)
	}
	return sb.String()
}

// PenaltyNotice is appended to the system prompt when the previous turn's
// penalty exceeded 1.0.
func PenaltyNotice(lastSpoken string) string {
	return "\nNote: your output has been too repetitive. Review the data you have and come up with something new." +
		"\nAvoid talking about anything related to: " + lastSpoken
}

// Payload builds the user payload for a turn from the snapshot and the
// observation batch. History and LastSpokenText are left for the caller.
//
// When the snapshot shows the main menu while still carrying colony data the
// surrounding game was restarted without the record keeper catching up. The
// payload is then scrubbed and reset is true; the caller must replace the
// history with [RestartMarker] and signal the registry.
func (a *Assembler) Payload(snap Snapshot, obs []Observation) (in Input, reset bool) {
	in = Input{
		CurrentWindow:   snap.WindowDescription(),
		ColonyRoster:    snap.ColonyRoster,
		ColonySetting:   snap.ColonySetting,
		ResearchSummary: snap.ResearchSummary,
		ResourceData:    snap.ResourceData,
		EnergyStatus:    snap.EnergyStatus,
		EnergySummary:   snap.EnergySummary,
		RoomsSummary:    snap.RoomsSummary,
	}
	for _, o := range obs {
		in.ActivityFeed = append(in.ActivityFeed, o.Text)
	}

	if snap.Context != ContextMainMenu || !snap.colonySet() {
		return in, false
	}

	if len(in.ActivityFeed) > 0 {
		in.ActivityFeed = []string{RestartMarker}
	}
	in.ColonyRoster = nil
	in.ColonySetting = RestartMarker
	in.ResearchSummary = ""
	in.ResourceData = ""
	in.EnergyStatus = ""
	in.EnergySummary = ""
	in.RoomsSummary = ""
	in.PreviousHistoricalKeyEvents = nil
	return in, true
}

// encodeJSON encodes v without HTML escaping so that angle brackets and
// ampersands reach the model verbatim.
func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func mustJSON(v any) string {
	s, err := encodeJSON(v)
	if err != nil {
		panic("narration: encode example: " + err.Error())
	}
	return s
}

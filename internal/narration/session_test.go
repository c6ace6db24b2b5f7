package narration_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/narrator/internal/narration"
)

func TestSession_Defaults(t *testing.T) {
	t.Parallel()

	s := narration.NewSession(narration.Persona{Name: "Ada"}, staticProfiles{})
	if s.Penalty() != narration.DefaultInitialPenalty {
		t.Errorf("Penalty = %v", s.Penalty())
	}
	if len(s.History()) != 0 || s.LastSpokenText() != "" {
		t.Errorf("fresh session state = %+v", s.State())
	}
	if s.Phase() != narration.PhaseIdle || s.Phase().String() != "idle" {
		t.Errorf("Phase = %v", s.Phase())
	}
}

func TestSession_RestoreState(t *testing.T) {
	t.Parallel()

	st := narration.State{History: []string{"a", "b"}, LastSpokenText: "hi", Penalty: 1.25}
	s := narration.NewSession(narration.Persona{Name: "Ada"}, staticProfiles{},
		narration.WithState(st),
		narration.WithInitialPenalty(0.1),
		narration.WithHistoryThreshold(8),
	)
	got := s.State()
	if !slices.Equal(got.History, st.History) || got.LastSpokenText != "hi" || got.Penalty != 1.25 {
		t.Errorf("State = %+v, want %+v", got, st)
	}
}

func TestSession_SetPersonaKeepsName(t *testing.T) {
	t.Parallel()

	s := narration.NewSession(narration.Persona{Name: "Ada", Personality: "old"}, staticProfiles{})
	s.SetPersona(narration.Persona{Name: "Eve", Personality: "new"})
	p := s.Persona()
	if p.Name != "Ada" || p.Personality != "new" {
		t.Errorf("Persona = %+v", p)
	}
}

func TestSession_SetHistoryThreshold(t *testing.T) {
	t.Parallel()

	s := narration.NewSession(narration.Persona{Name: "Ada"}, staticProfiles{},
		narration.WithState(narration.State{History: []string{"a", "b", "c"}}))
	if s.NeedsCondense() {
		t.Fatal("3 entries over the default threshold")
	}
	s.SetHistoryThreshold(2)
	if !s.NeedsCondense() {
		t.Error("3 entries must need condensing with threshold 2")
	}
}

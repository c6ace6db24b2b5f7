package observation

import (
	"testing"
	"time"

	"github.com/MrWong99/narrator/internal/narration"
)

func texts(obs []narration.Observation) []string {
	out := make([]string, len(obs))
	for i, o := range obs {
		out[i] = o.Text
	}
	return out
}

func TestBuffer_Drain(t *testing.T) {
	t.Parallel()

	b := NewBuffer(10, time.Minute)
	b.Add(narration.Observation{Text: "a"})
	b.Add(narration.Observation{Text: "b"})
	if b.Len() != 2 {
		t.Fatalf("Len = %d", b.Len())
	}
	got := texts(b.Drain())
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Drain = %q", got)
	}
	if b.Len() != 0 || len(b.Drain()) != 0 {
		t.Error("buffer not empty after Drain")
	}
}

func TestBuffer_MaxSize(t *testing.T) {
	t.Parallel()

	b := NewBuffer(3, 0)
	for _, s := range []string{"1", "2", "3", "4", "5"} {
		b.Add(narration.Observation{Text: s})
	}
	got := texts(b.Drain())
	if len(got) != 3 || got[0] != "3" || got[2] != "5" {
		t.Errorf("Drain = %q, want newest three", got)
	}
	if b.Dropped() != 2 {
		t.Errorf("Dropped = %d", b.Dropped())
	}
}

func TestBuffer_MaxAge(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	b := NewBuffer(0, time.Minute)
	b.now = func() time.Time { return now }

	b.Add(narration.Observation{Text: "old", At: now.Add(-2 * time.Minute)})
	b.Add(narration.Observation{Text: "fresh"})
	now = now.Add(30 * time.Second)
	b.Add(narration.Observation{Text: "newer"})

	got := texts(b.Drain())
	if len(got) != 2 || got[0] != "fresh" || got[1] != "newer" {
		t.Errorf("Drain = %q", got)
	}
}

func TestBuffer_Clear(t *testing.T) {
	t.Parallel()

	b := NewBuffer(5, time.Minute)
	b.Add(narration.Observation{Text: "x"})
	b.Clear()
	if b.Len() != 0 {
		t.Errorf("Len after Clear = %d", b.Len())
	}
}

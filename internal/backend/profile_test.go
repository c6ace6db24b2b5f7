package backend_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrWong99/narrator/internal/backend"
	"github.com/MrWong99/narrator/pkg/provider/llm"
	llmmock "github.com/MrWong99/narrator/pkg/provider/llm/mock"
)

func TestProfile_SupportsJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		list  []string
		model string
		want  bool
	}{
		{"default 1106", nil, "gpt-4-1106-preview", true},
		{"default 0125", nil, "gpt-3.5-turbo-0125", true},
		{"default miss", nil, "gpt-4", false},
		{"custom list", []string{"4o"}, "gpt-4o-mini", true},
		{"custom list ignores defaults", []string{"4o"}, "gpt-3.5-turbo-0125", false},
		{"empty entry never matches", []string{""}, "anything", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &backend.Profile{JSONModels: tt.list}
			if got := p.SupportsJSON(tt.model); got != tt.want {
				t.Errorf("SupportsJSON(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

func TestProfile_HasSecondary(t *testing.T) {
	t.Parallel()

	p := &backend.Profile{SecondaryModel: "gpt-4"}
	if p.HasSecondary() {
		t.Error("HasSecondary should be false when UseSecondary is off")
	}
	p.UseSecondary = true
	if !p.HasSecondary() {
		t.Error("HasSecondary should be true")
	}
	p.SecondaryModel = ""
	if p.HasSecondary() {
		t.Error("HasSecondary should be false without a secondary model")
	}
}

func TestProfile_ConcurrentUsage(t *testing.T) {
	t.Parallel()

	p := &backend.Profile{Name: "main"}
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.AddSent(10)
			p.AddReceived(3)
		}()
	}
	wg.Wait()

	got := p.Usage()
	if got.CharactersSent != 500 || got.CharactersReceived != 150 {
		t.Errorf("Usage = %+v, want 500/150", got)
	}

	p.SeedUsage(backend.Usage{CharactersSent: 1, CharactersReceived: 2})
	if got := p.Usage(); got.CharactersSent != 1 || got.CharactersReceived != 2 {
		t.Errorf("Usage after seed = %+v", got)
	}
}

func TestSet_ExactlyOneActive(t *testing.T) {
	t.Parallel()

	a := &backend.Profile{Name: "a", Model: "m1"}
	b := &backend.Profile{Name: "b", Model: "m2"}
	s, err := backend.NewSet([]*backend.Profile{a, b}, "a")
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	if s.Active() != a {
		t.Fatalf("Active = %v, want a", s.Active())
	}
	if err := s.Activate("b"); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if s.Active() != b {
		t.Errorf("Active = %v, want b", s.Active())
	}
	if err := s.Activate("missing"); err == nil {
		t.Error("expected error for unknown profile")
	}
	if s.Active() != b {
		t.Error("failed activation must not change the active profile")
	}
	if got, ok := s.Get("a"); !ok || got != a {
		t.Error("Get(a) failed")
	}
	if len(s.All()) != 2 {
		t.Errorf("All = %d, want 2", len(s.All()))
	}
}

func TestNewSet_Validation(t *testing.T) {
	t.Parallel()

	if _, err := backend.NewSet([]*backend.Profile{{Name: "x"}, {Name: "x"}}, ""); err == nil {
		t.Error("expected error for duplicate names")
	}
	if _, err := backend.NewSet([]*backend.Profile{{}}, ""); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := backend.NewSet([]*backend.Profile{{Name: "x"}}, "y"); err == nil {
		t.Error("expected error for unknown active profile")
	}
	s, err := backend.NewSet(nil, "")
	if err != nil {
		t.Fatalf("NewSet(nil): %v", err)
	}
	if s.Active() != nil {
		t.Error("empty set should have no active profile")
	}
}

func TestProbe(t *testing.T) {
	t.Parallel()

	t.Run("counts usage and returns reply", func(t *testing.T) {
		t.Parallel()
		mock := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Hello there"}}
		p := &backend.Profile{Name: "main", Model: "gpt-4o", LLM: mock}

		got, err := backend.Probe(context.Background(), p, "")
		if err != nil {
			t.Fatalf("Probe: %v", err)
		}
		if got != "Hello there" {
			t.Errorf("reply = %q", got)
		}
		calls := mock.Calls()
		if len(calls) != 1 || calls[0].Req.Model != "gpt-4o" {
			t.Fatalf("calls = %+v", calls)
		}
		if u := p.Usage(); u.CharactersSent != int64(llm.CharCount(calls[0].Req.Messages)) || u.CharactersReceived != 11 {
			t.Errorf("usage = %+v", u)
		}
	})

	t.Run("model override", func(t *testing.T) {
		t.Parallel()
		mock := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ok"}}
		p := &backend.Profile{Name: "main", Model: "gpt-4o", LLM: mock}
		if _, err := backend.Probe(context.Background(), p, "gpt-4o-mini"); err != nil {
			t.Fatalf("Probe: %v", err)
		}
		if got := mock.Calls()[0].Req.Model; got != "gpt-4o-mini" {
			t.Errorf("model = %q, want gpt-4o-mini", got)
		}
	})

	t.Run("errors", func(t *testing.T) {
		t.Parallel()
		if _, err := backend.Probe(context.Background(), nil, ""); !errors.Is(err, backend.ErrNoActiveProfile) {
			t.Errorf("nil profile err = %v", err)
		}
		if _, err := backend.Probe(context.Background(), &backend.Profile{Name: "x"}, ""); err == nil {
			t.Error("expected error without a model")
		}
		boom := errors.New("boom")
		p := &backend.Profile{Name: "x", Model: "m", LLM: &llmmock.Provider{CompleteErr: boom}}
		if _, err := backend.Probe(context.Background(), p, ""); !errors.Is(err, boom) {
			t.Errorf("err = %v, want wrapped boom", err)
		}
		if p.Usage().CharactersSent == 0 {
			t.Error("failed probe should still count sent characters")
		}
	})
}

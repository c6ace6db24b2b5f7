package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newGroup(names ...string) *FallbackGroup[string] {
	fg := NewFallbackGroup(names[0], names[0], FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	for _, n := range names[1:] {
		fg.AddFallback(n, n)
	}
	return fg
}

func TestFallbackGroup_Order(t *testing.T) {
	tests := []struct {
		name    string
		failing map[string]bool
		want    string
		wantErr bool
	}{
		{"primary ok", nil, "primary", false},
		{"primary down", map[string]bool{"primary": true}, "secondary", false},
		{"all down", map[string]bool{"primary": true, "secondary": true}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fg := newGroup("primary", "secondary")
			got, err := ExecuteWithResult(context.Background(), fg, func(_ context.Context, v string) (string, error) {
				if tt.failing[v] {
					return "", errTest
				}
				return v, nil
			})
			if tt.wantErr {
				if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errTest) {
					t.Fatalf("err = %v, want ErrAllFailed wrapping the backend errors", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("got %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	fg := newGroup("primary", "secondary")
	for range 2 {
		_ = fg.Execute(context.Background(), func(_ context.Context, v string) error {
			if v == "primary" {
				return errTest
			}
			return nil
		})
	}
	if st := fg.States(); st["primary"] != StateOpen || st["secondary"] != StateClosed {
		t.Fatalf("States = %v", st)
	}

	var called []string
	err := fg.Execute(context.Background(), func(_ context.Context, v string) error {
		called = append(called, v)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(called) != 1 || called[0] != "secondary" {
		t.Errorf("called = %q, want only secondary", called)
	}
}

func TestFallbackGroup_StopsOnCancel(t *testing.T) {
	fg := newGroup("primary", "secondary")
	ctx, cancel := context.WithCancel(context.Background())

	var called []string
	err := fg.Execute(ctx, func(ctx context.Context, v string) error {
		called = append(called, v)
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(called) != 1 {
		t.Errorf("called = %q, want no failover after cancel", called)
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	fg := newGroup("a", "b", "c")
	got := fg.Names()
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("Names = %q", got)
	}
}

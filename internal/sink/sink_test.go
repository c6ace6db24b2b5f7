package sink_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/MrWong99/narrator/internal/sink"
	"github.com/MrWong99/narrator/internal/sink/mock"
)

func TestLog_Deliver(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := sink.NewLog(slog.New(slog.NewTextHandler(&buf, nil)))
	if err := s.Deliver(context.Background(), sink.Line{Persona: "Ada", Text: "Winter is near."}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "persona=Ada") || !strings.Contains(out, `text="Winter is near."`) {
		t.Errorf("log output = %q", out)
	}
}

func TestMulti_Deliver(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	a := &mock.Sink{Err: boom}
	b := &mock.Sink{}
	err := sink.Multi{a, b}.Deliver(context.Background(), sink.Line{Text: "hi"})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if len(a.Lines()) != 1 || len(b.Lines()) != 1 {
		t.Errorf("deliveries = %d, %d; want 1, 1", len(a.Lines()), len(b.Lines()))
	}

	if err := (sink.Multi{}).Deliver(context.Background(), sink.Line{}); err != nil {
		t.Errorf("empty Multi err = %v", err)
	}
}

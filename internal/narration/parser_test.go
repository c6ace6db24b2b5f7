package narration_test

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/narrator/internal/narration"
)

func TestParseReply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		raw        string
		wantKind   narration.ReplyKind
		wantText   string
		wantEvents []string
		wantErr    error
	}{
		{
			name:       "plain text",
			raw:        "not json at all",
			wantKind:   narration.PlainTextReply,
			wantText:   "not json at all",
			wantEvents: []string{},
		},
		{
			name:       "label stripped",
			raw:        "ResponseText: the raiders are coming",
			wantKind:   narration.PlainTextReply,
			wantText:   "the raiders are coming",
			wantEvents: []string{},
		},
		{
			name:       "json",
			raw:        `{"ResponseText":"Hi","NewHistoricalKeyEvents":["a","b"]}`,
			wantKind:   narration.StructuredReply,
			wantText:   "Hi",
			wantEvents: []string{"a", "b"},
		},
		{
			name:       "json wrapped in prose",
			raw:        "Sure! Here you go:\n```json\n{\"ResponseText\":\"Hi\",\"NewHistoricalKeyEvents\":[\"x\"]}\n```",
			wantKind:   narration.StructuredReply,
			wantText:   "Hi",
			wantEvents: []string{"x"},
		},
		{
			name:       "missing events",
			raw:        `{"ResponseText":"Hi"}`,
			wantKind:   narration.StructuredReply,
			wantText:   "Hi",
			wantEvents: []string{},
		},
		{
			name:    "empty",
			raw:     "   \n",
			wantErr: narration.ErrEmptyResponse,
		},
		{
			name:    "label only",
			raw:     "ResponseText:",
			wantErr: narration.ErrEmptyResponse,
		},
		{
			name:    "broken json",
			raw:     `{"ResponseText": "Hi", "NewHistoricalKeyEvents": [1, {"x": 2}]}`,
			wantErr: narration.ErrMalformedOutput,
		},
		{
			name:    "unterminated json",
			raw:     `{"ResponseText": "Hi"`,
			wantErr: narration.ErrMalformedOutput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := narration.ParseReply(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseReply: %v", err)
			}
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.ResponseText != tt.wantText {
				t.Errorf("ResponseText = %q, want %q", got.ResponseText, tt.wantText)
			}
			if !slices.Equal(got.NewHistoricalKeyEvents, tt.wantEvents) || got.NewHistoricalKeyEvents == nil {
				t.Errorf("NewHistoricalKeyEvents = %#v, want %#v", got.NewHistoricalKeyEvents, tt.wantEvents)
			}
		})
	}
}

func TestParseReply_RoundTrip(t *testing.T) {
	t.Parallel()

	outputs := []narration.Output{
		{ResponseText: "A quiet night.", NewHistoricalKeyEvents: []string{"Night fell"}},
		{ResponseText: "Fire! <in the kitchen> & more", NewHistoricalKeyEvents: []string{"Kitchen fire", "Cook injured"}},
		{ResponseText: `She said "run"`, NewHistoricalKeyEvents: []string{}},
	}
	for _, o := range outputs {
		raw, err := json.Marshal(o)
		if err != nil {
			t.Fatal(err)
		}
		got, err := narration.ParseReply(string(raw))
		if err != nil {
			t.Fatalf("ParseReply(%s): %v", raw, err)
		}
		if got.ResponseText != o.ResponseText || !slices.Equal(got.NewHistoricalKeyEvents, o.NewHistoricalKeyEvents) {
			t.Errorf("round trip of %s = %+v", raw, got)
		}
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	kind, body, err := narration.Classify("noise {\"a\":1} trailing")
	if err != nil {
		t.Fatal(err)
	}
	if kind != narration.StructuredReply || body != `{"a":1}` {
		t.Errorf("Classify = %v %q", kind, body)
	}

	// A closing brace before the opening one is not a JSON body.
	kind, body, err = narration.Classify("} then {")
	if err != nil {
		t.Fatal(err)
	}
	if kind != narration.PlainTextReply || body != "} then {" {
		t.Errorf("Classify = %v %q", kind, body)
	}
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{`"quoted"`, "quoted"},
		{"'single'", "single"},
		{"line one\nline two", "line one line two"},
		{"  lots   of\t\tspace  ", "lots of space"},
		{`""`, ""},
		{`say "hi" now`, `say "hi" now`},
	}
	for _, tt := range tests {
		if got := narration.CleanText(tt.in); got != tt.want {
			t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReplyKind_String(t *testing.T) {
	t.Parallel()

	if narration.StructuredReply.String() == narration.PlainTextReply.String() {
		t.Error("reply kinds must have distinct names")
	}
}

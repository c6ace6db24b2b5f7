package narration

import (
	"encoding/json"
	"fmt"
	"strings"
)

// responseLabel is a label artifact some models prepend to the spoken text.
const responseLabel = "ResponseText:"

// Output is the wire shape of a structured model reply. Every field is
// optional and unknown keys are ignored.
type Output struct {
	ResponseText           string   `json:"ResponseText,omitempty"`
	NewHistoricalKeyEvents []string `json:"NewHistoricalKeyEvents,omitempty"`
}

// ReplyKind distinguishes JSON replies from plain-text fallbacks.
type ReplyKind int

const (
	// StructuredReply is a reply that decoded as an [Output] object.
	StructuredReply ReplyKind = iota + 1

	// PlainTextReply is a reply without a JSON object; the whole text is the
	// spoken line and there are no new history entries.
	PlainTextReply
)

// String returns a short name for k.
func (k ReplyKind) String() string {
	switch k {
	case StructuredReply:
		return "structured"
	case PlainTextReply:
		return "plain"
	default:
		return "unknown"
	}
}

// Reply is a parsed model reply.
type Reply struct {
	Kind                   ReplyKind
	ResponseText           string
	NewHistoricalKeyEvents []string
}

// Classify extracts the candidate reply body from raw model output and
// decides how it must be parsed. It trims whitespace, slices from the first
// '{' to the last '}' when both are present and strips the "ResponseText:"
// label. It returns [ErrEmptyResponse] when nothing is left.
func Classify(raw string) (ReplyKind, string, error) {
	body := strings.TrimSpace(raw)
	if first := strings.Index(body, "{"); first >= 0 {
		if last := strings.LastIndex(body, "}"); last > first {
			body = body[first : last+1]
		}
	}
	body = strings.TrimSpace(strings.ReplaceAll(body, responseLabel, ""))
	if body == "" {
		return 0, "", ErrEmptyResponse
	}
	if body[0] != '{' {
		return PlainTextReply, body, nil
	}
	return StructuredReply, body, nil
}

// ParseReply classifies and decodes raw model output. Non-JSON output becomes
// a [PlainTextReply]. A body that starts like JSON but does not decode yields
// [ErrMalformedOutput].
func ParseReply(raw string) (Reply, error) {
	kind, body, err := Classify(raw)
	if err != nil {
		return Reply{}, err
	}
	if kind == PlainTextReply {
		return Reply{Kind: PlainTextReply, ResponseText: body, NewHistoricalKeyEvents: []string{}}, nil
	}

	var out Output
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return Reply{}, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}
	if out.NewHistoricalKeyEvents == nil {
		out.NewHistoricalKeyEvents = []string{}
	}
	return Reply{
		Kind:                   StructuredReply,
		ResponseText:           out.ResponseText,
		NewHistoricalKeyEvents: out.NewHistoricalKeyEvents,
	}, nil
}

// CleanText normalises a spoken line: surrounding quotes are removed and all
// whitespace runs, including newlines, collapse to single spaces.
func CleanText(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return strings.Join(strings.Fields(s), " ")
}

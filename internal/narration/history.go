package narration

import (
	"slices"
	"strings"
)

// DefaultHistoryThreshold is the number of history entries above which the
// history is condensed before the next request.
const DefaultHistoryThreshold = 5

// History is the bounded rolling list of key events of one persona. It is
// not safe for concurrent use; the owning [Session] serialises access.
type History struct {
	threshold int
	entries   []string
}

// NewHistory creates a history that condenses when it holds more than
// threshold entries. A threshold below 1 selects [DefaultHistoryThreshold].
func NewHistory(threshold int, entries ...string) *History {
	if threshold < 1 {
		threshold = DefaultHistoryThreshold
	}
	h := &History{threshold: threshold}
	h.Replace(entries...)
	return h
}

// Entries returns a copy of the current entries, oldest first.
func (h *History) Entries() []string {
	return slices.Clone(h.entries)
}

// Len returns the number of entries.
func (h *History) Len() int { return len(h.entries) }

// Threshold returns the condensation threshold.
func (h *History) Threshold() int { return h.threshold }

// SetThreshold changes the condensation threshold. A threshold below 1
// selects [DefaultHistoryThreshold].
func (h *History) SetThreshold(threshold int) {
	if threshold < 1 {
		threshold = DefaultHistoryThreshold
	}
	h.threshold = threshold
}

// Replace discards the current entries and installs entries. Blank entries
// are dropped and the rest are trimmed.
func (h *History) Replace(entries ...string) {
	h.entries = make([]string, 0, len(entries))
	for _, e := range entries {
		if e = strings.TrimSpace(e); e != "" {
			h.entries = append(h.entries, e)
		}
	}
}

// Append adds one entry at the end.
func (h *History) Append(entry string) {
	if entry = strings.TrimSpace(entry); entry != "" {
		h.entries = append(h.entries, entry)
	}
}

// NeedsCondense reports whether the history exceeds its threshold.
func (h *History) NeedsCondense() bool {
	return len(h.entries) > h.threshold
}

// SplitCondensed turns a plain-text condensation reply into history entries.
// The reply is split on commas and every part is trimmed; empty parts are
// dropped.
func SplitCondensed(reply string) []string {
	var out []string
	for part := range strings.SplitSeq(reply, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package narration

import "github.com/antzucaro/matchr"

// Distance returns the Levenshtein edit distance between a and b, counted in
// runes.
func Distance(a, b string) int {
	return matchr.Levenshtein(a, b)
}

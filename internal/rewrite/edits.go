// Package rewrite implements the match-and-splice passes that turn a
// plain C translation unit into one that calls through compartment
// gates: replacing function-pointer types with opaque wrapper structs,
// address-of-function expressions with IA2_FN, indirect calls with
// IA2_CALL, and null/boolean function-pointer uses with their IA2_*
// equivalents. Each pass runs over an internal/cparse.File and returns
// an edit list; Apply splices the edits into the original source bytes
// without needing to re-parse between passes.
package rewrite

import (
	"fmt"
	"sort"
)

// Edit replaces src[Start:End] with Replacement.
type Edit struct {
	Start, End  int
	Replacement string
}

// Warning is a non-fatal, source-left-unchanged diagnostic: a rewrite
// target whose spelling location lies inside a function-like macro
// expansion.
type Warning struct {
	File          string
	ExpansionLine int
	SpellingLine  int
	Macro         string
	Message       string
}

func (w Warning) String() string {
	if w.Macro == "" {
		return fmt.Sprintf("%s:%d: %s; left unchanged", w.File, w.SpellingLine, w.Message)
	}
	return fmt.Sprintf("%s:%d: %s (expanded from %s at line %d); left unchanged",
		w.File, w.SpellingLine, w.Message, w.Macro, w.ExpansionLine)
}

// Apply sorts edits by Start, rejects overlapping edits, and splices
// them into src, returning the rewritten bytes.
func Apply(src []byte, edits []Edit) ([]byte, error) {
	sorted := make([]Edit, len(edits))
	copy(sorted, edits)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var out []byte
	cursor := 0
	for _, e := range sorted {
		if e.Start < cursor {
			return nil, fmt.Errorf("rewrite: overlapping edit at offset %d", e.Start)
		}
		out = append(out, src[cursor:e.Start]...)
		out = append(out, e.Replacement...)
		cursor = e.End
	}
	out = append(out, src[cursor:]...)
	return out, nil
}

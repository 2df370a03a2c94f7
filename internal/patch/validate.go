package patch

import "fmt"

// Validate checks a record against the current document's line count
// and returns human-readable reasons for anything out of range. It is
// advisory: callers decide whether to apply anyway, skip, or surface
// the reasons to the user. It never mutates anything.
func Validate(lineCount int, r Record) []string {
	var reasons []string

	if r.Line < 1 {
		reasons = append(reasons, fmt.Sprintf("line %d is before the start of the document", r.Line))
	}
	if r.Line > lineCount+1 {
		reasons = append(reasons, fmt.Sprintf("line %d is past the end of the document (%d lines)", r.Line, lineCount))
	}

	switch r.Op {
	case OpReplace, OpDelete:
		n := r.DeleteCount
		if n < 1 {
			n = 1
		}
		if last := r.Line + n - 1; last > lineCount {
			reasons = append(reasons, fmt.Sprintf("%s of %d line(s) at line %d runs past the end of the document (%d lines)", r.Op, n, r.Line, lineCount))
		}
	}

	return reasons
}

package patch

import "sort"

const contextLines = 2

// Apply takes the original document lines and a batch of records and
// returns the resulting lines. It is pure: the input slice is never
// modified and no state outside the return value is touched.
//
// Records are applied in descending Line order. Every record's
// coordinates were computed against the original document, and an edit
// only shifts the lines below it, so working from the bottom up keeps
// every remaining record's address valid. The sort is stable: records
// with equal Line keep input order, and since the later one splices at
// the same address its insertion lands above the earlier one's.
//
// Addresses are clamped to the current bounds so a stale record cannot
// splice outside the document; range problems are the validator's job
// to report. Streaming records are display-only and skipped.
func Apply(lines []string, recs []Record) []string {
	result := make([]string, len(lines))
	copy(result, lines)
	if len(recs) == 0 {
		return result
	}

	ordered := make([]Record, 0, len(recs))
	for _, r := range recs {
		if !r.Streaming {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		return ordered[a].Line > ordered[b].Line
	})

	for _, r := range ordered {
		start := r.Line - 1
		if start < 0 {
			start = 0
		}
		if start > len(result) {
			start = len(result)
		}

		removed := 0
		switch r.Op {
		case OpReplace, OpDelete:
			removed = r.DeleteCount
			if removed < 1 {
				removed = 1
			}
			if start+removed > len(result) {
				removed = len(result) - start
			}
		}

		spliced := make([]string, 0, len(result)-removed+len(r.Insert))
		spliced = append(spliced, result[:start]...)
		spliced = append(spliced, r.Insert...)
		spliced = append(spliced, result[start+removed:]...)
		result = spliced
	}

	return result
}

// Previews renders each record's effect against the document as it is
// before any record in the batch applies, in ascending Line order
// (natural reading order, independent of application order).
func Previews(lines []string, recs []Record) []Preview {
	ordered := make([]Record, len(recs))
	copy(ordered, recs)
	sort.SliceStable(ordered, func(a, b int) bool {
		return ordered[a].Line < ordered[b].Line
	})

	previews := make([]Preview, 0, len(ordered))
	for _, r := range ordered {
		start := r.Line - 1
		if start < 0 {
			start = 0
		}
		if start > len(lines) {
			start = len(lines)
		}

		removed := 0
		switch r.Op {
		case OpReplace, OpDelete:
			removed = r.DeleteCount
			if removed < 1 {
				removed = 1
			}
			if start+removed > len(lines) {
				removed = len(lines) - start
			}
		}

		ctxFrom := start - contextLines
		if ctxFrom < 0 {
			ctxFrom = 0
		}
		ctxTo := start + removed + contextLines
		if ctxTo > len(lines) {
			ctxTo = len(lines)
		}

		previews = append(previews, Preview{
			Record:        r,
			StartLine:     r.Line,
			Before:        append([]string(nil), lines[start:start+removed]...),
			After:         append([]string(nil), r.Insert...),
			ContextBefore: append([]string(nil), lines[ctxFrom:start]...),
			ContextAfter:  append([]string(nil), lines[start+removed:ctxTo]...),
		})
	}
	return previews
}

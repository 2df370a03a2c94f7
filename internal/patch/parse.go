package patch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"
)

// FenceTag is the info string that marks a fenced block as a patch.
const FenceTag = "latex-diff"

var (
	// fenceOpenRe matches an opening patch fence on its own line. With
	// (?m), $ also matches end-of-input so a fence that just streamed in
	// without its newline still counts.
	fenceOpenRe = regexp2.MustCompile("(?m)^```"+FenceTag+"[ \t]*$", 0)

	// metaRe matches the @@-bounded metadata line and captures the
	// token list between the markers.
	metaRe = regexp2.MustCompile(`^@@\s+(.+?)\s+@@\s*$`, 0)
)

// HasPatchMarker reports whether text contains any patch fence,
// complete or still forming. Callers use it while a response is
// streaming to decide whether to render a forming-patch preview
// instead of raw text.
func HasPatchMarker(text string) bool {
	ok, err := fenceOpenRe.MatchString(strings.ReplaceAll(text, "\r\n", "\n"))
	if err != nil {
		return false
	}
	return ok
}

// ParseBlocks extracts every complete patch block from text, in the
// order they appear. Blocks with missing or malformed metadata are
// skipped and reported as diagnostics; they do not abort parsing of
// later blocks. A trailing block that never closes is ignored: the
// author abandoned it.
func ParseBlocks(text string) ([]Record, []string) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var recs []Record
	var diags []string
	for i := 0; i < len(lines); i++ {
		if !isFenceOpen(lines[i]) {
			continue
		}
		end := findFenceClose(lines, i+1)
		if end < 0 {
			break
		}
		raw := strings.Join(lines[i:end+1], "\n")
		rec, diag := parseBlock(lines[i+1:end], raw)
		if diag != "" {
			diags = append(diags, diag)
		} else {
			recs = append(recs, rec)
		}
		i = end
	}
	return recs, diags
}

// StreamingPreviews produces best-effort records for patch blocks that
// have opened but not yet closed in a still-arriving text. The records
// carry Streaming=true, use whatever body has arrived so far as Insert,
// and must never be handed to Apply; they exist for display only.
func StreamingPreviews(text string) []Record {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var recs []Record
	for i := 0; i < len(lines); i++ {
		if !isFenceOpen(lines[i]) {
			continue
		}
		end := findFenceClose(lines, i+1)
		if end >= 0 {
			// Complete block; ParseBlocks owns those.
			i = end
			continue
		}
		rec, diag := parseBlock(lines[i+1:], strings.Join(lines[i:], "\n"))
		if diag == "" {
			rec.Streaming = true
			recs = append(recs, rec)
		}
		break
	}
	return recs
}

// ExtractFullDocument returns the body of the first complete fenced
// block tagged with the given language (the coarse "replace the whole
// document" authoring mode). The bool reports whether one was found.
func ExtractFullDocument(text, language string) (string, bool) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i := 0; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "```"+language {
			continue
		}
		end := findFenceClose(lines, i+1)
		if end < 0 {
			return "", false
		}
		return JoinLines(lines[i+1 : end]), true
	}
	return "", false
}

func isFenceOpen(line string) bool {
	ok, err := fenceOpenRe.MatchString(line)
	return err == nil && ok
}

func isFenceClose(line string) bool {
	return strings.TrimSpace(line) == "```"
}

func findFenceClose(lines []string, from int) int {
	for j := from; j < len(lines); j++ {
		if isFenceClose(lines[j]) {
			return j
		}
	}
	return -1
}

// parseBlock converts the interior of one fenced block (metadata line
// plus body) into a Record. Returns a non-empty diagnostic instead when
// the metadata is missing or malformed.
func parseBlock(inner []string, raw string) (Record, string) {
	if len(inner) == 0 {
		return Record{}, "patch block has no metadata line"
	}

	m, err := metaRe.FindStringMatch(inner[0])
	if err != nil || m == nil {
		return Record{}, fmt.Sprintf("patch block metadata not bounded by @@: %q", inner[0])
	}
	tokens := strings.Fields(m.GroupByNumber(1).String())

	var (
		opSeen, lineSeen bool
		op               Op
		lineNo           int
		deleteCount      = -1
		meta             map[string]any
	)
	for _, tok := range tokens {
		key, value, ok := strings.Cut(tok, ":")
		if !ok {
			continue
		}
		switch key {
		case "operation":
			switch Op(strings.ToLower(value)) {
			case OpAdd, OpReplace, OpDelete:
				op = Op(strings.ToLower(value))
				opSeen = true
			default:
				return Record{}, fmt.Sprintf("patch block has unknown operation %q", value)
			}
		case "line":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return Record{}, fmt.Sprintf("patch block has invalid line %q", value)
			}
			lineNo = n
			lineSeen = true
		case "delete":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return Record{}, fmt.Sprintf("patch block has invalid delete count %q", value)
			}
			deleteCount = n
		default:
			if meta == nil {
				meta = make(map[string]any)
			}
			if n, err := strconv.Atoi(value); err == nil {
				meta[key] = n
			} else {
				meta[key] = value
			}
		}
	}

	if !opSeen {
		return Record{}, "patch block missing operation"
	}
	if !lineSeen {
		return Record{}, "patch block missing line"
	}

	rec := Record{
		Op:   op,
		Line: lineNo,
		Raw:  raw,
		Meta: meta,
	}
	switch op {
	case OpAdd:
		rec.DeleteCount = 0
		rec.Insert = append([]string(nil), inner[1:]...)
	case OpReplace:
		rec.DeleteCount = deleteCount
		if rec.DeleteCount < 1 {
			rec.DeleteCount = 1
		}
		rec.Insert = append([]string(nil), inner[1:]...)
	case OpDelete:
		rec.DeleteCount = deleteCount
		if rec.DeleteCount < 1 {
			rec.DeleteCount = 1
		}
		// A delete consumes lines; any stray body is dropped.
	}
	return rec, ""
}

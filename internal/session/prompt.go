package session

import (
	"fmt"
	"strings"

	"github.com/youruser/texpilot/internal/patch"
)

// NumberLines renders the document with 1-based line numbers, the
// coordinate system every patch block addresses.
func NumberLines(text string) string {
	lines := patch.SplitLines(text)
	if len(lines) == 0 {
		return ""
	}
	width := len(fmt.Sprintf("%d", len(lines)))
	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "%*d| %s\n", width, i+1, line)
	}
	return b.String()
}

// BuildUserMessage assembles the single structured user message for a
// turn: the current line-numbered document followed by the user's
// request.
func BuildUserMessage(instruction, document string) string {
	var b strings.Builder

	b.WriteString("== CURRENT DOCUMENT (line-numbered) ==\n")
	numbered := NumberLines(document)
	if numbered == "" {
		b.WriteString("(the document is empty)\n")
	} else {
		b.WriteString(numbered)
	}
	b.WriteString("\n== USER REQUEST ==\n")
	b.WriteString(instruction)
	b.WriteString("\n")

	return b.String()
}

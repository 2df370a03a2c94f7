package patch

import "strings"

// SplitLines splits document content into lines. Handles both LF and CRLF.
// A trailing newline does not produce an extra empty line.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	// Normalize CRLF to LF
	content = strings.ReplaceAll(content, "\r\n", "\n")
	// Remove trailing newline to avoid ghost empty line
	content = strings.TrimSuffix(content, "\n")
	return strings.Split(content, "\n")
}

// JoinLines joins lines back into document content with a trailing newline.
func JoinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

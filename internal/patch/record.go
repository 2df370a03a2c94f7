// Package patch implements the latex-diff protocol: a compact,
// line-addressed patch format the LLM embeds in its replies. It covers
// parsing (complete and still-streaming blocks), validation against a
// document's line count, and pure application over a line sequence.
package patch

// Op is the kind of edit a patch block requests.
type Op string

const (
	OpAdd     Op = "add"
	OpReplace Op = "replace"
	OpDelete  Op = "delete"
)

// Record is one parsed patch block. Line numbers are 1-based and refer
// to the document as it was before any record in the batch is applied.
// Records are immutable once parsed; consumers never modify them.
type Record struct {
	Op          Op
	Line        int            // 1-based start line in the pre-patch document
	DeleteCount int            // lines consumed; 0 for add, defaults to 1 for replace/delete
	Insert      []string       // lines to insert; empty for delete
	Raw         string         // original matched text span, for diagnostics only
	Meta        map[string]any // unrecognized metadata tokens, preserved as-is
	Streaming   bool           // display-only preview of an unclosed block; never applied
}

// Preview is a rendering-oriented view of one record's effect against a
// concrete document: the lines it removes, the lines it adds, and up to
// two lines of unchanged context on each side.
type Preview struct {
	Record        Record
	StartLine     int      // 1-based, same coordinate system as Record.Line
	Before        []string // lines the record removes
	After         []string // lines the record inserts
	ContextBefore []string // up to 2 unchanged lines above
	ContextAfter  []string // up to 2 unchanged lines below
}

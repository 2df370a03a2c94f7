package doc

import (
	"sync"
	"time"

	"github.com/youruser/texpilot/internal/patch"
)

// Observer is called synchronously with the new text after every
// replacement. There is no event queue; the call happens inside
// Replace on the caller's goroutine, outside the store's lock.
type Observer func(text string)

// Store owns the current document text for one session. All mutation
// goes through Replace; callers hold only copies obtained from Read.
// Safe for concurrent use: a streaming turn replaces the text on its
// own goroutine while the protocol loop serves reads.
type Store struct {
	mu       sync.Mutex
	text     string
	log      *UndoLog
	observer Observer
}

// NewStore creates a store holding the initial text, recording undo
// history into the given log.
func NewStore(initial string, log *UndoLog) *Store {
	if log == nil {
		log = NewUndoLog()
	}
	return &Store{text: initial, log: log}
}

// Read returns the current document text.
func (s *Store) Read() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Lines returns the current document as a line sequence.
func (s *Store) Lines() []string {
	return patch.SplitLines(s.Read())
}

// LineCount returns the number of lines in the current document.
func (s *Store) LineCount() int {
	return len(s.Lines())
}

// Log exposes the undo log backing this store.
func (s *Store) Log() *UndoLog {
	return s.log
}

// SetObserver registers the change observer. Passing nil removes it.
func (s *Store) SetObserver(fn Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = fn
}

// Replace sets the document to newText. When recordHistory is true and
// the content actually differs, the prior text is pushed to the undo
// log under label first. The observer, if any, is then invoked with
// the new text. recordHistory=false is used only by undo itself, so
// restoring a snapshot does not push the undone state back and loop.
func (s *Store) Replace(newText, label string, recordHistory bool) {
	s.mu.Lock()
	if newText == s.text {
		s.mu.Unlock()
		return
	}
	if recordHistory {
		s.log.Push(Entry{
			Snapshot: s.text,
			Label:    label,
			Time:     time.Now().UTC(),
		})
	}
	s.text = newText
	observer := s.observer
	s.mu.Unlock()

	// Outside the lock so the observer may call back into the store.
	if observer != nil {
		observer(newText)
	}
}

// Undo restores the most recent snapshot. Returns false when there is
// nothing to undo.
func (s *Store) Undo() bool {
	e, ok := s.log.Pop()
	if !ok {
		return false
	}
	s.Replace(e.Snapshot, "", false)
	return true
}

// CanUndo reports whether an undo is available.
func (s *Store) CanUndo() bool {
	return s.log.CanUndo()
}

// Package doc holds the live document for one editing session: a store
// that owns the current text and notifies an observer on change, and a
// bounded undo log of pre-change snapshots.
package doc

import (
	"sync"
	"time"
)

// MaxEntries is the undo log capacity. Pushing beyond it evicts the
// oldest entry.
const MaxEntries = 20

// Entry is an immutable copy of the document before a change, plus a
// description of what was about to happen.
type Entry struct {
	Snapshot string
	Label    string
	Time     time.Time
}

// UndoLog is a bounded stack of pre-change snapshots. Push appends,
// Pop removes from the newest end, and eviction removes from the
// oldest. Safe for concurrent use: a streaming turn pushes while the
// protocol loop answers can_undo queries.
type UndoLog struct {
	mu      sync.Mutex
	entries []Entry
}

// NewUndoLog returns an empty log.
func NewUndoLog() *UndoLog {
	return &UndoLog{}
}

// Push appends an entry, evicting the oldest if the log is full.
func (l *UndoLog) Push(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	if len(l.entries) > MaxEntries {
		l.entries = l.entries[len(l.entries)-MaxEntries:]
	}
}

// Pop removes and returns the most recent entry. The bool is false
// when the log is empty.
func (l *UndoLog) Pop() (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	e := l.entries[len(l.entries)-1]
	l.entries = l.entries[:len(l.entries)-1]
	return e, true
}

// CanUndo reports whether the log holds at least one entry.
func (l *UndoLog) CanUndo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries) > 0
}

// Len returns the number of entries currently held.
func (l *UndoLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear empties the log.
func (l *UndoLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

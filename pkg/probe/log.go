// ABOUTME: Append-only diagnostic log of playback lifecycle events
// ABOUTME: Cleared only when a new playback attempt starts
package probe

import "sync"

// Log is an insertion-ordered sequence of human-readable event strings.
// Append never blocks and never drops; no maximum size is enforced.
// Entries may span multiple lines (engine error diagnostics).
type Log struct {
	mu      sync.RWMutex
	entries []string
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{}
}

// Append adds an entry at the end of the sequence.
func (l *Log) Append(entry string) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Clear empties the sequence.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// Entries returns a copy of the sequence in append order. Callers may
// retain the slice; it is detached from future writes.
func (l *Log) Entries() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

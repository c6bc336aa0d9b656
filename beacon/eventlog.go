package beacon

import "sync"

// EventLog is an append-only ordered list of human-readable entries. Entries
// are never mutated or removed; the presentation layer renders a tail.
type EventLog struct {
	mu      sync.RWMutex
	entries []string
}

// NewEventLog creates an empty log.
func NewEventLog() *EventLog {
	return &EventLog{}
}

// Append adds one entry in arrival order.
func (l *EventLog) Append(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Entries returns a snapshot copy of all entries.
func (l *EventLog) Entries() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

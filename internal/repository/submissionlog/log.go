// Package submissionlog is the in-process, insertion-ordered record of judged submissions.
package submissionlog

import (
	"fmt"
	"sync"

	"github.com/kailas-cloud/trackjudge/internal/domain"
)

// Entry is one logged submission keyed by its logging timestamp (Unix milliseconds).
type Entry struct {
	Timestamp int64
	Payload   string
}

// Observer receives the number of distinct keys after each write.
type Observer func(entries int)

// Log maps timestamps to serialized submissions in insertion order.
// Writing an existing timestamp overwrites its payload in place (last write wins).
// No eviction, no capacity bound, no persistence.
type Log struct {
	mu      sync.RWMutex
	order   []int64
	entries map[int64]string
	observe Observer
}

// New creates an empty Log.
func New() *Log {
	return &Log{entries: make(map[int64]string)}
}

// WithObserver attaches a size observer (used for the entries gauge).
func (l *Log) WithObserver(o Observer) *Log {
	l.observe = o
	return l
}

// Record inserts or overwrites the entry at timestamp.
func (l *Log) Record(timestamp int64, payload string) {
	l.mu.Lock()
	if _, exists := l.entries[timestamp]; !exists {
		l.order = append(l.order, timestamp)
	}
	l.entries[timestamp] = payload
	n := len(l.order)
	l.mu.Unlock()

	if l.observe != nil {
		l.observe(n)
	}
}

// Snapshot returns a copy of all entries in insertion order as of the call.
func (l *Log) Snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.order))
	for i, ts := range l.order {
		out[i] = Entry{Timestamp: ts, Payload: l.entries[ts]}
	}
	return out
}

// Get returns the entry at timestamp.
func (l *Log) Get(timestamp int64) (Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	payload, ok := l.entries[timestamp]
	if !ok {
		return Entry{}, fmt.Errorf("timestamp %d: %w", timestamp, domain.ErrEntryNotFound)
	}
	return Entry{Timestamp: timestamp, Payload: payload}, nil
}

// Len returns the number of distinct timestamps.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

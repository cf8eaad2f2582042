// Package store persists the session event log. The log is append-only and
// ordered by arrival; it backs the transcript dump and survives restarts
// when the bolt-backed implementation is used.
package store

import (
	"sync"

	"github.com/forgeworks/forge/core"
)

// EventLog records every event published in a session.
type EventLog interface {
	// Append adds one event at the tail of the log.
	Append(evt core.Event) error
	// Events returns the full log in append order.
	Events() ([]core.Event, error)
	// Close releases any underlying resources.
	Close() error
}

// MemoryLog keeps the event log in process memory.
type MemoryLog struct {
	mu     sync.RWMutex
	events []core.Event
}

// NewMemoryLog returns an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(evt core.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
	return nil
}

func (l *MemoryLog) Events() ([]core.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]core.Event(nil), l.events...), nil
}

func (l *MemoryLog) Close() error { return nil }

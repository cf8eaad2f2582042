package bus

import (
	"context"
	"sync"

	"github.com/forgeworks/forge/core"
)

// Mailbox is an unbounded FIFO event queue for one agent instance. Put never
// blocks; Next blocks until an event arrives, the context is done, or the
// mailbox is closed.
type Mailbox struct {
	mu     sync.Mutex
	queue  []core.Event
	signal chan struct{}
	closed bool
}

// NewMailbox returns an empty open mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{signal: make(chan struct{}, 1)}
}

// Put enqueues an event. It reports whether the event was accepted; a
// closed mailbox rejects so the caller can route the event elsewhere.
func (m *Mailbox) Put(evt core.Event) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, evt)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// Next dequeues the oldest event. It returns false when the context ends or
// the mailbox is closed and drained.
func (m *Mailbox) Next(ctx context.Context) (core.Event, bool) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			evt := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return evt, true
		}
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return core.Event{}, false
		}

		select {
		case <-ctx.Done():
			return core.Event{}, false
		case <-m.signal:
		}
	}
}

// Len reports the number of queued events.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Drain closes the mailbox and hands back the events still queued, in FIFO
// order, so the caller can route them elsewhere instead of losing them.
func (m *Mailbox) Drain() []core.Event {
	m.mu.Lock()
	pending := m.queue
	m.queue = nil
	m.closed = true
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return pending
}

// Close stops the mailbox, discarding anything still queued.
func (m *Mailbox) Close() {
	m.Drain()
}

// Closed reports whether the mailbox no longer accepts events.
func (m *Mailbox) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

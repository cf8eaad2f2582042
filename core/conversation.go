package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conversation is the append-only message history of one agent instance.
// It is mutated only by the instance's own execution task; the lock exists
// so read-side consumers (info display, dumps) can take consistent snapshots
// while a turn is running.
type Conversation struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`

	mu       sync.RWMutex
	messages []Message
}

// NewConversation allocates an empty conversation with a fresh id.
func NewConversation() *Conversation {
	now := time.Now().UTC()
	return &Conversation{ID: uuid.NewString(), Created: now, Updated: now}
}

// Append adds messages to the history. Messages are never removed or
// reordered; resets swap in a whole new Conversation instead.
func (c *Conversation) Append(msgs ...Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msgs...)
	c.Updated = time.Now().UTC()
}

// Messages returns a defensive copy of the history.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages appended so far.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

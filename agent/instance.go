package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/forgeworks/forge/core"
	"github.com/forgeworks/forge/workflow"
)

// Status is the lifecycle state of an agent instance.
type Status string

const (
	// StatusIdle means the instance exists and waits for an event.
	StatusIdle Status = "idle"
	// StatusRunning means the instance is inside a turn.
	StatusRunning Status = "running"
	// StatusAwaitingTool means a tool call is executing on the instance's
	// behalf.
	StatusAwaitingTool Status = "awaiting_tool"
	// StatusCompleted means an ephemeral instance finished its turn and will
	// be destroyed.
	StatusCompleted Status = "completed"
	// StatusFailed means the instance was abandoned after unrecoverable
	// provider failure. Other instances are unaffected.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status ends the instance's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Instance is one live incarnation of an agent definition: the definition,
// a conversation accumulating its history, and a lifecycle status. Persistent
// agents keep a single instance per session; ephemeral agents get a fresh
// instance (and a fresh generation number) for every event.
type Instance struct {
	Def          workflow.AgentDefinition
	Generation   int
	Conversation *core.Conversation
	CreatedAt    time.Time

	mu     sync.RWMutex
	status Status
}

// NewInstance creates an idle instance with an empty conversation.
func NewInstance(def workflow.AgentDefinition, generation int) *Instance {
	return &Instance{
		Def:          def,
		Generation:   generation,
		Conversation: core.NewConversation(),
		CreatedAt:    time.Now().UTC(),
		status:       StatusIdle,
	}
}

// Key identifies the instance within a session.
func (i *Instance) Key() string {
	return fmt.Sprintf("%s#%d", i.Def.ID, i.Generation)
}

// Status returns the current lifecycle state.
func (i *Instance) Status() Status {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.status
}

func (i *Instance) setStatus(s Status) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.status = s
}

// Package mode gates tool execution behind the session's interaction mode.
// In plan mode agents may only observe: tools that mutate the filesystem or
// run processes are refused and the refusal is fed back to the model.
package mode

import (
	"fmt"
	"sync"

	"github.com/forgeworks/forge/core"
)

// Mode is the session interaction mode.
type Mode string

const (
	// Act permits every tool the agent's allow-list grants.
	Act Mode = "act"
	// Plan restricts agents to read-only tools.
	Plan Mode = "plan"
)

// Controller holds the current mode for a session. It is shared by every
// agent instance and safe for concurrent use. Sessions start in act mode.
type Controller struct {
	mu   sync.RWMutex
	mode Mode
}

// NewController returns a Controller in act mode.
func NewController() *Controller {
	return &Controller{mode: Act}
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// Set switches the session mode. The change applies from the next tool
// check onward; in-flight tool executions finish under the old mode.
func (c *Controller) Set(m Mode) error {
	if m != Act && m != Plan {
		return fmt.Errorf("unknown mode %q", m)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
	return nil
}

// Check reports whether the named tool may run under the current mode. The
// returned error is a *core.ToolNotAvailableError suitable for feeding back
// to the model.
func (c *Controller) Check(name core.ToolName) error {
	if c.Mode() == Act {
		return nil
	}
	if name.ReadOnly() {
		return nil
	}
	return &core.ToolNotAvailableError{
		Tool:   name,
		Reason: "tool is not available in plan mode; switch to act mode or use a read-only tool",
	}
}

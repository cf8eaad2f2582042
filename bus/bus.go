// Package bus routes events between agents. Publishing never blocks: the
// bus resolves the subscribers of an event in workflow declaration order and
// hands the event to each target's mailbox, an unbounded per-instance FIFO
// queue drained by the instance's own loop. Delivery is at-least-once within
// the process; there is no persistence across restarts.
package bus

import (
	"sync"

	"github.com/forgeworks/forge/core"
	"github.com/forgeworks/forge/logging"
	"github.com/forgeworks/forge/workflow"
)

// RouteFunc delivers one event to one subscribed agent. The orchestrator
// registers a route that resolves the agent id to a live instance mailbox,
// creating the instance if needed.
type RouteFunc func(agentID string, evt core.Event)

// Bus fans events out to subscribed agents.
type Bus struct {
	logger logging.Logger

	// agents keeps workflow declaration order, which fixes delivery order
	// when several agents subscribe to the same event.
	agents []workflow.AgentDefinition

	mu    sync.RWMutex
	route RouteFunc
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the bus logger.
func WithLogger(l logging.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// New builds a Bus over the resolved workflow's agent topology.
func New(wf *workflow.Workflow, opts ...Option) *Bus {
	b := &Bus{
		logger: logging.NoOpLogger{},
		agents: append([]workflow.AgentDefinition(nil), wf.Agents...),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Route registers the delivery function. Publish drops events until a route
// is registered.
func (b *Bus) Route(fn RouteFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.route = fn
}

// SubscribersOf returns the ids of the agents subscribed to the named event,
// in declaration order.
func (b *Bus) SubscribersOf(event string) []string {
	var out []string
	for _, a := range b.agents {
		if a.SubscribesTo(event) {
			out = append(out, a.ID)
		}
	}
	return out
}

// Publish delivers evt to every subscriber and returns how many targets it
// reached. An event nobody subscribes to is dropped with a warning.
func (b *Bus) Publish(evt core.Event) int {
	b.mu.RLock()
	route := b.route
	b.mu.RUnlock()
	if route == nil {
		b.logger.Warn("bus.publish.unrouted", "event", evt.Name)
		return 0
	}

	delivered := 0
	for _, a := range b.agents {
		if !a.SubscribesTo(evt.Name) {
			continue
		}
		route(a.ID, evt)
		delivered++
	}
	if delivered == 0 {
		b.logger.Warn("bus.publish.no_subscribers", "event", evt.Name)
	} else {
		b.logger.Debug("bus.publish.delivered",
			"event", evt.Name, "subscribers", delivered, "depth", evt.Depth)
	}
	return delivered
}

package core

import "time"

// Built-in event names. Custom names are declared implicitly by appearing in
// an agent's subscribe list or by being dispatched at runtime.
const (
	EventUserTaskInit   = "user_task_init"
	EventUserTaskUpdate = "user_task_update"
)

// Event is the unit of communication routed by the bus. Once published it is
// treated as immutable; consumers receive copies by value.
//
// Depth tracks how many agent-triggered dispatches separate the event from
// the originating user action. User-originated events carry depth zero; an
// event dispatched by a tool call inherits the triggering event's depth plus
// one. The runtime uses it to cut off runaway dispatch recursion.
type Event struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	EmittedAt time.Time `json:"emitted_at"`
	Depth     int       `json:"depth,omitempty"`
}

// NewEvent creates a user-originated event (depth zero) stamped with the
// current UTC time.
func NewEvent(name, value string) Event {
	return Event{Name: name, Value: value, EmittedAt: time.Now().UTC()}
}

// Child derives an event dispatched as a side effect of handling e. The new
// event carries its own name/value but inherits e's depth incremented by one.
func (e Event) Child(name, value string) Event {
	ev := NewEvent(name, value)
	ev.Depth = e.Depth + 1
	return ev
}

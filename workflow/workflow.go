// Package workflow loads and merges the session configuration into one
// immutable Workflow value: the agent topology, prompt templates, and
// variables that govern a session. Resolution happens once at startup;
// changing the workflow requires a fresh session.
package workflow

import (
	"fmt"
	"sort"

	"github.com/forgeworks/forge/core"
)

// AgentDefinition is one configured agent identity: the model it talks to,
// the tools it may call, and the events it reacts to. Definitions are
// immutable once the Workflow is resolved.
type AgentDefinition struct {
	ID            string   `yaml:"id"`
	Model         string   `yaml:"model"`
	Tools         []string `yaml:"tools"`
	Subscribe     []string `yaml:"subscribe"`
	Ephemeral     bool     `yaml:"ephemeral"`
	ToolSupported bool     `yaml:"tool_supported"`
	SystemPrompt  string   `yaml:"system_prompt"`
	UserPrompt    string   `yaml:"user_prompt"`
	ProjectRules  string   `yaml:"project_rules"`
}

// AllowsTool reports whether name is in the agent's tool allow-list.
func (d AgentDefinition) AllowsTool(name core.ToolName) bool {
	for _, t := range d.Tools {
		if t == string(name) {
			return true
		}
	}
	return false
}

// SubscribesTo reports whether the agent reacts to the named event.
func (d AgentDefinition) SubscribesTo(event string) bool {
	for _, s := range d.Subscribe {
		if s == event {
			return true
		}
	}
	return false
}

// ToolNames returns the allow-list as typed names. Resolution has already
// validated every entry, so unknown strings are skipped silently here.
func (d AgentDefinition) ToolNames() []core.ToolName {
	out := make([]core.ToolName, 0, len(d.Tools))
	for _, t := range d.Tools {
		if n, ok := core.ParseToolName(t); ok {
			out = append(out, n)
		}
	}
	return out
}

// Workflow is the resolved, immutable session topology. Agents keeps
// declaration order, which is the tie-break when several agents subscribe to
// the same event.
type Workflow struct {
	Variables map[string]string `yaml:"variables"`
	Agents    []AgentDefinition `yaml:"agents"`
	Templates map[string]string `yaml:"templates"`
}

// FindAgent returns the definition with the given id.
func (w *Workflow) FindAgent(id string) (AgentDefinition, error) {
	for _, a := range w.Agents {
		if a.ID == id {
			return a, nil
		}
	}
	return AgentDefinition{}, fmt.Errorf("agent %q not defined in workflow", id)
}

// SubscribersOf returns, in declaration order, every agent subscribed to the
// named event.
func (w *Workflow) SubscribersOf(event string) []AgentDefinition {
	var out []AgentDefinition
	for _, a := range w.Agents {
		if a.SubscribesTo(event) {
			out = append(out, a)
		}
	}
	return out
}

// VariableKeys returns the variable names in a deterministic (sorted) order.
func (w *Workflow) VariableKeys() []string {
	keys := make([]string, 0, len(w.Variables))
	for k := range w.Variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

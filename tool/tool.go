// Package tool carries the built-in tool catalog: the schema every agent
// sees, the executor that performs the side effects, and the approval hook
// that gates destructive operations.
//
// The catalog is closed. Workflows select subsets of it per agent but cannot
// register new tools at runtime.
package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/forgeworks/forge/core"
	"github.com/forgeworks/forge/model"
)

// Param describes one named tool parameter.
type Param struct {
	Name        string
	Description string
	Required    bool
}

// Definition is the catalog entry for one tool: what the model is told about
// it and which parameters a call must carry.
type Definition struct {
	Name        core.ToolName
	Description string
	Params      []Param
}

// RequiredParams returns the names of the parameters a call must include.
func (d Definition) RequiredParams() []string {
	var out []string
	for _, p := range d.Params {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

// Schema returns the JSON-schema object providers expect. All parameters are
// strings.
func (d Definition) Schema() map[string]any {
	props := map[string]any{}
	for _, p := range d.Params {
		props[p.Name] = map[string]any{
			"type":        "string",
			"description": p.Description,
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   d.RequiredParams(),
	}
}

var catalog = map[core.ToolName]Definition{
	core.ToolFSRead: {
		Name:        core.ToolFSRead,
		Description: "Read the contents of a file.",
		Params: []Param{
			{Name: "path", Description: "Path of the file to read.", Required: true},
		},
	},
	core.ToolFSCreate: {
		Name:        core.ToolFSCreate,
		Description: "Create or overwrite a file with the given content.",
		Params: []Param{
			{Name: "path", Description: "Path of the file to write.", Required: true},
			{Name: "content", Description: "Full content of the file.", Required: true},
		},
	},
	core.ToolFSRemove: {
		Name:        core.ToolFSRemove,
		Description: "Remove a file.",
		Params: []Param{
			{Name: "path", Description: "Path of the file to remove.", Required: true},
		},
	},
	core.ToolFSSearch: {
		Name:        core.ToolFSSearch,
		Description: "Search file contents under a directory with a regular expression.",
		Params: []Param{
			{Name: "path", Description: "Directory to search in.", Required: true},
			{Name: "regex", Description: "Pattern to search for.", Required: true},
			{Name: "file_pattern", Description: "Glob limiting which files are searched.", Required: false},
		},
	},
	core.ToolFSList: {
		Name:        core.ToolFSList,
		Description: "List the entries of a directory.",
		Params: []Param{
			{Name: "path", Description: "Directory to list.", Required: true},
		},
	},
	core.ToolFSInfo: {
		Name:        core.ToolFSInfo,
		Description: "Show size, type and modification time of a path.",
		Params: []Param{
			{Name: "path", Description: "Path to inspect.", Required: true},
		},
	},
	core.ToolApplyPatch: {
		Name:        core.ToolApplyPatch,
		Description: "Replace an exact text fragment in a file.",
		Params: []Param{
			{Name: "path", Description: "Path of the file to patch.", Required: true},
			{Name: "search", Description: "Exact text to find.", Required: true},
			{Name: "replace", Description: "Replacement text.", Required: true},
		},
	},
	core.ToolProcessShell: {
		Name:        core.ToolProcessShell,
		Description: "Execute a shell command and return its combined output.",
		Params: []Param{
			{Name: "command", Description: "Command line to run.", Required: true},
		},
	},
	core.ToolNetFetch: {
		Name:        core.ToolNetFetch,
		Description: "Fetch the body of an HTTP(S) URL.",
		Params: []Param{
			{Name: "url", Description: "URL to fetch.", Required: true},
		},
	},
	core.ToolEventDispatch: {
		Name:        core.ToolEventDispatch,
		Description: "Publish an event to the other agents in the session.",
		Params: []Param{
			{Name: "name", Description: "Event name to publish.", Required: true},
			{Name: "value", Description: "Event payload.", Required: true},
		},
	},
	core.ToolThink: {
		Name:        core.ToolThink,
		Description: "Record a private reasoning step without side effects.",
		Params: []Param{
			{Name: "thought", Description: "The thought to record.", Required: true},
		},
	},
}

// Lookup returns the catalog entry for a tool name.
func Lookup(name core.ToolName) (Definition, bool) {
	d, ok := catalog[name]
	return d, ok
}

// Definitions returns catalog entries for the given names, skipping unknown
// ones, in catalog order.
func Definitions(names []core.ToolName) []Definition {
	want := map[core.ToolName]bool{}
	for _, n := range names {
		want[n] = true
	}
	var out []Definition
	for _, n := range core.ToolNames() {
		if want[n] {
			if d, ok := catalog[n]; ok {
				out = append(out, d)
			}
		}
	}
	return out
}

// ModelDefinitions converts catalog entries into the provider wire shape.
func ModelDefinitions(names []core.ToolName) []model.ToolDefinition {
	defs := Definitions(names)
	out := make([]model.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = model.ToolDefinition{
			Name:        string(d.Name),
			Description: d.Description,
			Parameters:  d.Schema(),
		}
	}
	return out
}

// Information renders a plain-text description of the given tools for
// inclusion in a system prompt.
func Information(names []core.ToolName) string {
	var b strings.Builder
	for _, d := range Definitions(names) {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
		params := append([]Param(nil), d.Params...)
		sort.SliceStable(params, func(i, j int) bool {
			return params[i].Required && !params[j].Required
		})
		for _, p := range params {
			req := "optional"
			if p.Required {
				req = "required"
			}
			fmt.Fprintf(&b, "    %s (%s): %s\n", p.Name, req, p.Description)
		}
	}
	return b.String()
}

// Executor performs a tool call and reports the outcome as a result. Failures
// surface as error results, never as Go errors; the caller feeds them back to
// the model unchanged.
type Executor interface {
	Execute(ctx context.Context, call core.ToolCall) core.ToolResult
}

// ApprovalFunc decides whether a call may run. A nil ApprovalFunc approves
// everything.
type ApprovalFunc func(call core.ToolCall) bool

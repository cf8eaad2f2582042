package workflow

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/forgeworks/forge/core"
	"github.com/forgeworks/forge/logging"
)

//go:embed default.yaml
var defaultWorkflowYAML []byte

// ProjectFileName is the per-project workflow overlay looked up in the
// working directory when no explicit path is given.
const ProjectFileName = "forge.yaml"

// Resolver turns configuration files into a validated Workflow.
type Resolver struct {
	logger logging.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the logger used for resolution warnings.
func WithLogger(l logging.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver returns a Resolver with the given options applied.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{logger: logging.NoOpLogger{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve produces the session Workflow.
//
// When explicitPath is non-empty that file is loaded standalone: no merging
// with the embedded default happens, and the file must be complete on its
// own. Otherwise the embedded default workflow is the base; if cwd contains
// a forge.yaml it is merged on top, project fields winning.
//
// The result is validated before being returned, so a non-nil Workflow is
// always internally consistent.
func (r *Resolver) Resolve(explicitPath, cwd string) (*Workflow, error) {
	var wf *Workflow
	switch {
	case explicitPath != "":
		data, err := os.ReadFile(explicitPath)
		if err != nil {
			return nil, &core.ConfigError{Source: explicitPath, Reason: err.Error()}
		}
		wf, err = decodeWorkflow(explicitPath, data)
		if err != nil {
			return nil, err
		}
		r.logger.Debug("workflow.resolve.explicit", "path", explicitPath)
	default:
		base, err := decodeWorkflow("default.yaml", defaultWorkflowYAML)
		if err != nil {
			return nil, err
		}
		wf = base
		projectPath := filepath.Join(cwd, ProjectFileName)
		data, err := os.ReadFile(projectPath)
		switch {
		case err == nil:
			overlay, derr := decodeOverlay(projectPath, data)
			if derr != nil {
				return nil, derr
			}
			wf = merge(base, overlay)
			r.logger.Debug("workflow.resolve.merged", "path", projectPath)
		case os.IsNotExist(err):
			r.logger.Debug("workflow.resolve.default")
		default:
			return nil, &core.ConfigError{Source: projectPath, Reason: err.Error()}
		}
	}

	if err := r.validate(wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// decodeWorkflow parses a complete workflow file. Agents are decoded through
// the patch form so that an absent tool_supported defaults to true.
func decodeWorkflow(source string, data []byte) (*Workflow, error) {
	ov, err := decodeOverlay(source, data)
	if err != nil {
		return nil, err
	}
	wf := &Workflow{
		Variables: ov.Variables,
		Templates: ov.Templates,
	}
	if wf.Variables == nil {
		wf.Variables = map[string]string{}
	}
	if wf.Templates == nil {
		wf.Templates = map[string]string{}
	}
	for _, p := range ov.Agents {
		wf.Agents = append(wf.Agents, p.materialize())
	}
	return wf, nil
}

// overlay is the on-disk form of a workflow document. Agent entries keep
// field presence so a project file can override a single field of a default
// agent without clobbering the rest.
type overlay struct {
	Variables map[string]string `yaml:"variables"`
	Agents    []agentPatch      `yaml:"agents"`
	Templates map[string]string `yaml:"templates"`
}

type agentPatch struct {
	ID            string    `yaml:"id"`
	Model         *string   `yaml:"model"`
	Tools         *[]string `yaml:"tools"`
	Subscribe     *[]string `yaml:"subscribe"`
	Ephemeral     *bool     `yaml:"ephemeral"`
	ToolSupported *bool     `yaml:"tool_supported"`
	SystemPrompt  *string   `yaml:"system_prompt"`
	UserPrompt    *string   `yaml:"user_prompt"`
	ProjectRules  *string   `yaml:"project_rules"`
}

// materialize applies defaults to an absent field. Tool support defaults to
// on; everything else defaults to its zero value.
func (p agentPatch) materialize() AgentDefinition {
	d := AgentDefinition{ID: p.ID, ToolSupported: true}
	p.applyTo(&d)
	return d
}

func (p agentPatch) applyTo(d *AgentDefinition) {
	if p.Model != nil {
		d.Model = *p.Model
	}
	if p.Tools != nil {
		d.Tools = append([]string(nil), (*p.Tools)...)
	}
	if p.Subscribe != nil {
		d.Subscribe = append([]string(nil), (*p.Subscribe)...)
	}
	if p.Ephemeral != nil {
		d.Ephemeral = *p.Ephemeral
	}
	if p.ToolSupported != nil {
		d.ToolSupported = *p.ToolSupported
	}
	if p.SystemPrompt != nil {
		d.SystemPrompt = *p.SystemPrompt
	}
	if p.UserPrompt != nil {
		d.UserPrompt = *p.UserPrompt
	}
	if p.ProjectRules != nil {
		d.ProjectRules = *p.ProjectRules
	}
}

func decodeOverlay(source string, data []byte) (*overlay, error) {
	var ov overlay
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return nil, &core.ConfigError{Source: source, Reason: err.Error()}
	}
	return &ov, nil
}

// merge layers a project overlay on top of the resolved base workflow.
// Variables and templates merge key by key with the overlay winning. Agents
// merge by id: matching ids are patched field-wise, new ids are appended
// after the base agents in their own declaration order.
func merge(base *Workflow, ov *overlay) *Workflow {
	out := &Workflow{
		Variables: map[string]string{},
		Templates: map[string]string{},
	}
	for k, v := range base.Variables {
		out.Variables[k] = v
	}
	for k, v := range ov.Variables {
		out.Variables[k] = v
	}
	for k, v := range base.Templates {
		out.Templates[k] = v
	}
	for k, v := range ov.Templates {
		out.Templates[k] = v
	}

	patched := map[string]bool{}
	for _, a := range base.Agents {
		for _, p := range ov.Agents {
			if p.ID == a.ID {
				p.applyTo(&a)
				patched[p.ID] = true
			}
		}
		out.Agents = append(out.Agents, a)
	}
	for _, p := range ov.Agents {
		if !patched[p.ID] {
			out.Agents = append(out.Agents, p.materialize())
		}
	}
	return out
}

// validate enforces the structural rules a Workflow must satisfy: unique
// agent ids, tools that exist in the catalog, and prompt references that
// resolve to a template. An agent with no subscriptions is unreachable but
// legal, so it only warns.
func (r *Resolver) validate(wf *Workflow) error {
	seen := map[string]bool{}
	for _, a := range wf.Agents {
		if a.ID == "" {
			return &core.ConfigError{Source: "workflow", Field: "agents.id", Reason: "agent id must not be empty"}
		}
		if seen[a.ID] {
			return &core.ConfigError{Source: "workflow", Field: "agents.id", Reason: fmt.Sprintf("duplicate agent id %q", a.ID)}
		}
		seen[a.ID] = true

		if a.Model == "" {
			return &core.ConfigError{Source: "workflow", Field: a.ID + ".model", Reason: "model must not be empty"}
		}
		for _, t := range a.Tools {
			if _, ok := core.ParseToolName(t); !ok {
				return &core.ConfigError{Source: "workflow", Field: a.ID + ".tools", Reason: fmt.Sprintf("unknown tool %q", t)}
			}
		}
		for _, ref := range []struct{ field, name string }{
			{"system_prompt", a.SystemPrompt},
			{"user_prompt", a.UserPrompt},
		} {
			if ref.name == "" {
				continue
			}
			if _, ok := wf.Templates[ref.name]; !ok {
				return &core.ConfigError{Source: "workflow", Field: a.ID + "." + ref.field, Reason: fmt.Sprintf("template %q not defined", ref.name)}
			}
		}
		if len(a.Subscribe) == 0 {
			r.logger.Warn("workflow.agent.unreachable", "agent", a.ID)
		}
	}
	return nil
}

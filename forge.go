// Package forge is a terminal-resident runtime for multi-agent coding
// sessions. A resolved workflow defines a set of agents; user input becomes
// events on a session bus; each subscribed agent runs its own model loop and
// mediated tool calls, and agents hand work to each other by dispatching
// further events.
//
// This file is the embedding facade: it wires workflow resolution, provider
// discovery, the tool executor and the orchestrator into one session object
// the CLI (and library users) drive.
package forge

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/forgeworks/forge/agent"
	"github.com/forgeworks/forge/core"
	"github.com/forgeworks/forge/logging"
	"github.com/forgeworks/forge/mode"
	"github.com/forgeworks/forge/model"
	"github.com/forgeworks/forge/model/anthropic"
	"github.com/forgeworks/forge/model/openai"
	"github.com/forgeworks/forge/orchestrator"
	"github.com/forgeworks/forge/store"
	"github.com/forgeworks/forge/template"
	"github.com/forgeworks/forge/tool"
	"github.com/forgeworks/forge/workflow"
)

// Options configure a session.
type Options struct {
	// WorkflowPath loads an explicit workflow file instead of merging the
	// default with the project's forge.yaml.
	WorkflowPath string
	// Dir is the project directory the session operates on.
	Dir string
	// Restricted runs shell tools under a restricted shell.
	Restricted bool
	// EventLogPath persists the event log to a bolt file when set.
	EventLogPath string

	Provider model.Provider
	Approval tool.ApprovalFunc
	Logger   logging.Logger
}

// Forge is one interactive session over a resolved workflow.
type Forge struct {
	opts  Options
	wf    *workflow.Workflow
	prov  model.Provider
	modes *mode.Controller

	mu      sync.Mutex
	orch    *orchestrator.Orchestrator
	started bool
}

// New resolves the workflow, discovers a provider from the environment
// unless one is injected, and assembles a ready session.
func New(optFns ...func(o *Options)) (*Forge, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine working directory: %w", err)
		}
		opts.Dir = cwd
	}

	wf, err := workflow.NewResolver(workflow.WithLogger(opts.Logger)).
		Resolve(opts.WorkflowPath, opts.Dir)
	if err != nil {
		return nil, err
	}

	prov := opts.Provider
	if prov == nil {
		creds, err := model.Discover()
		if err != nil {
			return nil, err
		}
		prov = buildProvider(creds)
		opts.Logger.Info("forge.provider.selected", "provider", string(creds.Kind))
	}

	f := &Forge{
		opts:  opts,
		wf:    wf,
		prov:  prov,
		modes: mode.NewController(),
	}
	if err := f.startSession(); err != nil {
		return nil, err
	}
	return f, nil
}

func buildProvider(creds model.Credentials) model.Provider {
	if creds.Kind == model.KindAnthropic {
		return anthropic.New(func(o *anthropic.Options) {
			o.APIKey = creds.APIKey
		})
	}
	return openai.New(func(o *openai.Options) {
		o.APIKey = creds.APIKey
		o.BaseURL = creds.BaseURL
		o.ProviderName = string(creds.Kind)
	})
}

func (f *Forge) startSession() error {
	var log store.EventLog = store.NewMemoryLog()
	if f.opts.EventLogPath != "" {
		bl, err := store.OpenBolt(f.opts.EventLogPath)
		if err != nil {
			return err
		}
		log = bl
	}

	orch := orchestrator.New(f.wf, func(o *orchestrator.Options) {
		o.Logger = f.opts.Logger
		o.EventLog = log
	})
	rt := agent.NewRuntime(
		f.prov,
		tool.NewLocal(func(o *tool.LocalOptions) {
			o.Dir = f.opts.Dir
			o.Restricted = f.opts.Restricted
			o.Logger = f.opts.Logger
		}),
		f.modes,
		template.NewMapRenderer(f.wf.Templates),
		orch,
		func(o *agent.Options) {
			o.WorkingDir = f.opts.Dir
			o.Variables = f.wf.Variables
			o.Approval = f.opts.Approval
			o.Logger = f.opts.Logger
		},
	)
	orch.Attach(rt)

	f.mu.Lock()
	f.orch = orch
	f.started = false
	f.mu.Unlock()
	return nil
}

// SendTask feeds user input into the session. The first input of a session
// publishes a task-init event; every later one publishes a task update. It
// returns the number of agent instances the event reached.
func (f *Forge) SendTask(text string) int {
	f.mu.Lock()
	name := core.EventUserTaskUpdate
	if !f.started {
		name = core.EventUserTaskInit
		f.started = true
	}
	orch := f.orch
	f.mu.Unlock()
	return orch.Publish(core.NewEvent(name, text))
}

// Dispatch publishes an arbitrary named event, as an agent's dispatch tool
// would.
func (f *Forge) Dispatch(name, value string) int {
	f.mu.Lock()
	orch := f.orch
	f.mu.Unlock()
	return orch.Publish(core.NewEvent(name, value))
}

// Reset discards all instances and conversations and starts a fresh session
// over the same workflow, provider and mode.
func (f *Forge) Reset() error {
	f.mu.Lock()
	old := f.orch
	f.mu.Unlock()
	old.Shutdown()
	return f.startSession()
}

// Act switches the session to act mode.
func (f *Forge) Act() error { return f.modes.Set(mode.Act) }

// Plan switches the session to plan mode.
func (f *Forge) Plan() error { return f.modes.Set(mode.Plan) }

// Mode returns the current interaction mode.
func (f *Forge) Mode() mode.Mode { return f.modes.Mode() }

// Interrupt cancels every in-flight agent turn.
func (f *Forge) Interrupt() {
	f.mu.Lock()
	orch := f.orch
	f.mu.Unlock()
	orch.Interrupt()
}

// Shutdown ends the session.
func (f *Forge) Shutdown() {
	f.mu.Lock()
	orch := f.orch
	f.mu.Unlock()
	orch.Shutdown()
}

// SessionInfo is a point-in-time description of the session.
type SessionInfo struct {
	Provider  model.Info
	Mode      mode.Mode
	Agents    []workflow.AgentDefinition
	Instances []orchestrator.InstanceInfo
}

// Info describes the session: provider, mode, configured agents, and the
// instances created so far.
func (f *Forge) Info() SessionInfo {
	f.mu.Lock()
	orch := f.orch
	f.mu.Unlock()
	return SessionInfo{
		Provider:  f.prov.Info(),
		Mode:      f.modes.Mode(),
		Agents:    f.wf.Agents,
		Instances: orch.Instances(),
	}
}

// Models returns the distinct model ids the workflow's agents use, in
// declaration order.
func (f *Forge) Models() []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range f.wf.Agents {
		if !seen[a.Model] {
			seen[a.Model] = true
			out = append(out, a.Model)
		}
	}
	return out
}

// Dump returns every instance transcript and the full event log.
func (f *Forge) Dump() (map[string][]core.Message, []core.Event, error) {
	f.mu.Lock()
	orch := f.orch
	f.mu.Unlock()
	events, err := orch.Events()
	if err != nil {
		return nil, nil, err
	}
	return orch.Transcripts(), events, nil
}

// SessionDump is the on-disk shape written by DumpToFile.
type SessionDump struct {
	Events        []core.Event              `json:"events"`
	Conversations map[string][]core.Message `json:"conversations"`
}

// DumpToFile serializes the session's transcripts and event log as indented
// JSON at path.
func (f *Forge) DumpToFile(path string) error {
	conversations, events, err := f.Dump()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(SessionDump{
		Events:        events,
		Conversations: conversations,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session dump: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Idle reports whether no agent work is pending.
func (f *Forge) Idle() bool {
	f.mu.Lock()
	orch := f.orch
	f.mu.Unlock()
	return orch.Idle()
}

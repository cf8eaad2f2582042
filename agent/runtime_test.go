package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/forge/core"
	"github.com/forgeworks/forge/mode"
	"github.com/forgeworks/forge/model"
	"github.com/forgeworks/forge/template"
	"github.com/forgeworks/forge/tool"
	"github.com/forgeworks/forge/workflow"
)

type recordingExecutor struct {
	mu     sync.Mutex
	calls  []core.ToolCall
	output string
}

func (e *recordingExecutor) Execute(_ context.Context, call core.ToolCall) core.ToolResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
	out := e.output
	if out == "" {
		out = "done"
	}
	return core.ToolResult{CallID: call.CallID, Output: out}
}

func (e *recordingExecutor) Calls() []core.ToolCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]core.ToolCall(nil), e.calls...)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []core.Event
}

func (d *recordingDispatcher) Dispatch(evt core.Event) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
	return 1
}

func (d *recordingDispatcher) Events() []core.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]core.Event(nil), d.events...)
}

func engineerDef() workflow.AgentDefinition {
	return workflow.AgentDefinition{
		ID:            "engineer",
		Model:         "test-model",
		ToolSupported: true,
		Tools: []string{
			string(core.ToolFSRead),
			string(core.ToolProcessShell),
			string(core.ToolEventDispatch),
		},
		Subscribe: []string{core.EventUserTaskInit},
	}
}

func newTestRuntime(
	provider model.Provider,
	exec tool.Executor,
	dispatcher Dispatcher,
	optFns ...func(o *Options),
) (*Runtime, *mode.Controller) {
	modes := mode.NewController()
	renderer := template.NewMapRenderer(map[string]string{
		"sys":  "you work in {{.env.cwd}}",
		"user": "{{.event.value}}",
	})
	fns := append([]func(o *Options){func(o *Options) {
		o.RetryBackoff = time.Millisecond
	}}, optFns...)
	return NewRuntime(provider, exec, modes, renderer, dispatcher, fns...), modes
}

func TestHandlePlainTurn(t *testing.T) {
	t.Parallel()

	provider := &model.MockProvider{Replies: []model.Reply{{Content: "all set"}}}
	exec := &recordingExecutor{}
	rt, _ := newTestRuntime(provider, exec, &recordingDispatcher{})

	inst := NewInstance(engineerDef(), 0)
	err := rt.Handle(t.Context(), inst, core.NewEvent(core.EventUserTaskInit, "fix the bug"))
	require.NoError(t, err)

	assert.Equal(t, StatusIdle, inst.Status())
	assert.Empty(t, exec.Calls())

	msgs := inst.Conversation.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, core.RoleUser, msgs[0].Role)
	assert.Equal(t, "fix the bug", msgs[0].Content)
	assert.Equal(t, "all set", msgs[1].Content)
}

func TestHandleToolCallThenCompletion(t *testing.T) {
	t.Parallel()

	provider := &model.MockProvider{Replies: []model.Reply{
		{ToolCalls: []model.ToolCallPayload{{
			ID: "c1", Name: string(core.ToolFSRead), Arguments: `{"path":"main.go"}`,
		}}},
		{Content: "read it, done"},
	}}
	exec := &recordingExecutor{output: "package main"}
	rt, _ := newTestRuntime(provider, exec, &recordingDispatcher{})

	inst := NewInstance(engineerDef(), 0)
	require.NoError(t, rt.Handle(t.Context(), inst, core.NewEvent(core.EventUserTaskInit, "read main.go")))

	calls := exec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, core.ToolFSRead, calls[0].ToolName)
	assert.Equal(t, "main.go", calls[0].Parameters["path"])

	msgs := inst.Conversation.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, core.RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, core.RoleTool, msgs[2].Role)
	assert.Equal(t, "package main", msgs[2].Content)
	assert.Equal(t, "c1", msgs[2].ToolCallID)
	assert.Equal(t, "read it, done", msgs[3].Content)
}

func TestHandleDisallowedToolFedBack(t *testing.T) {
	t.Parallel()

	provider := &model.MockProvider{Replies: []model.Reply{
		{ToolCalls: []model.ToolCallPayload{{
			ID: "c1", Name: string(core.ToolFSRemove), Arguments: `{"path":"x"}`,
		}}},
		{Content: "understood"},
	}}
	exec := &recordingExecutor{}
	rt, _ := newTestRuntime(provider, exec, &recordingDispatcher{})

	inst := NewInstance(engineerDef(), 0)
	require.NoError(t, rt.Handle(t.Context(), inst, core.NewEvent(core.EventUserTaskInit, "rm x")))

	assert.Empty(t, exec.Calls())
	msgs := inst.Conversation.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, core.RoleTool, msgs[2].Role)
	assert.Contains(t, msgs[2].Content, "ERROR:")
	assert.Contains(t, msgs[2].Content, "not available")
}

func TestHandlePlanModeBlocksMutations(t *testing.T) {
	t.Parallel()

	provider := &model.MockProvider{Replies: []model.Reply{
		{ToolCalls: []model.ToolCallPayload{{
			ID: "c1", Name: string(core.ToolProcessShell), Arguments: `{"command":"rm -rf /"}`,
		}}},
		{Content: "staying in plan mode"},
	}}
	exec := &recordingExecutor{}
	rt, modes := newTestRuntime(provider, exec, &recordingDispatcher{})
	require.NoError(t, modes.Set(mode.Plan))

	inst := NewInstance(engineerDef(), 0)
	require.NoError(t, rt.Handle(t.Context(), inst, core.NewEvent(core.EventUserTaskInit, "clean up")))

	assert.Empty(t, exec.Calls())
	msgs := inst.Conversation.Messages()
	assert.Contains(t, msgs[2].Content, "plan mode")
}

func TestHandleProviderExhaustionFailsInstance(t *testing.T) {
	t.Parallel()

	provider := &model.MockProvider{Err: errors.New("rate limited")}
	rt, _ := newTestRuntime(provider, &recordingExecutor{}, &recordingDispatcher{})

	inst := NewInstance(engineerDef(), 0)
	err := rt.Handle(t.Context(), inst, core.NewEvent(core.EventUserTaskInit, "go"))
	require.Error(t, err)

	assert.Equal(t, StatusFailed, inst.Status())
	assert.Len(t, provider.Requests(), 3)
}

func TestHandleApprovalDenied(t *testing.T) {
	t.Parallel()

	provider := &model.MockProvider{Replies: []model.Reply{
		{ToolCalls: []model.ToolCallPayload{{
			ID: "c1", Name: string(core.ToolProcessShell), Arguments: `{"command":"ls"}`,
		}}},
		{Content: "ok, skipping"},
	}}
	exec := &recordingExecutor{}
	rt, _ := newTestRuntime(provider, exec, &recordingDispatcher{}, func(o *Options) {
		o.Approval = func(core.ToolCall) bool { return false }
	})

	inst := NewInstance(engineerDef(), 0)
	require.NoError(t, rt.Handle(t.Context(), inst, core.NewEvent(core.EventUserTaskInit, "list files")))

	assert.Empty(t, exec.Calls())
	assert.Contains(t, inst.Conversation.Messages()[2].Content, "denied")
}

func TestHandleDispatchInterception(t *testing.T) {
	t.Parallel()

	provider := &model.MockProvider{Replies: []model.Reply{
		{ToolCalls: []model.ToolCallPayload{{
			ID: "c1", Name: string(core.ToolEventDispatch),
			Arguments: `{"name":"review_requested","value":"please review"}`,
		}}},
		{Content: "handed off"},
	}}
	exec := &recordingExecutor{}
	dispatcher := &recordingDispatcher{}
	rt, _ := newTestRuntime(provider, exec, dispatcher)

	inst := NewInstance(engineerDef(), 0)
	evt := core.NewEvent(core.EventUserTaskInit, "start")
	require.NoError(t, rt.Handle(t.Context(), inst, evt))

	// The dispatch tool never reaches the executor.
	assert.Empty(t, exec.Calls())

	events := dispatcher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "review_requested", events[0].Name)
	assert.Equal(t, "please review", events[0].Value)
	assert.Equal(t, 1, events[0].Depth)
}

func TestHandleDispatchDepthGuard(t *testing.T) {
	t.Parallel()

	provider := &model.MockProvider{Replies: []model.Reply{
		{ToolCalls: []model.ToolCallPayload{{
			ID: "c1", Name: string(core.ToolEventDispatch),
			Arguments: `{"name":"again","value":"loop"}`,
		}}},
		{Content: "stopping"},
	}}
	dispatcher := &recordingDispatcher{}
	rt, _ := newTestRuntime(provider, &recordingExecutor{}, dispatcher, func(o *Options) {
		o.MaxDispatchDepth = 2
	})

	inst := NewInstance(engineerDef(), 0)
	evt := core.NewEvent("again", "loop")
	evt.Depth = 2
	require.NoError(t, rt.Handle(t.Context(), inst, evt))

	assert.Empty(t, dispatcher.Events())
	assert.Contains(t, inst.Conversation.Messages()[2].Content, "depth limit")
}

func TestHandleInlineProtocol(t *testing.T) {
	t.Parallel()

	def := engineerDef()
	def.ToolSupported = false

	provider := &model.MockProvider{Replies: []model.Reply{
		{Content: "<tool_forge_fs_read><path>go.mod</path></tool_forge_fs_read>"},
		{Content: "saw the module file"},
	}}
	exec := &recordingExecutor{}
	rt, _ := newTestRuntime(provider, exec, &recordingDispatcher{})

	inst := NewInstance(def, 0)
	require.NoError(t, rt.Handle(t.Context(), inst, core.NewEvent(core.EventUserTaskInit, "inspect")))

	calls := exec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, core.ToolFSRead, calls[0].ToolName)

	// Structured tool definitions are withheld from the request.
	for _, req := range provider.Requests() {
		assert.Empty(t, req.Tools)
	}
}

func TestHandleInlineParseFeedback(t *testing.T) {
	t.Parallel()

	def := engineerDef()
	def.ToolSupported = false

	provider := &model.MockProvider{Replies: []model.Reply{
		{Content: "<tool_forge_fs_read><mode>fast</mode></tool_forge_fs_read>"},
		{Content: "fine, I am done"},
	}}
	exec := &recordingExecutor{}
	rt, _ := newTestRuntime(provider, exec, &recordingDispatcher{})

	inst := NewInstance(def, 0)
	require.NoError(t, rt.Handle(t.Context(), inst, core.NewEvent(core.EventUserTaskInit, "inspect")))

	assert.Empty(t, exec.Calls())
	msgs := inst.Conversation.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, core.RoleUser, msgs[2].Role)
	assert.Contains(t, msgs[2].Content, "could not be parsed")
}

func TestHandleEphemeralCompletes(t *testing.T) {
	t.Parallel()

	def := engineerDef()
	def.Ephemeral = true

	provider := &model.MockProvider{Replies: []model.Reply{{Content: "title: Fix bug"}}}
	rt, _ := newTestRuntime(provider, &recordingExecutor{}, &recordingDispatcher{})

	inst := NewInstance(def, 3)
	require.NoError(t, rt.Handle(t.Context(), inst, core.NewEvent(core.EventUserTaskInit, "fix")))
	assert.Equal(t, StatusCompleted, inst.Status())
	assert.Equal(t, "engineer#3", inst.Key())
}

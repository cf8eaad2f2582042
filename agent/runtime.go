// Package agent runs the per-instance execution loop: prompt assembly,
// provider turns with bounded retry, tool-call mediation, and the status
// transitions of an instance's lifecycle.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	goruntime "runtime"
	"time"

	"github.com/forgeworks/forge/core"
	"github.com/forgeworks/forge/logging"
	"github.com/forgeworks/forge/mode"
	"github.com/forgeworks/forge/model"
	"github.com/forgeworks/forge/parser"
	"github.com/forgeworks/forge/template"
	"github.com/forgeworks/forge/tool"
	"github.com/forgeworks/forge/workflow"
)

// Dispatcher publishes an agent-originated event to the session. It returns
// the number of subscribers the event reached.
type Dispatcher interface {
	Dispatch(evt core.Event) int
}

// Options configure a Runtime.
type Options struct {
	// MaxAttempts bounds provider calls per turn step, including the first.
	MaxAttempts int
	// RetryBackoff is the delay before the second attempt; it doubles after
	// every failure. No jitter is applied.
	RetryBackoff time.Duration
	// MaxTurnSteps bounds model round-trips within one turn.
	MaxTurnSteps int
	// MaxDispatchDepth bounds transitive agent-to-agent dispatch chains.
	MaxDispatchDepth int

	// WorkingDir and Shell describe the execution environment exposed to
	// prompts.
	WorkingDir string
	Shell      string

	Variables map[string]string
	Approval  tool.ApprovalFunc
	Logger    logging.Logger
}

// Runtime drives agent turns. One Runtime is shared by every instance in a
// session; per-instance state lives on the Instance.
type Runtime struct {
	provider   model.Provider
	executor   tool.Executor
	parser     *parser.Parser
	modes      *mode.Controller
	renderer   template.Renderer
	dispatcher Dispatcher
	opts       Options
}

// NewRuntime wires a Runtime from its collaborators.
func NewRuntime(
	provider model.Provider,
	executor tool.Executor,
	modes *mode.Controller,
	renderer template.Renderer,
	dispatcher Dispatcher,
	optFns ...func(o *Options),
) *Runtime {
	opts := Options{
		MaxAttempts:      3,
		RetryBackoff:     500 * time.Millisecond,
		MaxTurnSteps:     64,
		MaxDispatchDepth: 8,
		WorkingDir:       ".",
		Shell:            os.Getenv("SHELL"),
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Runtime{
		provider:   provider,
		executor:   executor,
		parser:     parser.New(parser.WithLogger(opts.Logger)),
		modes:      modes,
		renderer:   renderer,
		dispatcher: dispatcher,
		opts:       opts,
	}
}

// Handle runs one full turn of inst for evt: it extends the conversation,
// loops through provider calls and tool executions, and settles the
// instance's status when the turn ends.
//
// Provider failures are retried with exponential backoff; exhaustion marks
// the instance failed and returns the underlying error. Tool failures are
// never retried here: they flow back to the model as error results and the
// turn continues.
func (r *Runtime) Handle(ctx context.Context, inst *Instance, evt core.Event) error {
	start := time.Now()
	inst.setStatus(StatusRunning)
	r.opts.Logger.Info("agent.turn.started",
		"agent", inst.Def.ID, "generation", inst.Generation,
		"event", evt.Name, "depth", evt.Depth)

	promptCtx := r.promptContext(inst.Def, evt)
	system, err := r.renderPrompt(inst.Def.SystemPrompt, promptCtx)
	if err != nil {
		inst.setStatus(StatusFailed)
		return fmt.Errorf("render system prompt for %s: %w", inst.Def.ID, err)
	}
	user, err := r.renderPrompt(inst.Def.UserPrompt, promptCtx)
	if err != nil {
		inst.setStatus(StatusFailed)
		return fmt.Errorf("render user prompt for %s: %w", inst.Def.ID, err)
	}
	if user == "" {
		user = evt.Value
	}
	inst.Conversation.Append(core.UserMessage(user))

	req := model.Request{
		Model:  inst.Def.Model,
		System: system,
	}
	if inst.Def.ToolSupported {
		req.Tools = tool.ModelDefinitions(inst.Def.ToolNames())
	}

	if err := r.runLoop(ctx, inst, evt, req); err != nil {
		if errors.Is(err, context.Canceled) {
			inst.setStatus(StatusIdle)
			return err
		}
		inst.setStatus(StatusFailed)
		r.opts.Logger.Error("agent.turn.failed",
			"agent", inst.Def.ID, "generation", inst.Generation, "error", err.Error())
		return err
	}

	if inst.Def.Ephemeral {
		inst.setStatus(StatusCompleted)
	} else {
		inst.setStatus(StatusIdle)
	}
	r.opts.Logger.Info("agent.turn.completed",
		"agent", inst.Def.ID, "generation", inst.Generation,
		"event", evt.Name, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (r *Runtime) runLoop(ctx context.Context, inst *Instance, evt core.Event, req model.Request) error {
	for step := 0; step < r.opts.MaxTurnSteps; step++ {
		req.Messages = inst.Conversation.Messages()

		reply, call, err := r.generate(ctx, inst, req)
		if err != nil {
			var parseErr *core.ParseError
			if errors.As(err, &parseErr) {
				// Malformed inline call: hand the correction back and let the
				// model retry on the next step.
				inst.Conversation.Append(
					core.AssistantMessage(reply.Content),
					core.UserMessage(parseErr.Feedback()),
				)
				r.opts.Logger.Warn("agent.call.malformed",
					"agent", inst.Def.ID, "tool", parseErr.Tool, "reason", parseErr.Reason)
				continue
			}
			return err
		}

		if call == nil {
			inst.Conversation.Append(core.AssistantMessage(reply.Content))
			return nil
		}
		inst.Conversation.Append(core.AssistantMessage(reply.Content, *call))

		res := r.executeCall(ctx, inst, evt, *call)
		inst.Conversation.Append(core.ToolMessage(res))
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("agent %s exceeded %d steps in one turn", inst.Def.ID, r.opts.MaxTurnSteps)
}

// generate calls the provider with bounded retry. Structured-call corruption
// counts as a provider failure; an inline parse failure is returned to the
// caller together with the reply it came from.
func (r *Runtime) generate(ctx context.Context, inst *Instance, req model.Request) (*model.Reply, *core.ToolCall, error) {
	backoff := r.opts.RetryBackoff
	var lastErr error
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		reply, err := r.provider.Complete(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			lastErr = err
			r.opts.Logger.Warn("agent.provider.retry",
				"agent", inst.Def.ID, "attempt", attempt, "error", err.Error())
			continue
		}

		call, err := r.parser.Parse(reply, inst.Def.ToolSupported)
		if err != nil {
			var provErr *core.ProviderError
			if errors.As(err, &provErr) {
				lastErr = err
				r.opts.Logger.Warn("agent.provider.retry",
					"agent", inst.Def.ID, "attempt", attempt, "error", err.Error())
				continue
			}
			return reply, nil, err
		}
		return reply, call, nil
	}
	return nil, nil, fmt.Errorf("provider gave up after %d attempts: %w", r.opts.MaxAttempts, lastErr)
}

// executeCall mediates one tool call: availability, mode, approval, then
// execution. Every refusal is expressed as an error result so the model can
// adjust course instead of the turn aborting.
func (r *Runtime) executeCall(ctx context.Context, inst *Instance, evt core.Event, call core.ToolCall) core.ToolResult {
	if !inst.Def.AllowsTool(call.ToolName) {
		err := &core.ToolNotAvailableError{
			Tool:   call.ToolName,
			Reason: fmt.Sprintf("not in the tool list of agent %s", inst.Def.ID),
		}
		return core.ToolResult{CallID: call.CallID, Output: err.Error(), IsError: true}
	}
	if err := r.modes.Check(call.ToolName); err != nil {
		r.opts.Logger.Info("agent.call.mode_blocked",
			"agent", inst.Def.ID, "tool", call.ToolName, "mode", r.modes.Mode())
		return core.ToolResult{CallID: call.CallID, Output: err.Error(), IsError: true}
	}
	if r.opts.Approval != nil && !r.opts.Approval(call) {
		return core.ToolResult{
			CallID:  call.CallID,
			Output:  fmt.Sprintf("call to %s was denied by the user", call.ToolName),
			IsError: true,
		}
	}

	if call.ToolName == core.ToolEventDispatch {
		return r.dispatch(inst, evt, call)
	}

	inst.setStatus(StatusAwaitingTool)
	res := r.executor.Execute(ctx, call)
	inst.setStatus(StatusRunning)
	return res
}

// dispatch intercepts the event-dispatch tool: instead of reaching the
// executor, the call becomes a bus publish. The depth guard stops dispatch
// chains that would otherwise recurse without bound.
func (r *Runtime) dispatch(inst *Instance, evt core.Event, call core.ToolCall) core.ToolResult {
	name := call.Parameters["name"]
	value := call.Parameters["value"]
	if name == "" {
		return core.ToolResult{
			CallID:  call.CallID,
			Output:  `parameter "name" must not be empty`,
			IsError: true,
		}
	}

	child := evt.Child(name, value)
	if child.Depth > r.opts.MaxDispatchDepth {
		r.opts.Logger.Warn("agent.dispatch.suppressed",
			"agent", inst.Def.ID, "event", name, "depth", child.Depth)
		return core.ToolResult{
			CallID:  call.CallID,
			Output:  fmt.Sprintf("event %q not dispatched: chain depth limit (%d) reached", name, r.opts.MaxDispatchDepth),
			IsError: true,
		}
	}

	n := r.dispatcher.Dispatch(child)
	r.opts.Logger.Debug("agent.dispatch.published",
		"agent", inst.Def.ID, "event", name, "subscribers", n, "depth", child.Depth)
	return core.ToolResult{
		CallID: call.CallID,
		Output: fmt.Sprintf("Event %q dispatched to %d subscriber(s).", name, n),
	}
}

func (r *Runtime) renderPrompt(name string, promptCtx map[string]any) (string, error) {
	if name == "" {
		return "", nil
	}
	return r.renderer.Render(name, promptCtx)
}

func (r *Runtime) promptContext(def workflow.AgentDefinition, evt core.Event) map[string]any {
	vars := map[string]any{}
	for k, v := range r.opts.Variables {
		vars[k] = v
	}
	return map[string]any{
		"env": map[string]any{
			"os":    goruntime.GOOS,
			"cwd":   r.opts.WorkingDir,
			"shell": r.opts.Shell,
		},
		"event": map[string]any{
			"name":  evt.Name,
			"value": evt.Value,
		},
		"tool_information":    tool.Information(def.ToolNames()),
		"tool_supported":      def.ToolSupported,
		"custom_instructions": def.ProjectRules,
		"learnings":           "",
		"variables":           vars,
	}
}

// Package orchestrator owns a session: the bus, the live agent instances,
// and the goroutines that drain their mailboxes. It decides when instances
// come into existence (lazily, on first delivery), when ephemeral ones are
// torn down, and how interrupts and shutdown propagate.
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/forgeworks/forge/agent"
	"github.com/forgeworks/forge/bus"
	"github.com/forgeworks/forge/core"
	"github.com/forgeworks/forge/logging"
	"github.com/forgeworks/forge/store"
	"github.com/forgeworks/forge/workflow"
)

// Options configure an Orchestrator.
type Options struct {
	Logger logging.Logger
	// EventLog records every published event. Defaults to an in-memory log.
	EventLog store.EventLog
}

// Orchestrator runs one session over a resolved workflow.
type Orchestrator struct {
	wf      *workflow.Workflow
	bus     *bus.Bus
	runtime *agent.Runtime
	opts    Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	live    map[string]*entry // agent id -> current non-terminal entry
	all     []*entry          // every entry ever created, for inspection
	nextGen map[string]int
}

// entry binds an instance to its mailbox and the cancel function of its
// in-flight turn, if any. pending counts events accepted for this entry
// whose turns have not finished yet; it is incremented at delivery time so
// Idle can never report true while a just-delivered event is between the
// mailbox and its turn.
type entry struct {
	inst    *agent.Instance
	mbox    *bus.Mailbox
	pending atomic.Int64

	mu         sync.Mutex
	cancelTurn context.CancelFunc
}

func (e *entry) setCancel(fn context.CancelFunc) {
	e.mu.Lock()
	e.cancelTurn = fn
	e.mu.Unlock()
}

func (e *entry) interrupt() {
	e.mu.Lock()
	fn := e.cancelTurn
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// New creates an Orchestrator for the workflow. Attach must be called with
// the session runtime before any event is published.
func New(wf *workflow.Workflow, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Logger:   logging.NoOpLogger{},
		EventLog: store.NewMemoryLog(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		wf:      wf,
		bus:     bus.New(wf, bus.WithLogger(opts.Logger)),
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		live:    map[string]*entry{},
		nextGen: map[string]int{},
	}
	o.bus.Route(o.deliver)
	return o
}

// Attach binds the runtime that executes agent turns. The orchestrator is
// the runtime's dispatcher, so the two are wired to each other after both
// exist.
func (o *Orchestrator) Attach(rt *agent.Runtime) {
	o.mu.Lock()
	o.runtime = rt
	o.mu.Unlock()
}

// Publish routes an event to every subscribed agent and records it in the
// event log. It returns the number of instances the event reached and never
// blocks on agent work.
func (o *Orchestrator) Publish(evt core.Event) int {
	if err := o.opts.EventLog.Append(evt); err != nil {
		o.opts.Logger.Warn("orchestrator.log.append_failed", "event", evt.Name, "error", err.Error())
	}
	return o.bus.Publish(evt)
}

// Dispatch implements agent.Dispatcher for agent-originated events.
func (o *Orchestrator) Dispatch(evt core.Event) int {
	return o.Publish(evt)
}

// deliver is the bus route: it resolves the target agent to a live instance,
// creating one when needed, and enqueues the event. A mailbox that closed
// between resolution and the put belongs to a retiring instance, so
// resolution is retried against its successor.
func (o *Orchestrator) deliver(agentID string, evt core.Event) {
	def, err := o.wf.FindAgent(agentID)
	if err != nil {
		o.opts.Logger.Error("orchestrator.deliver.unknown_agent", "agent", agentID)
		return
	}
	for {
		e := o.resolve(def)
		if e == nil {
			return
		}
		e.pending.Add(1)
		if e.mbox.Put(evt) {
			return
		}
		e.pending.Add(-1)
	}
}

// resolve returns the entry that should receive the next event for def.
// Persistent agents reuse their live instance; a new generation is created
// on first use or after the previous instance ended. Ephemeral agents get a
// fresh instance for every single event.
func (o *Orchestrator) resolve(def workflow.AgentDefinition) *entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runtime == nil {
		o.opts.Logger.Error("orchestrator.deliver.no_runtime", "agent", def.ID)
		return nil
	}
	if o.ctx.Err() != nil {
		return nil
	}

	if !def.Ephemeral {
		if cur, ok := o.live[def.ID]; ok && !cur.inst.Status().Terminal() {
			return cur
		}
	}

	gen := o.nextGen[def.ID]
	o.nextGen[def.ID]++
	e := &entry{
		inst: agent.NewInstance(def, gen),
		mbox: bus.NewMailbox(),
	}
	o.all = append(o.all, e)
	if !def.Ephemeral {
		o.live[def.ID] = e
	}
	o.opts.Logger.Debug("orchestrator.instance.created",
		"agent", def.ID, "generation", gen, "ephemeral", def.Ephemeral)

	o.wg.Add(1)
	go o.consume(e)
	return e
}

// consume drains one instance's mailbox. Each event is one turn; ephemeral
// instances (and failed ones) retire after their turn ends.
func (o *Orchestrator) consume(e *entry) {
	defer o.wg.Done()
	for {
		evt, ok := e.mbox.Next(o.ctx)
		if !ok {
			return
		}

		turnCtx, cancel := context.WithCancel(o.ctx)
		e.setCancel(cancel)
		err := o.runtime.Handle(turnCtx, e.inst, evt)
		e.setCancel(nil)
		cancel()

		if err != nil {
			o.opts.Logger.Warn("orchestrator.turn.ended_with_error",
				"agent", e.inst.Def.ID, "generation", e.inst.Generation, "error", err.Error())
		}
		if e.inst.Status().Terminal() || e.inst.Def.Ephemeral {
			e.pending.Add(-1)
			o.retire(e)
			return
		}
		e.pending.Add(-1)
	}
}

// retire removes an entry from the live set and closes its mailbox. Events
// still queued for a persistent agent are handed back to deliver so the
// successor generation picks them up instead of losing them.
func (o *Orchestrator) retire(e *entry) {
	o.mu.Lock()
	if cur, ok := o.live[e.inst.Def.ID]; ok && cur == e {
		delete(o.live, e.inst.Def.ID)
	}
	o.mu.Unlock()
	queued := e.mbox.Drain()
	o.opts.Logger.Debug("orchestrator.instance.retired",
		"agent", e.inst.Def.ID, "generation", e.inst.Generation, "status", e.inst.Status())
	if e.inst.Def.Ephemeral {
		return
	}
	for _, evt := range queued {
		o.opts.Logger.Info("orchestrator.event.requeued",
			"agent", e.inst.Def.ID, "generation", e.inst.Generation, "event", evt.Name)
		o.deliver(e.inst.Def.ID, evt)
		e.pending.Add(-1)
	}
}

// Interrupt cancels every in-flight turn. Interrupted persistent instances
// return to idle with their conversation intact; queued events stay queued.
func (o *Orchestrator) Interrupt() {
	o.mu.Lock()
	entries := append([]*entry(nil), o.all...)
	o.mu.Unlock()
	for _, e := range entries {
		e.interrupt()
	}
	o.opts.Logger.Info("orchestrator.interrupted")
}

// Shutdown stops the session: all turns are canceled, mailboxes closed, and
// consumer goroutines joined.
func (o *Orchestrator) Shutdown() {
	o.cancel()
	o.mu.Lock()
	entries := append([]*entry(nil), o.all...)
	o.mu.Unlock()
	for _, e := range entries {
		e.mbox.Close()
	}
	o.wg.Wait()
	if err := o.opts.EventLog.Close(); err != nil {
		o.opts.Logger.Warn("orchestrator.log.close_failed", "error", err.Error())
	}
	o.opts.Logger.Info("orchestrator.shutdown")
}

// InstanceInfo is a point-in-time view of one instance.
type InstanceInfo struct {
	AgentID    string
	Generation int
	Ephemeral  bool
	Status     agent.Status
	Messages   int
	Queued     int
}

// Instances returns a snapshot of every instance created in the session, in
// creation order.
func (o *Orchestrator) Instances() []InstanceInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]InstanceInfo, 0, len(o.all))
	for _, e := range o.all {
		out = append(out, InstanceInfo{
			AgentID:    e.inst.Def.ID,
			Generation: e.inst.Generation,
			Ephemeral:  e.inst.Def.Ephemeral,
			Status:     e.inst.Status(),
			Messages:   e.inst.Conversation.Len(),
			Queued:     e.mbox.Len(),
		})
	}
	return out
}

// Transcripts returns each instance's conversation keyed by instance key.
func (o *Orchestrator) Transcripts() map[string][]core.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := map[string][]core.Message{}
	for _, e := range o.all {
		out[e.inst.Key()] = e.inst.Conversation.Messages()
	}
	return out
}

// Events returns the session event log in publish order.
func (o *Orchestrator) Events() ([]core.Event, error) {
	return o.opts.EventLog.Events()
}

// Idle reports whether no instance is currently inside a turn and no
// mailbox holds queued events.
func (o *Orchestrator) Idle() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, e := range o.all {
		switch e.inst.Status() {
		case agent.StatusRunning, agent.StatusAwaitingTool:
			return false
		}
		if e.pending.Load() > 0 {
			return false
		}
	}
	return true
}

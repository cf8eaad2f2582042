package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/forge/core"
	"github.com/forgeworks/forge/workflow"
)

func topologyFixture() *workflow.Workflow {
	return &workflow.Workflow{Agents: []workflow.AgentDefinition{
		{ID: "engineer", Subscribe: []string{"user_task_init", "user_task_update"}},
		{ID: "titler", Subscribe: []string{"user_task_init"}},
		{ID: "reviewer", Subscribe: []string{"review_requested"}},
	}}
}

func TestPublishFanOutOrder(t *testing.T) {
	t.Parallel()

	b := New(topologyFixture())
	var delivered []string
	b.Route(func(agentID string, evt core.Event) {
		delivered = append(delivered, agentID)
	})

	n := b.Publish(core.NewEvent("user_task_init", "build it"))
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"engineer", "titler"}, delivered)
}

func TestPublishNoSubscribers(t *testing.T) {
	t.Parallel()

	b := New(topologyFixture())
	b.Route(func(string, core.Event) { t.Fatal("route must not be called") })

	assert.Zero(t, b.Publish(core.NewEvent("unheard_of", "")))
}

func TestPublishWithoutRouteDropsEvent(t *testing.T) {
	t.Parallel()

	b := New(topologyFixture())
	assert.Zero(t, b.Publish(core.NewEvent("user_task_init", "x")))
}

func TestSubscribersOf(t *testing.T) {
	t.Parallel()

	b := New(topologyFixture())
	assert.Equal(t, []string{"engineer", "titler"}, b.SubscribersOf("user_task_init"))
	assert.Equal(t, []string{"reviewer"}, b.SubscribersOf("review_requested"))
	assert.Empty(t, b.SubscribersOf("nothing"))
}

func TestMailboxFIFO(t *testing.T) {
	t.Parallel()

	m := NewMailbox()
	m.Put(core.NewEvent("a", "1"))
	m.Put(core.NewEvent("b", "2"))
	m.Put(core.NewEvent("c", "3"))
	require.Equal(t, 3, m.Len())

	for _, want := range []string{"a", "b", "c"} {
		evt, ok := m.Next(t.Context())
		require.True(t, ok)
		assert.Equal(t, want, evt.Name)
	}
}

func TestMailboxBlocksUntilPut(t *testing.T) {
	t.Parallel()

	m := NewMailbox()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		evt, ok := m.Next(t.Context())
		assert.True(t, ok)
		assert.Equal(t, "late", evt.Name)
	}()

	time.Sleep(10 * time.Millisecond)
	m.Put(core.NewEvent("late", ""))
	wg.Wait()
}

func TestMailboxNextHonorsContext(t *testing.T) {
	t.Parallel()

	m := NewMailbox()
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	_, ok := m.Next(ctx)
	assert.False(t, ok)
}

func TestMailboxClose(t *testing.T) {
	t.Parallel()

	m := NewMailbox()
	m.Put(core.NewEvent("a", ""))
	m.Close()

	_, ok := m.Next(t.Context())
	assert.False(t, ok)

	// Put after close is refused.
	assert.False(t, m.Put(core.NewEvent("b", "")))
	assert.Zero(t, m.Len())
}

func TestMailboxDrainReturnsQueuedEvents(t *testing.T) {
	t.Parallel()

	m := NewMailbox()
	require.True(t, m.Put(core.NewEvent("a", "1")))
	require.True(t, m.Put(core.NewEvent("b", "2")))

	drained := m.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, "a", drained[0].Name)
	assert.Equal(t, "b", drained[1].Name)
	assert.True(t, m.Closed())

	// A second drain finds nothing left.
	assert.Empty(t, m.Drain())
}

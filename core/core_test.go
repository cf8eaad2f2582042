package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventChildDepth(t *testing.T) {
	t.Parallel()

	root := NewEvent(EventUserTaskInit, "build")
	assert.Zero(t, root.Depth)
	assert.False(t, root.EmittedAt.IsZero())

	child := root.Child("review_requested", "check it")
	assert.Equal(t, 1, child.Depth)
	grandchild := child.Child("ping", "")
	assert.Equal(t, 2, grandchild.Depth)

	// The parent is untouched.
	assert.Zero(t, root.Depth)
}

func TestToolNameCatalog(t *testing.T) {
	t.Parallel()

	names := ToolNames()
	assert.NotEmpty(t, names)

	n, ok := ParseToolName("tool_forge_fs_read")
	require.True(t, ok)
	assert.Equal(t, ToolFSRead, n)
	assert.True(t, n.ReadOnly())

	_, ok = ParseToolName("tool_forge_teleport")
	assert.False(t, ok)

	assert.False(t, ToolProcessShell.ReadOnly())
	assert.False(t, ToolApplyPatch.ReadOnly())
	assert.True(t, ToolThink.ReadOnly())
	assert.True(t, ToolEventDispatch.ReadOnly())
}

func TestToolMessage(t *testing.T) {
	t.Parallel()

	msg := ToolMessage(ToolResult{CallID: "c1", Output: "done"})
	assert.Equal(t, RoleTool, msg.Role)
	assert.Equal(t, "c1", msg.ToolCallID)
	assert.Equal(t, "done", msg.Content)

	errMsg := ToolMessage(ToolResult{CallID: "c2", Output: "no such file", IsError: true})
	assert.Equal(t, "ERROR: no such file", errMsg.Content)
}

func TestConversationAppendAndCopy(t *testing.T) {
	t.Parallel()

	c := NewConversation()
	assert.NotEmpty(t, c.ID)
	assert.Zero(t, c.Len())

	c.Append(UserMessage("hi"), AssistantMessage("hello"))
	require.Equal(t, 2, c.Len())

	msgs := c.Messages()
	msgs[0].Content = "mutated"
	assert.Equal(t, "hi", c.Messages()[0].Content)
}

func TestConversationConcurrentAppend(t *testing.T) {
	t.Parallel()

	c := NewConversation()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Append(UserMessage("m"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 16, c.Len())
}

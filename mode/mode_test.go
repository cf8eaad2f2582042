package mode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/forge/core"
)

func TestControllerStartsInAct(t *testing.T) {
	t.Parallel()

	c := NewController()
	assert.Equal(t, Act, c.Mode())
	assert.NoError(t, c.Check(core.ToolProcessShell))
}

func TestControllerPlanBlocksMutatingTools(t *testing.T) {
	t.Parallel()

	c := NewController()
	require.NoError(t, c.Set(Plan))

	assert.NoError(t, c.Check(core.ToolFSRead))
	assert.NoError(t, c.Check(core.ToolThink))
	assert.NoError(t, c.Check(core.ToolEventDispatch))

	err := c.Check(core.ToolFSCreate)
	var notAvail *core.ToolNotAvailableError
	require.ErrorAs(t, err, &notAvail)
	assert.Equal(t, core.ToolFSCreate, notAvail.Tool)

	assert.Error(t, c.Check(core.ToolProcessShell))
	assert.Error(t, c.Check(core.ToolApplyPatch))
}

func TestControllerSwitchBack(t *testing.T) {
	t.Parallel()

	c := NewController()
	require.NoError(t, c.Set(Plan))
	require.NoError(t, c.Set(Act))
	assert.NoError(t, c.Check(core.ToolFSRemove))
}

func TestControllerRejectsUnknownMode(t *testing.T) {
	t.Parallel()

	c := NewController()
	assert.Error(t, c.Set(Mode("dream")))
	assert.Equal(t, Act, c.Mode())
}

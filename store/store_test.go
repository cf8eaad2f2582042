package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/forge/core"
)

func TestMemoryLogAppendOrder(t *testing.T) {
	t.Parallel()

	l := NewMemoryLog()
	require.NoError(t, l.Append(core.NewEvent("first", "1")))
	require.NoError(t, l.Append(core.NewEvent("second", "2")))

	events, err := l.Events()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "first", events[0].Name)
	assert.Equal(t, "second", events[1].Name)
}

func TestBoltLogPersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.db")

	l, err := OpenBolt(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(core.NewEvent("user_task_init", "build")))
	require.NoError(t, l.Append(core.NewEvent("title_generated", "Build thing")))
	require.NoError(t, l.Close())

	l, err = OpenBolt(path)
	require.NoError(t, err)
	defer l.Close()

	events, err := l.Events()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "user_task_init", events[0].Name)
	assert.Equal(t, "build", events[0].Value)
	assert.Equal(t, "title_generated", events[1].Name)
}

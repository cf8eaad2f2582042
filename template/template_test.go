package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTextPlainPassthrough(t *testing.T) {
	t.Parallel()

	out, err := RenderText("no markers here", nil)
	require.NoError(t, err)
	assert.Equal(t, "no markers here", out)
}

func TestRenderTextNestedContext(t *testing.T) {
	t.Parallel()

	out, err := RenderText("os={{.env.os}} event={{.event.name}}", map[string]any{
		"env":   map[string]any{"os": "linux"},
		"event": map[string]any{"name": "user_task_init"},
	})
	require.NoError(t, err)
	assert.Equal(t, "os=linux event=user_task_init", out)
}

func TestRenderTextHelpers(t *testing.T) {
	t.Parallel()

	out, err := RenderText(`{{upper .name}} {{default "anon" .missing}}`, map[string]any{
		"name": "forge",
	})
	require.NoError(t, err)
	assert.Equal(t, "FORGE anon", out)
}

func TestMapRendererUnknownName(t *testing.T) {
	t.Parallel()

	r := NewMapRenderer(map[string]string{"greet": "hi {{.who}}"})

	out, err := r.Render("greet", map[string]any{"who": "there"})
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)

	_, err = r.Render("absent", nil)
	assert.Error(t, err)
}

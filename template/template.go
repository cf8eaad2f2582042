// Package template renders workflow prompt templates against an agent's
// turn context. Templates use Go text/template syntax with a small set of
// string helpers.
package template

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Renderer resolves a named template from a workflow and renders it against
// the given context.
type Renderer interface {
	Render(name string, ctx map[string]any) (string, error)
}

// MapRenderer renders templates looked up in a name-to-source map, the form
// a resolved workflow carries them in.
type MapRenderer struct {
	templates map[string]string
}

// NewMapRenderer returns a Renderer over the given template sources.
func NewMapRenderer(templates map[string]string) *MapRenderer {
	return &MapRenderer{templates: templates}
}

func (r *MapRenderer) Render(name string, ctx map[string]any) (string, error) {
	src, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("template %q not defined", name)
	}
	return RenderText(src, ctx)
}

// RenderText renders a template source string directly. Sources without any
// template markers pass through untouched.
func RenderText(text string, ctx map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("prompt").Funcs(template.FuncMap{
		"default": func(defaultVal any, val any) any {
			if val == nil || val == "" {
				return defaultVal
			}
			return val
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"title": func(s string) string {
			if len(s) == 0 {
				return s
			}
			return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
		},
		"join": strings.Join,
	}).Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", err
	}
	return buf.String(), nil
}

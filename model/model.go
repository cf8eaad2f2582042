// Package model defines the provider abstraction agents generate text
// through. A Provider turns a normalized request (conversation, tools,
// sampling settings) into a single assistant reply; concrete adapters for
// the OpenAI and Anthropic APIs live in subpackages.
package model

import (
	"context"
	"sync"

	"github.com/forgeworks/forge/core"
)

// ToolDefinition describes one callable tool in the shape providers expect:
// a name, a human description, and a JSON-schema parameter object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is a normalized completion request.
type Request struct {
	Model    string
	System   string
	Messages []core.Message
	Tools    []ToolDefinition
}

// ToolCallPayload is a structured tool call exactly as the provider returned
// it. Arguments is the raw JSON argument object; decoding and validation
// happen downstream.
type ToolCallPayload struct {
	ID        string
	Name      string
	Arguments string
}

// Reply is a completed assistant turn.
type Reply struct {
	Content      string
	ToolCalls    []ToolCallPayload
	FinishReason string
}

// Provider generates assistant replies. Implementations must be safe for
// concurrent use; every agent instance in a session shares one Provider.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Reply, error)
	Info() Info
}

// Info describes a provider implementation.
type Info struct {
	Name          string
	Provider      string
	SupportsTools bool
}

// MockProvider is a scripted Provider for tests. It returns its replies in
// order and repeats the last one once the script runs out; a non-nil Err is
// returned on every call instead.
type MockProvider struct {
	Replies []Reply
	Err     error

	mu       sync.Mutex
	requests []Request
}

func (m *MockProvider) Complete(_ context.Context, req Request) (*Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Replies) == 0 {
		return &Reply{FinishReason: "stop"}, nil
	}
	idx := len(m.requests) - 1
	if idx >= len(m.Replies) {
		idx = len(m.Replies) - 1
	}
	r := m.Replies[idx]
	return &r, nil
}

// Requests returns a copy of every request seen so far.
func (m *MockProvider) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

func (m *MockProvider) Info() Info {
	return Info{Name: "mock", Provider: "mock", SupportsTools: true}
}

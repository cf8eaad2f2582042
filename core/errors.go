package core

import "fmt"

// ConfigError reports a fatal problem in the workflow document: malformed
// YAML, a duplicate agent id, or a reference to an unknown tool or template.
// It is surfaced before any agent runs.
type ConfigError struct {
	Source string // file path or "default" for the embedded workflow
	Field  string // offending key, e.g. "agents[coder].tools"
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("workflow %s: %s: %s", e.Source, e.Field, e.Reason)
	}
	return fmt.Sprintf("workflow %s: %s", e.Source, e.Reason)
}

// ProviderError wraps a failure from the language-model provider: network,
// auth, rate limit, or a malformed structured reply. Provider errors are
// retried with bounded backoff before the instance is marked failed.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ParseError reports a malformed inline tool-call tag, typically a missing
// required parameter. It is fed back to the model as corrective feedback
// rather than aborting the turn.
type ParseError struct {
	Tool   ToolName
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed call to %s: %s", e.Tool, e.Reason)
}

// Feedback renders the error as a correction the model can act on.
func (e *ParseError) Feedback() string {
	return fmt.Sprintf("Your call to %s could not be parsed: %s. Repeat the call with the correct parameters.", e.Tool, e.Reason)
}

// ToolNotAvailableError reports a tool call naming a tool outside the
// agent's allow-list or forbidden by the current mode. It is converted into
// an error ToolResult and fed back to the model.
type ToolNotAvailableError struct {
	Tool   ToolName
	Reason string
}

func (e *ToolNotAvailableError) Error() string {
	return fmt.Sprintf("tool %s not available: %s", e.Tool, e.Reason)
}

// ToolExecutionError wraps a failure inside the external tool executor:
// nonzero exit, timeout, or I/O failure. Never retried automatically; the
// model sees it as an error-flagged result and decides what to do.
type ToolExecutionError struct {
	Tool ToolName
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

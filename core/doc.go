// Package core holds the shared domain types of the runtime: events, the
// conversation model (messages, tool calls, tool results), the closed tool
// catalog, and the error kinds other packages agree on. It has no
// dependencies on the orchestration layers above it.
package core

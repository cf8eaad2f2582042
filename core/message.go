package core

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a structured request, extracted from a model reply, to invoke a
// named tool. CallID is unique within one agent turn; when the provider does
// not supply one the parser mints it.
type ToolCall struct {
	CallID     string            `json:"call_id"`
	ToolName   ToolName          `json:"tool_name"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// ToolResult is the outcome of executing a ToolCall. It must reference a
// previously issued, unresolved call of the same instance; IsError marks
// failures that are fed back to the model rather than retried.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Output  string `json:"output"`
	IsError bool   `json:"is_error"`
}

// Message is one entry of an instance's conversation. ToolCallID is set only
// on tool-role messages and names the call the carried result answers.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// UserMessage builds a user-authored text message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant message carrying the raw reply text
// plus any tool calls parsed from it.
func AssistantMessage(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolMessage wraps a ToolResult as a conversation message so the next model
// turn can see the outcome.
func ToolMessage(res ToolResult) Message {
	m := Message{Role: RoleTool, Content: res.Output, ToolCallID: res.CallID}
	if res.IsError {
		m.Content = "ERROR: " + res.Output
	}
	return m
}

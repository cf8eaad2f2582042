package core

// ToolName identifies one entry of the fixed tool catalog. The set is closed:
// unknown names are rejected at workflow-validation or parse time, never
// looked up at execution time.
type ToolName string

const (
	ToolFSRead        ToolName = "tool_forge_fs_read"
	ToolFSCreate      ToolName = "tool_forge_fs_create"
	ToolFSRemove      ToolName = "tool_forge_fs_remove"
	ToolFSSearch      ToolName = "tool_forge_fs_search"
	ToolFSList        ToolName = "tool_forge_fs_list"
	ToolFSInfo        ToolName = "tool_forge_fs_info"
	ToolApplyPatch    ToolName = "tool_forge_apply_patch"
	ToolProcessShell  ToolName = "tool_forge_process_shell"
	ToolNetFetch      ToolName = "tool_forge_net_fetch"
	ToolEventDispatch ToolName = "tool_forge_event_dispatch"
	ToolThink         ToolName = "tool_forge_think"
)

// toolNames lists the catalog in a stable order used for prompts and docs.
var toolNames = []ToolName{
	ToolFSRead,
	ToolFSCreate,
	ToolFSRemove,
	ToolFSSearch,
	ToolFSList,
	ToolFSInfo,
	ToolApplyPatch,
	ToolProcessShell,
	ToolNetFetch,
	ToolEventDispatch,
	ToolThink,
}

// readOnlyTools is the subset usable while the session is in PLAN mode.
var readOnlyTools = map[ToolName]bool{
	ToolFSRead:        true,
	ToolFSSearch:      true,
	ToolFSList:        true,
	ToolFSInfo:        true,
	ToolNetFetch:      true,
	ToolEventDispatch: true,
	ToolThink:         true,
}

// ToolNames returns the full catalog in declaration order.
func ToolNames() []ToolName {
	out := make([]ToolName, len(toolNames))
	copy(out, toolNames)
	return out
}

// ParseToolName resolves s against the catalog.
func ParseToolName(s string) (ToolName, bool) {
	for _, n := range toolNames {
		if string(n) == s {
			return n, true
		}
	}
	return "", false
}

// String returns the wire form of the tool name.
func (n ToolName) String() string { return string(n) }

// ReadOnly reports whether the tool only inspects state. Read-only tools stay
// available in PLAN mode; everything else is gated.
func (n ToolName) ReadOnly() bool { return readOnlyTools[n] }

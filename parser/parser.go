// Package parser extracts tool invocations from assistant replies. Two
// protocols are supported: structured calls returned natively by the
// provider, and an inline tagged-text form for models without native tool
// calling, where a call is written as
//
//	<tool_forge_fs_read><path>main.go</path></tool_forge_fs_read>
//
// A turn carries at most one invocation. When a reply holds several, only
// the first is honored and the rest are discarded with a warning.
package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/forgeworks/forge/core"
	"github.com/forgeworks/forge/logging"
	"github.com/forgeworks/forge/model"
	"github.com/forgeworks/forge/tool"
)

// Parser turns provider replies into tool calls.
type Parser struct {
	logger logging.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger used for discarded-call warnings.
func WithLogger(l logging.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// New returns a Parser.
func New(opts ...Option) *Parser {
	p := &Parser{logger: logging.NoOpLogger{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts the single honored tool call from a reply, or nil when the
// reply is plain prose. toolSupported selects the protocol: structured calls
// when true, inline tagged text when false.
//
// A malformed structured call is a provider fault and returns
// *core.ProviderError. A recognizable but incomplete inline call returns
// *core.ParseError, which callers feed back to the model as corrective
// guidance.
func (p *Parser) Parse(reply *model.Reply, toolSupported bool) (*core.ToolCall, error) {
	if toolSupported {
		return p.parseNative(reply)
	}
	return p.parseInline(reply.Content)
}

func (p *Parser) parseNative(reply *model.Reply) (*core.ToolCall, error) {
	if len(reply.ToolCalls) == 0 {
		return nil, nil
	}
	if len(reply.ToolCalls) > 1 {
		p.logger.Warn("parser.calls.discarded",
			"honored", reply.ToolCalls[0].Name,
			"discarded", len(reply.ToolCalls)-1)
	}
	payload := reply.ToolCalls[0]

	name, ok := core.ParseToolName(payload.Name)
	if !ok {
		// Let the availability check downstream produce the feedback.
		name = core.ToolName(payload.Name)
	}
	params, err := decodeArguments(payload.Arguments)
	if err != nil {
		return nil, &core.ProviderError{
			Provider: "tool_call",
			Err:      fmt.Errorf("malformed arguments for %s: %w", payload.Name, err),
		}
	}
	callID := payload.ID
	if callID == "" {
		callID = uuid.NewString()
	}
	return &core.ToolCall{CallID: callID, ToolName: name, Parameters: params}, nil
}

// decodeArguments flattens a JSON argument object into string parameters.
// Non-string scalars are stringified; nested values keep their JSON form.
func decodeArguments(raw string) (map[string]string, error) {
	params := map[string]string{}
	if strings.TrimSpace(raw) == "" {
		return params, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, err
	}
	for k, v := range obj {
		switch val := v.(type) {
		case string:
			params[k] = val
		case nil:
			params[k] = ""
		case float64, bool:
			params[k] = fmt.Sprintf("%v", val)
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return nil, err
			}
			params[k] = string(b)
		}
	}
	return params, nil
}

func (p *Parser) parseInline(content string) (*core.ToolCall, error) {
	var honored *core.ToolCall
	pos := 0
	for {
		name, body, next, found := nextTag(content, pos)
		if !found {
			break
		}
		pos = next

		toolName, known := core.ParseToolName(name)
		if !known {
			// Unknown top-level tags are prose, not failed calls.
			continue
		}
		if honored != nil {
			p.logger.Warn("parser.calls.discarded", "honored", honored.ToolName, "discarded_tool", toolName)
			continue
		}
		call, err := p.parseInlineCall(toolName, body)
		if err != nil {
			return nil, err
		}
		honored = call
	}
	return honored, nil
}

// parseInlineCall decodes the body of a recognized tool tag and validates it
// against the catalog schema.
func (p *Parser) parseInlineCall(name core.ToolName, body string) (*core.ToolCall, error) {
	params := map[string]string{}
	pos := 0
	for {
		pname, pbody, next, found := nextTag(body, pos)
		if !found {
			break
		}
		params[pname] = strings.TrimSpace(pbody)
		pos = next
	}

	if def, ok := tool.Lookup(name); ok {
		for _, req := range def.RequiredParams() {
			if _, present := params[req]; !present {
				return nil, &core.ParseError{
					Tool:   name,
					Reason: fmt.Sprintf("missing required parameter %q", req),
				}
			}
		}
	}
	return &core.ToolCall{CallID: uuid.NewString(), ToolName: name, Parameters: params}, nil
}

// nextTag finds the next well-formed <name>...</name> pair at or after from.
// It returns the tag name, the inner text, and the index just past the
// closing tag. Open tags without a matching close are skipped.
func nextTag(s string, from int) (name, inner string, end int, found bool) {
	for i := from; i < len(s); {
		open := strings.Index(s[i:], "<")
		if open < 0 {
			return "", "", 0, false
		}
		start := i + open
		gt := strings.Index(s[start:], ">")
		if gt < 0 {
			return "", "", 0, false
		}
		name = s[start+1 : start+gt]
		if !validTagName(name) {
			i = start + 1
			continue
		}
		bodyStart := start + gt + 1
		closing := "</" + name + ">"
		closeIdx := strings.Index(s[bodyStart:], closing)
		if closeIdx < 0 {
			i = bodyStart
			continue
		}
		return name, s[bodyStart : bodyStart+closeIdx], bodyStart + closeIdx + len(closing), true
	}
	return "", "", 0, false
}

func validTagName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}

// FormatCall renders a call in the inline tagged form, the exact text a
// model without native tool support is asked to produce. Parameters render
// in catalog order so output is deterministic.
func FormatCall(call core.ToolCall) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<%s>", call.ToolName)
	if def, ok := tool.Lookup(call.ToolName); ok {
		for _, p := range def.Params {
			if v, present := call.Parameters[p.Name]; present {
				fmt.Fprintf(&b, "<%s>%s</%s>", p.Name, v, p.Name)
			}
		}
	} else {
		for k, v := range call.Parameters {
			fmt.Fprintf(&b, "<%s>%s</%s>", k, v, k)
		}
	}
	fmt.Fprintf(&b, "</%s>", call.ToolName)
	return b.String()
}

// Package anthropic implements model.Provider on the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/forgeworks/forge/core"
	"github.com/forgeworks/forge/model"
)

// Options configure the adapter.
type Options struct {
	APIKey      string
	Temperature float64
	MaxTokens   int64
}

// Provider wraps the Anthropic Messages API behind model.Provider.
type Provider struct {
	client *anthropic.Client
	opts   Options
}

// New creates a Provider using the official client.
func New(optFns ...func(o *Options)) *Provider {
	opts := Options{
		Temperature: 0.7,
		MaxTokens:   8192,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Provider{client: &client, opts: opts}
}

// Complete performs a single non-streaming message request.
func (p *Provider) Complete(ctx context.Context, req model.Request) (*model.Reply, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		Messages:    buildMessages(req.Messages),
		MaxTokens:   p.opts.MaxTokens,
		Temperature: anthropic.Float(p.opts.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, &core.ProviderError{Provider: "anthropic", Err: err}
	}

	reply := &model.Reply{FinishReason: string(resp.StopReason)}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			reply.Content += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			args := ""
			if tu.Input != nil {
				if b, err := json.Marshal(tu.Input); err == nil {
					args = string(b)
				}
			}
			reply.ToolCalls = append(reply.ToolCalls, model.ToolCallPayload{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: args,
			})
		}
	}
	return reply, nil
}

// buildMessages converts conversation history into the Messages API format.
// Tool results attach as tool_result blocks on a user message, which is how
// the API expects them back.
func buildMessages(msgs []core.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, msg := range msgs {
		switch msg.Role {
		case core.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case core.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, c := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(c.CallID, c.Parameters, string(c.ToolName)))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case core.RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		}
	}
	return out
}

func buildTools(defs []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(defs))
	for i, def := range defs {
		schema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if def.Parameters != nil {
			if props, ok := def.Parameters["properties"]; ok {
				schema.Properties = props
			}
			if req, ok := def.Parameters["required"].([]string); ok {
				schema.Required = req
			}
		}
		out[i] = anthropic.ToolUnionParamOfTool(schema, def.Name)
	}
	return out
}

// Info returns metadata describing this adapter.
func (p *Provider) Info() model.Info {
	return model.Info{
		Name:          "messages",
		Provider:      "anthropic",
		SupportsTools: true,
	}
}

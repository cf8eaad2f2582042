// Package openai implements model.Provider on the OpenAI Chat Completions
// API. The same adapter serves every OpenAI-compatible endpoint the runtime
// can discover, including OpenRouter and the Forge gateway, by swapping the
// base URL.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/forgeworks/forge/core"
	"github.com/forgeworks/forge/model"
)

// Options configure the adapter. Fields mirror a subset of Chat Completion
// parameters intentionally kept minimal.
type Options struct {
	APIKey              string
	BaseURL             string
	Temperature         float64
	MaxCompletionTokens int64
	ProviderName        string
}

// Provider wraps the OpenAI Chat Completions API behind model.Provider.
type Provider struct {
	client *openai.Client
	opts   Options
}

// New creates a Provider using the official client.
func New(optFns ...func(o *Options)) *Provider {
	opts := Options{
		Temperature:         0.7,
		MaxCompletionTokens: 8192,
		ProviderName:        "openai",
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(clientOpts...)

	return &Provider{client: &client, opts: opts}
}

// Complete performs a single non-streaming chat completion.
func (p *Provider) Complete(ctx context.Context, req model.Request) (*model.Reply, error) {
	params := p.buildParams(req)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, &core.ProviderError{Provider: p.opts.ProviderName, Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &core.ProviderError{Provider: p.opts.ProviderName, Err: fmt.Errorf("no choices returned")}
	}

	choice := resp.Choices[0]
	reply := &model.Reply{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
	}
	for _, tc := range choice.Message.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, model.ToolCallPayload{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return reply, nil
}

func (p *Provider) buildParams(req model.Request) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case core.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case core.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Content))
				continue
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: convertToolCalls(msg.ToolCalls),
				},
			})
		case core.RoleTool:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               req.Model,
		Temperature:         openai.Float(p.opts.Temperature),
		MaxCompletionTokens: openai.Int(p.opts.MaxCompletionTokens),
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, def := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  def.Parameters,
			},
		}
	}
	params.Tools = tools
	return params
}

// convertToolCalls replays earlier structured calls back to the API. The
// argument object is rebuilt from the decoded parameter map.
func convertToolCalls(calls []core.ToolCall) []openai.ChatCompletionMessageToolCallParam {
	out := make([]openai.ChatCompletionMessageToolCallParam, len(calls))
	for i, c := range calls {
		args, err := json.Marshal(c.Parameters)
		if err != nil {
			args = []byte("{}")
		}
		out[i] = openai.ChatCompletionMessageToolCallParam{
			ID:   c.CallID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      string(c.ToolName),
				Arguments: string(args),
			},
		}
	}
	return out
}

// Info returns metadata describing this adapter.
func (p *Provider) Info() model.Info {
	return model.Info{
		Name:          "chat-completions",
		Provider:      p.opts.ProviderName,
		SupportsTools: true,
	}
}

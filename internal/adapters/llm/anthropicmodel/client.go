// Package anthropicmodel implements llm.Model on top of the Anthropic Claude
// Messages API via github.com/anthropics/anthropic-sdk-go.
package anthropicmodel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/deepresearch/agentrunner/internal/adapters/llm"
	"github.com/deepresearch/agentrunner/internal/agentloop"
)

// MessagesClient is the subset of the Anthropic SDK client the adapter uses,
// satisfied by *sdk.MessageService so tests can substitute a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Client implements llm.Model on top of Anthropic Claude.
type Client struct {
	msg       MessagesClient
	model     string
	maxTokens int

	mu        sync.Mutex
	lastUsage llm.Usage
}

// New builds a Client around an already-constructed Anthropic Messages
// client, a model identifier, and the default completion cap.
func New(msg MessagesClient, model string, maxTokens int) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropicmodel: messages client is required")
	}
	if model == "" {
		return nil, errors.New("anthropicmodel: model identifier is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{msg: msg, model: model, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a Client using the SDK's default HTTP
// transport, authenticated with apiKey.
func NewFromAPIKey(apiKey, model string, maxTokens int) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropicmodel: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Messages, model, maxTokens)
}

// Complete implements llm.Model.
func (c *Client) Complete(ctx context.Context, system string, messages []agentloop.Message, tools []agentloop.ToolSpec) (agentloop.Message, error) {
	params, err := c.prepareParams(system, messages, tools)
	if err != nil {
		return agentloop.Message{}, err
	}
	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return agentloop.Message{}, fmt.Errorf("anthropicmodel: messages.new: %w", err)
	}
	c.mu.Lock()
	c.lastUsage = llm.Usage{InputTokens: int(msg.Usage.InputTokens), OutputTokens: int(msg.Usage.OutputTokens)}
	c.mu.Unlock()
	return translateResponse(msg)
}

// StructuredPredict implements llm.Model by asking for a single text block
// constrained to the given schema via a tool with ToolChoice forced to it,
// then extracting the tool-call arguments as the structured result. Claude
// has no separate "JSON mode"; forcing a single-purpose tool call is the
// idiomatic way to obtain schema-conformant output.
func (c *Client) StructuredPredict(ctx context.Context, system string, messages []agentloop.Message, schema json.RawMessage) (json.RawMessage, error) {
	var schemaMap map[string]any
	if err := json.Unmarshal(schema, &schemaMap); err != nil {
		return nil, fmt.Errorf("anthropicmodel: invalid schema: %w", err)
	}

	const emitTool = "emit_result"
	params, err := c.prepareParams(system, messages, nil)
	if err != nil {
		return nil, err
	}
	params.Tools = []sdk.ToolUnionParam{
		sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: schemaMap}, emitTool),
	}
	choice := sdk.ToolChoiceParamOfTool(emitTool)
	params.ToolChoice = choice

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropicmodel: structured predict: %w", err)
	}
	c.mu.Lock()
	c.lastUsage = llm.Usage{InputTokens: int(msg.Usage.InputTokens), OutputTokens: int(msg.Usage.OutputTokens)}
	c.mu.Unlock()

	for _, block := range msg.Content {
		if block.Type == "tool_use" && block.Name == emitTool {
			return json.RawMessage(block.Input), nil
		}
	}
	return nil, errors.New("anthropicmodel: model did not emit the requested structured tool call")
}

// LastUsage implements llm.Model.
func (c *Client) LastUsage() llm.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsage
}

func (c *Client) prepareParams(system string, messages []agentloop.Message, tools []agentloop.ToolSpec) (sdk.MessageNewParams, error) {
	msgs, err := encodeMessages(messages)
	if err != nil {
		return sdk.MessageNewParams{}, err
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages:  msgs,
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		encoded, err := encodeTools(tools)
		if err != nil {
			return sdk.MessageNewParams{}, err
		}
		params.Tools = encoded
	}
	return params, nil
}

func encodeMessages(messages []agentloop.Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case agentloop.RoleSystem:
			continue // system content is carried separately in params.System
		case agentloop.RoleUser:
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case agentloop.RoleAssistant:
			blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if len(tc.Arguments) > 0 {
					if err := json.Unmarshal(tc.Arguments, &input); err != nil {
						return nil, fmt.Errorf("anthropicmodel: tool call %q arguments: %w", tc.Name, err)
					}
				}
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, sdk.NewAssistantMessage(blocks...))
			}
		case agentloop.RoleTool:
			out = append(out, sdk.NewUserMessage(sdk.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		default:
			return nil, fmt.Errorf("anthropicmodel: unsupported role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("anthropicmodel: at least one user/assistant message is required")
	}
	return out, nil
}

func encodeTools(specs []agentloop.ToolSpec) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(specs))
	for _, s := range specs {
		var schemaMap map[string]any
		if len(s.ParametersSchema) > 0 {
			if err := json.Unmarshal(s.ParametersSchema, &schemaMap); err != nil {
				return nil, fmt.Errorf("anthropicmodel: tool %q schema: %w", s.Name, err)
			}
		}
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: schemaMap}, s.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(s.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func translateResponse(msg *sdk.Message) (agentloop.Message, error) {
	if msg == nil {
		return agentloop.Message{}, errors.New("anthropicmodel: nil response")
	}
	out := agentloop.Message{Role: agentloop.RoleAssistant}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, agentloop.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: json.RawMessage(block.Input),
			})
		}
	}
	return out, nil
}

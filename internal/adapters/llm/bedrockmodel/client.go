// Package bedrockmodel implements llm.Model on top of the AWS Bedrock
// Converse API via github.com/aws/aws-sdk-go-v2/service/bedrockruntime.
package bedrockmodel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/deepresearch/agentrunner/internal/adapters/llm"
	"github.com/deepresearch/agentrunner/internal/agentloop"
)

// RuntimeClient is the subset of the Bedrock runtime client the adapter
// uses, satisfied by *bedrockruntime.Client so tests can substitute a fake.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client implements llm.Model on top of AWS Bedrock Converse.
type Client struct {
	runtime   RuntimeClient
	model     string
	maxTokens int
	lastUsage llm.Usage
}

// New builds a Client around an already-constructed Bedrock runtime client.
func New(runtime RuntimeClient, model string, maxTokens int) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrockmodel: runtime client is required")
	}
	if model == "" {
		return nil, errors.New("bedrockmodel: model identifier is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{runtime: runtime, model: model, maxTokens: maxTokens}, nil
}

// Complete implements llm.Model.
func (c *Client) Complete(ctx context.Context, system string, messages []agentloop.Message, tools []agentloop.ToolSpec) (agentloop.Message, error) {
	input, err := c.prepareInput(system, messages, tools)
	if err != nil {
		return agentloop.Message{}, err
	}
	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return agentloop.Message{}, fmt.Errorf("bedrockmodel: converse: %w", err)
	}
	c.lastUsage = usageFrom(out)
	return translateOutput(out)
}

// StructuredPredict implements llm.Model by forcing a single tool with the
// given schema and ToolChoice, mirroring the Anthropic adapter's approach —
// Bedrock Converse has no separate JSON mode either.
func (c *Client) StructuredPredict(ctx context.Context, system string, messages []agentloop.Message, schema json.RawMessage) (json.RawMessage, error) {
	var schemaDoc map[string]any
	if err := json.Unmarshal(schema, &schemaDoc); err != nil {
		return nil, fmt.Errorf("bedrockmodel: invalid schema: %w", err)
	}
	const emitTool = "emit_result"

	input, err := c.prepareInput(system, messages, nil)
	if err != nil {
		return nil, err
	}
	input.ToolConfig = &brtypes.ToolConfiguration{
		Tools: []brtypes.Tool{
			&brtypes.ToolMemberToolSpec{
				Value: brtypes.ToolSpecification{
					Name:        aws.String(emitTool),
					Description: aws.String("Emit the structured result."),
					InputSchema: &brtypes.ToolInputSchemaMemberJson{
						Value: document.NewLazyDocument(schemaDoc),
					},
				},
			},
		},
		ToolChoice: &brtypes.ToolChoiceMemberTool{
			Value: brtypes.SpecificToolChoice{Name: aws.String(emitTool)},
		},
	}

	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrockmodel: structured predict: %w", err)
	}
	c.lastUsage = usageFrom(out)

	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return nil, errors.New("bedrockmodel: converse response missing message output")
	}
	for _, block := range msg.Value.Content {
		if use, ok := block.(*brtypes.ContentBlockMemberToolUse); ok && aws.ToString(use.Value.Name) == emitTool {
			var v any
			if err := use.Value.Input.UnmarshalSmithyDocument(&v); err != nil {
				return nil, fmt.Errorf("bedrockmodel: decoding structured tool input: %w", err)
			}
			return json.Marshal(v)
		}
	}
	return nil, errors.New("bedrockmodel: model did not emit the requested structured tool call")
}

// LastUsage implements llm.Model.
func (c *Client) LastUsage() llm.Usage { return c.lastUsage }

func (c *Client) prepareInput(system string, messages []agentloop.Message, tools []agentloop.ToolSpec) (*bedrockruntime.ConverseInput, error) {
	msgs, err := encodeMessages(messages)
	if err != nil {
		return nil, err
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(c.model),
		Messages: msgs,
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(c.maxTokens)),
		},
	}
	if system != "" {
		input.System = []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: system},
		}
	}
	if len(tools) > 0 {
		toolCfg, err := encodeTools(tools)
		if err != nil {
			return nil, err
		}
		input.ToolConfig = toolCfg
	}
	return input, nil
}

func encodeMessages(messages []agentloop.Message) ([]brtypes.Message, error) {
	out := make([]brtypes.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case agentloop.RoleSystem:
			continue
		case agentloop.RoleUser:
			out = append(out, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		case agentloop.RoleAssistant:
			blocks := make([]brtypes.ContentBlock, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: m.Content})
			}
			for _, tc := range m.ToolCalls {
				var input any
				if len(tc.Arguments) > 0 {
					if err := json.Unmarshal(tc.Arguments, &input); err != nil {
						return nil, fmt.Errorf("bedrockmodel: tool call %q arguments: %w", tc.Name, err)
					}
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{
					Value: brtypes.ToolUseBlock{
						ToolUseId: aws.String(tc.ID),
						Name:      aws.String(tc.Name),
						Input:     document.NewLazyDocument(input),
					},
				})
			}
			if len(blocks) > 0 {
				out = append(out, brtypes.Message{Role: brtypes.ConversationRoleAssistant, Content: blocks})
			}
		case agentloop.RoleTool:
			out = append(out, brtypes.Message{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberToolResult{
						Value: brtypes.ToolResultBlock{
							ToolUseId: aws.String(m.ToolCallID),
							Content: []brtypes.ToolResultContentBlock{
								&brtypes.ToolResultContentBlockMemberText{Value: m.Content},
							},
						},
					},
				},
			})
		default:
			return nil, fmt.Errorf("bedrockmodel: unsupported role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("bedrockmodel: at least one user/assistant message is required")
	}
	return out, nil
}

func encodeTools(specs []agentloop.ToolSpec) (*brtypes.ToolConfiguration, error) {
	tools := make([]brtypes.Tool, 0, len(specs))
	for _, s := range specs {
		var schemaDoc map[string]any
		if len(s.ParametersSchema) > 0 {
			if err := json.Unmarshal(s.ParametersSchema, &schemaDoc); err != nil {
				return nil, fmt.Errorf("bedrockmodel: tool %q schema: %w", s.Name, err)
			}
		}
		tools = append(tools, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(s.Name),
				Description: aws.String(s.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schemaDoc)},
			},
		})
	}
	return &brtypes.ToolConfiguration{Tools: tools}, nil
}

func translateOutput(out *bedrockruntime.ConverseOutput) (agentloop.Message, error) {
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return agentloop.Message{}, errors.New("bedrockmodel: converse response missing message output")
	}
	result := agentloop.Message{Role: agentloop.RoleAssistant}
	for _, block := range msg.Value.Content {
		switch b := block.(type) {
		case *brtypes.ContentBlockMemberText:
			result.Content += b.Value
		case *brtypes.ContentBlockMemberToolUse:
			var v any
			_ = b.Value.Input.UnmarshalSmithyDocument(&v)
			args, _ := json.Marshal(v)
			result.ToolCalls = append(result.ToolCalls, agentloop.ToolCall{
				ID:        aws.ToString(b.Value.ToolUseId),
				Name:      aws.ToString(b.Value.Name),
				Arguments: args,
			})
		}
	}
	return result, nil
}

func usageFrom(out *bedrockruntime.ConverseOutput) llm.Usage {
	if out == nil || out.Usage == nil {
		return llm.Usage{}
	}
	return llm.Usage{
		InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
		OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
	}
}

// Package openaimodel implements llm.Model on top of the OpenAI Chat
// Completions API via github.com/sashabaranov/go-openai.
package openaimodel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/deepresearch/agentrunner/internal/adapters/llm"
	"github.com/deepresearch/agentrunner/internal/agentloop"
)

// ChatClient is the subset of the go-openai client the adapter uses,
// satisfied by *openai.Client so tests can substitute a fake.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client implements llm.Model on top of OpenAI Chat Completions.
type Client struct {
	chat      ChatClient
	model     string
	maxTokens int
	lastUsage llm.Usage
}

// New builds a Client around an already-constructed go-openai client.
func New(chat ChatClient, model string, maxTokens int) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openaimodel: chat client is required")
	}
	if model == "" {
		return nil, errors.New("openaimodel: model identifier is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{chat: chat, model: model, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a Client using go-openai's default HTTP client.
func NewFromAPIKey(apiKey, model string, maxTokens int) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openaimodel: api key is required")
	}
	return New(openai.NewClient(apiKey), model, maxTokens)
}

// Complete implements llm.Model.
func (c *Client) Complete(ctx context.Context, system string, messages []agentloop.Message, tools []agentloop.ToolSpec) (agentloop.Message, error) {
	req, err := c.prepareRequest(system, messages, tools)
	if err != nil {
		return agentloop.Message{}, err
	}
	resp, err := c.chat.CreateChatCompletion(ctx, req)
	if err != nil {
		return agentloop.Message{}, fmt.Errorf("openaimodel: create chat completion: %w", err)
	}
	c.lastUsage = llm.Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}
	return translateResponse(resp)
}

// StructuredPredict implements llm.Model using OpenAI's native JSON-schema
// response format, the idiomatic way to request schema-conformant output
// from the Chat Completions API.
func (c *Client) StructuredPredict(ctx context.Context, system string, messages []agentloop.Message, schema json.RawMessage) (json.RawMessage, error) {
	req, err := c.prepareRequest(system, messages, nil)
	if err != nil {
		return nil, err
	}
	req.ResponseFormat = &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   "structured_result",
			Schema: json.RawMessage(schema),
			Strict: true,
		},
	}

	resp, err := c.chat.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openaimodel: structured predict: %w", err)
	}
	c.lastUsage = llm.Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openaimodel: structured predict returned no choices")
	}
	return json.RawMessage(resp.Choices[0].Message.Content), nil
}

// LastUsage implements llm.Model.
func (c *Client) LastUsage() llm.Usage { return c.lastUsage }

func (c *Client) prepareRequest(system string, messages []agentloop.Message, tools []agentloop.ToolSpec) (openai.ChatCompletionRequest, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		switch m.Role {
		case agentloop.RoleSystem:
			continue
		case agentloop.RoleUser:
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case agentloop.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			msgs = append(msgs, oaiMsg)
		case agentloop.RoleTool:
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		default:
			return openai.ChatCompletionRequest{}, fmt.Errorf("openaimodel: unsupported role %q", m.Role)
		}
	}
	if len(msgs) == 0 {
		return openai.ChatCompletionRequest{}, errors.New("openaimodel: at least one message is required")
	}

	req := openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  msgs,
		MaxTokens: c.maxTokens,
	}
	if len(tools) > 0 {
		req.Tools = make([]openai.Tool, 0, len(tools))
		for _, s := range tools {
			var schemaMap map[string]any
			if len(s.ParametersSchema) > 0 {
				if err := json.Unmarshal(s.ParametersSchema, &schemaMap); err != nil {
					return openai.ChatCompletionRequest{}, fmt.Errorf("openaimodel: tool %q schema: %w", s.Name, err)
				}
			}
			req.Tools = append(req.Tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        s.Name,
					Description: s.Description,
					Parameters:  schemaMap,
				},
			})
		}
	}
	return req, nil
}

func translateResponse(resp openai.ChatCompletionResponse) (agentloop.Message, error) {
	if len(resp.Choices) == 0 {
		return agentloop.Message{}, errors.New("openaimodel: response had no choices")
	}
	choice := resp.Choices[0].Message
	out := agentloop.Message{Role: agentloop.RoleAssistant, Content: choice.Content}
	for _, tc := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, agentloop.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

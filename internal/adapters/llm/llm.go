// Package llm declares the model-provider capability (C8) the agent loop is
// built against. Concrete adapters (anthropicmodel, openaimodel, bedrockmodel)
// implement Model; gateway composes them behind a single routable Model.
package llm

import (
	"context"
	"encoding/json"

	"github.com/deepresearch/agentrunner/internal/agentloop"
)

type (
	// Model is the capability every LLM adapter implements: free-form
	// tool-calling completion, and schema-constrained structured prediction
	// used by the planner (§4.7's PlannerAgentOutput).
	//
	// Complete's signature matches agentloop.Model exactly so any Model here
	// satisfies agentloop.Loop.Model by structural typing without agentloop
	// importing this package (that import would run the other direction and
	// cycle back through agentloop.Message/ToolSpec).
	Model interface {
		// Complete requests a single assistant turn given the conversation
		// history and the tools currently in scope. Returns the assistant
		// message (which may carry ToolCalls).
		Complete(ctx context.Context, system string, messages []agentloop.Message, tools []agentloop.ToolSpec) (agentloop.Message, error)

		// StructuredPredict requests a single JSON object conforming to
		// schema. Adapters that support native structured output use it;
		// others fall back to prompting plus schema validation and retry.
		StructuredPredict(ctx context.Context, system string, messages []agentloop.Message, schema json.RawMessage) (json.RawMessage, error)

		// LastUsage reports token accounting for the most recent call, for
		// cost and budget tracking. Adapters that cannot report per-call
		// usage return a zero Usage.
		LastUsage() Usage
	}

	// Usage reports token accounting for cost and budget tracking.
	Usage struct {
		InputTokens  int
		OutputTokens int
	}
)

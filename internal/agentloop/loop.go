package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/deepresearch/agentrunner/internal/rerr"
	"github.com/deepresearch/agentrunner/internal/telemetry"
)

type (
	// Model is the subset of the LLM capability the loop drives. Declared
	// here (rather than imported from adapters/llm) to keep agentloop free
	// of a dependency on the concrete adapter package; adapters/llm.Model
	// satisfies it structurally.
	Model interface {
		Complete(ctx context.Context, system string, messages []Message, tools []ToolSpec) (Message, error)
	}

	// SystemPromptFn renders the "hot" system prompt from live state ahead
	// of every model call (§4.3's take_step/prepare_step hook). Agents pass
	// a closure over their own state rather than a fixed string, so the
	// prompt always reflects the latest plan, evidence, and draft.
	SystemPromptFn func(ctx context.Context) (string, error)

	// Loop drives one agent's tool-calling ReAct cycle: render prompt, call
	// the model, execute any requested tools, append results, repeat until
	// a return-direct tool fires, the model stops requesting tools, or the
	// iteration limit is reached.
	Loop struct {
		Model          Model
		Tools          *Registry
		SystemPrompt   SystemPromptFn
		History        *History
		MaxIterations  int
		Logger         telemetry.Logger
		// OnToolCall, when set, is invoked after each tool executes
		// (successfully or not) for event-stream publication.
		OnToolCall func(call ToolCall, result ToolResult)
	}

	// Outcome is the terminal state of a Run call.
	Outcome struct {
		// Final is the last assistant-authored message (if any).
		Final Message
		// ReturnDirectTool names the tool that ended the loop via
		// ReturnDirect, empty if the loop ended because the model stopped
		// requesting tools or the iteration cap was hit.
		ReturnDirectTool string
		// Iterations is the number of model calls made.
		Iterations int
	}
)

// Run drives the loop to completion or failure. input is appended to history
// as a user message before the first model call, unless empty.
func (l *Loop) Run(ctx context.Context, input string) (Outcome, error) {
	if l.MaxIterations <= 0 {
		l.MaxIterations = 25
	}
	if l.Logger == nil {
		l.Logger = telemetry.NewNoopLogger()
	}
	if input != "" {
		l.History.Append(Message{Role: RoleUser, Content: input})
	}

	for iter := 1; iter <= l.MaxIterations; iter++ {
		select {
		case <-ctx.Done():
			return Outcome{Iterations: iter - 1}, rerr.Wrap(rerr.Cancelled, "agent loop cancelled", ctx.Err())
		default:
		}

		system, err := l.SystemPrompt(ctx)
		if err != nil {
			return Outcome{Iterations: iter - 1}, rerr.Wrap(rerr.LLMError, "system prompt render failed", err)
		}

		msg, err := l.Model.Complete(ctx, system, l.History.Messages(), l.Tools.Specs())
		if err != nil {
			return Outcome{Iterations: iter}, rerr.Wrap(rerr.LLMError, "model completion failed", err)
		}
		l.History.Append(msg)

		if len(msg.ToolCalls) == 0 {
			return Outcome{Final: msg, Iterations: iter}, nil
		}

		executions := make([]toolExecution, len(msg.ToolCalls))
		var wg sync.WaitGroup
		for i, call := range msg.ToolCalls {
			wg.Add(1)
			go func(i int, call ToolCall) {
				defer wg.Done()
				result, direct, terminalErr := l.executeTool(ctx, call)
				executions[i] = toolExecution{call: call, result: result, direct: direct, terminalErr: terminalErr}
			}(i, call)
		}
		wg.Wait()

		returnDirect := ""
		var terminalErr error
		for _, ex := range executions {
			if ex.terminalErr != nil {
				if terminalErr == nil {
					terminalErr = ex.terminalErr
				}
				continue
			}
			l.History.Append(Message{
				Role:       RoleTool,
				Content:    ex.result.Content,
				ToolCallID: ex.result.ToolCallID,
				ToolName:   ex.result.ToolName,
			})
			if l.OnToolCall != nil {
				l.OnToolCall(ex.call, ex.result)
			}
			if ex.direct {
				returnDirect = ex.call.Name
			}
		}
		if terminalErr != nil {
			return Outcome{Iterations: iter}, terminalErr
		}

		if returnDirect != "" {
			return Outcome{Final: msg, ReturnDirectTool: returnDirect, Iterations: iter}, nil
		}
	}

	return Outcome{Iterations: l.MaxIterations}, rerr.New(rerr.IterationLimitExceeded,
		fmt.Sprintf("agent loop exceeded %d iterations", l.MaxIterations))
}

// toolExecution holds the outcome of one concurrently-dispatched tool call,
// indexed by its position in the originating message's ToolCalls so results
// can be folded back into History in original order once every call in the
// turn has finished.
type toolExecution struct {
	call        ToolCall
	result      ToolResult
	direct      bool
	terminalErr error
}

// executeTool looks up and runs a single tool call, returning whether it was
// a return-direct tool. A terminal error (rerr.Kind.Terminal()) is returned
// as the third value and propagates out of Run; an ordinary tool failure is
// instead folded into the ToolResult as an error message for the model to
// see and react to.
func (l *Loop) executeTool(ctx context.Context, call ToolCall) (ToolResult, bool, error) {
	tool, ok := l.Tools.Lookup(call.Name)
	if !ok {
		return ToolResult{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Content:    fmt.Sprintf("error: unknown tool %q", call.Name),
			IsError:    true,
		}, false, nil
	}

	out, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		if k := rerr.KindOf(err); k.Terminal() {
			return ToolResult{}, false, err
		}
		return ToolResult{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Content:    fmt.Sprintf("error: %s", err.Error()),
			IsError:    true,
		}, false, nil
	}

	return ToolResult{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Content:    string(out),
	}, tool.Spec().ReturnDirect, nil
}

// StructuredPredictor is implemented by models that support schema-constrained
// prediction (the Planner's structured output path, §4.7).
type StructuredPredictor interface {
	StructuredPredict(ctx context.Context, system string, messages []Message, schema json.RawMessage) (json.RawMessage, error)
}

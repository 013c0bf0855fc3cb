package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deepresearch/agentrunner/internal/rerr"
)

// scriptedLoopModel replays a fixed sequence of Messages, one per Complete
// call: first a tool-calling turn, then a plain turn that ends the loop.
type scriptedLoopModel struct {
	turns []Message
	calls int
}

func (m *scriptedLoopModel) Complete(ctx context.Context, system string, messages []Message, tools []ToolSpec) (Message, error) {
	msg := m.turns[m.calls]
	if m.calls < len(m.turns)-1 {
		m.calls++
	}
	return msg, nil
}

// waitWithTimeout reports whether wg finished within d, rather than hanging
// the test forever if a regression reintroduces sequential dispatch.
func waitWithTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

// TestRunDispatchesToolCallsConcurrently asserts that when one LLM turn
// requests multiple tool calls, every call starts before any of them is
// allowed to finish (a two-party rendezvous barrier that only clears under
// concurrent execution), and that the resulting tool messages are appended
// to History in the original call order regardless of which call actually
// finishes first.
func TestRunDispatchesToolCallsConcurrently(t *testing.T) {
	var barrier sync.WaitGroup
	barrier.Add(2)

	var orderMu sync.Mutex
	var startOrder []string

	rendezvous := func(name string) error {
		orderMu.Lock()
		startOrder = append(startOrder, name)
		orderMu.Unlock()
		barrier.Done()
		if !waitWithTimeout(&barrier, 2*time.Second) {
			return errors.New("sibling tool call never started: dispatch is not concurrent")
		}
		return nil
	}

	slow := ToolFunc{
		ToolSpec: ToolSpec{Name: "slow"},
		Fn: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			if err := rendezvous("slow"); err != nil {
				return nil, err
			}
			time.Sleep(20 * time.Millisecond)
			return json.RawMessage(`"slow-done"`), nil
		},
	}
	fast := ToolFunc{
		ToolSpec: ToolSpec{Name: "fast"},
		Fn: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			if err := rendezvous("fast"); err != nil {
				return nil, err
			}
			return json.RawMessage(`"fast-done"`), nil
		},
	}

	model := &scriptedLoopModel{turns: []Message{
		{
			Role: RoleAssistant,
			ToolCalls: []ToolCall{
				{ID: "1", Name: "slow"},
				{ID: "2", Name: "fast"},
			},
		},
		{Role: RoleAssistant, Content: "done"},
	}}

	loop := &Loop{
		Model:         model,
		Tools:         NewRegistry(slow, fast),
		SystemPrompt:  func(ctx context.Context) (string, error) { return "system", nil },
		History:       NewHistory(),
		MaxIterations: 5,
	}

	outcome, err := loop.Run(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "done", outcome.Final.Content)
	require.ElementsMatch(t, []string{"slow", "fast"}, startOrder)

	msgs := loop.History.Messages()
	var toolMsgs []Message
	for _, m := range msgs {
		if m.Role == RoleTool {
			toolMsgs = append(toolMsgs, m)
		}
	}
	require.Len(t, toolMsgs, 2)
	require.Equal(t, "1", toolMsgs[0].ToolCallID)
	require.Equal(t, `"slow-done"`, toolMsgs[0].Content)
	require.Equal(t, "2", toolMsgs[1].ToolCallID)
	require.Equal(t, `"fast-done"`, toolMsgs[1].Content)
}

// TestRunPropagatesTerminalToolError asserts a terminal rerr.Kind aborts the
// loop even when it arrives alongside a non-terminal sibling call.
func TestRunPropagatesTerminalToolError(t *testing.T) {
	ok := ToolFunc{
		ToolSpec: ToolSpec{Name: "ok"},
		Fn: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			return json.RawMessage(`"ok"`), nil
		},
	}
	fatal := ToolFunc{
		ToolSpec: ToolSpec{Name: "fatal"},
		Fn: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			return nil, rerr.New(rerr.Invariant, "fatal tool error")
		},
	}

	model := &scriptedLoopModel{turns: []Message{
		{
			Role: RoleAssistant,
			ToolCalls: []ToolCall{
				{ID: "1", Name: "ok"},
				{ID: "2", Name: "fatal"},
			},
		},
	}}

	loop := &Loop{
		Model:         model,
		Tools:         NewRegistry(ok, fatal),
		SystemPrompt:  func(ctx context.Context) (string, error) { return "system", nil },
		History:       NewHistory(),
		MaxIterations: 5,
	}

	_, err := loop.Run(context.Background(), "")
	require.Error(t, err)
	require.Equal(t, rerr.Invariant, rerr.KindOf(err))
}

package searcher

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepresearch/agentrunner/internal/adapters/search"
	"github.com/deepresearch/agentrunner/internal/adapters/tokencount"
	"github.com/deepresearch/agentrunner/internal/agentloop"
	"github.com/deepresearch/agentrunner/internal/eventctx"
)

// scriptedMainModel replays a fixed sequence of tool-calling assistant turns.
type scriptedMainModel struct {
	turns []agentloop.Message
	calls int
}

func (m *scriptedMainModel) Complete(ctx context.Context, system string, messages []agentloop.Message, tools []agentloop.ToolSpec) (agentloop.Message, error) {
	if m.calls >= len(m.turns) {
		return agentloop.Message{Role: agentloop.RoleAssistant, Content: "stopping"}, nil
	}
	msg := m.turns[m.calls]
	m.calls++
	return msg, nil
}

func rawArgs(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func TestSearcherAgentRunFullTurn(t *testing.T) {
	main := &scriptedMainModel{turns: []agentloop.Message{
		{
			Role: agentloop.RoleAssistant,
			ToolCalls: []agentloop.ToolCall{
				{ID: "1", Name: "plan_search_queries", Arguments: rawArgs(planSearchQueriesArgs{Query: "find evidence about X"})},
			},
		},
		{
			Role: agentloop.RoleAssistant,
			ToolCalls: []agentloop.ToolCall{
				{ID: "2", Name: "web_search", Arguments: rawArgs(webSearchArgs{Query: "evidence about X"})},
			},
		},
		{
			Role: agentloop.RoleAssistant,
			ToolCalls: []agentloop.ToolCall{
				{ID: "3", Name: "generate_evidences", Arguments: rawArgs(generateEvidencesArgs{
					URLs:      []string{"https://a.example/doc"},
					Directive: "find evidence about X",
				})},
			},
		},
		{
			Role:    agentloop.RoleAssistant,
			Content: "Finalizing now.",
			ToolCalls: []agentloop.ToolCall{
				{ID: "4", Name: "finalize_research", Arguments: json.RawMessage(`{}`)},
			},
		},
	}}

	weak := &fakeWeakModel{insights: []string{"insight one", "insight two", "insight three"}}

	agent := New(Config{
		MainModel: main,
		WeakModel: weak,
		Search:    &googleFixture{hits: []search.Result{{Title: "t", URL: "https://a.example/doc", Snippet: "s"}}},
		Fetch:     &fakeFetcher{bodies: map[string][]byte{"https://a.example/doc": []byte("doc body")}},
		Files:     &fakeFileStore{},
		Parser:    &fakeParser{},
		Tokens:    tokencount.New(),
	})

	rc := eventctx.New(nil, 4)
	report, err := agent.Run(context.Background(), rc, "find evidence about X")
	require.NoError(t, err)
	require.Equal(t, "Finalizing now.", report)
}

package writer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepresearch/agentrunner/internal/agentloop"
	"github.com/deepresearch/agentrunner/internal/eventctx"
	"github.com/deepresearch/agentrunner/internal/orchestrator"
)

// scriptedModel replays a fixed sequence of assistant turns, one per call to
// Complete, ignoring the rendered system prompt and history contents.
type scriptedModel struct {
	turns []agentloop.Message
	calls int
}

func (m *scriptedModel) Complete(ctx context.Context, system string, messages []agentloop.Message, tools []agentloop.ToolSpec) (agentloop.Message, error) {
	if m.calls >= len(m.turns) {
		return agentloop.Message{Role: agentloop.RoleAssistant, Content: "done"}, nil
	}
	msg := m.turns[m.calls]
	m.calls++
	return msg, nil
}

func toolCallArgs(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func TestWriterAgentAppliesPatchThenFinishes(t *testing.T) {
	rc := eventctx.New(nil, 4)
	orchestrator.Edit(rc, func(s orchestrator.DeepResearchState) orchestrator.DeepResearchState {
		s.Artifact.Content = "Intro\nBody\n"
		return s
	})

	validDiff := "*** Begin Patch\n" +
		"*** Update File: artifacts/report.md\n" +
		"@@\n" +
		" Intro\n" +
		"-Body\n" +
		"+Body revised\n" +
		"*** End Patch\n"

	model := &scriptedModel{turns: []agentloop.Message{
		{
			Role: agentloop.RoleAssistant,
			ToolCalls: []agentloop.ToolCall{
				{ID: "1", Name: "apply_patch", Arguments: toolCallArgs(applyPatchArgs{Diff: validDiff})},
			},
		},
		{
			Role: agentloop.RoleAssistant,
			ToolCalls: []agentloop.ToolCall{
				{ID: "2", Name: "finish_writing", Arguments: json.RawMessage(`{}`)},
			},
		},
	}}

	agent := New(Config{Model: model})
	report, err := agent.Run(context.Background(), rc, "revise the draft")
	require.NoError(t, err)
	require.Equal(t, "Intro\nBody revised\n", report)

	s := orchestrator.Load(rc)
	require.Equal(t, "Intro\nBody revised\n", s.Artifact.Content)
	require.Nil(t, s.Artifact.TurnDraft)
}

func TestWriterAgentRetriesAfterCatastrophicDeleteRejection(t *testing.T) {
	bigLine := ""
	for i := 0; i < 30; i++ {
		bigLine += "0123456789"
	}
	original := bigLine + "\ntail\n"

	rc := eventctx.New(nil, 4)
	orchestrator.Edit(rc, func(s orchestrator.DeepResearchState) orchestrator.DeepResearchState {
		s.Artifact.Content = original
		return s
	})

	catastrophicDiff := "*** Begin Patch\n" +
		"*** Update File: artifacts/report.md\n" +
		"@@\n" +
		"-" + bigLine + "\n" +
		" tail\n" +
		"*** End Patch\n"

	validDiff := "*** Begin Patch\n" +
		"*** Update File: artifacts/report.md\n" +
		"@@\n" +
		" " + bigLine + "\n" +
		"+more\n" +
		" tail\n" +
		"*** End Patch\n"

	model := &scriptedModel{turns: []agentloop.Message{
		{
			Role: agentloop.RoleAssistant,
			ToolCalls: []agentloop.ToolCall{
				{ID: "1", Name: "apply_patch", Arguments: toolCallArgs(applyPatchArgs{Diff: catastrophicDiff})},
			},
		},
		{
			Role: agentloop.RoleAssistant,
			ToolCalls: []agentloop.ToolCall{
				{ID: "2", Name: "apply_patch", Arguments: toolCallArgs(applyPatchArgs{Diff: validDiff})},
			},
		},
		{
			Role: agentloop.RoleAssistant,
			ToolCalls: []agentloop.ToolCall{
				{ID: "3", Name: "finish_writing", Arguments: json.RawMessage(`{}`)},
			},
		},
	}}

	agent := New(Config{Model: model})
	report, err := agent.Run(context.Background(), rc, "revise the draft")
	require.NoError(t, err)
	require.Equal(t, bigLine+"\nmore\ntail\n", report)

	s := orchestrator.Load(rc)
	require.Equal(t, bigLine+"\nmore\ntail\n", s.Artifact.Content)
	require.Nil(t, s.Artifact.TurnDraft)
}

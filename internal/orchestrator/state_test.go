package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepresearch/agentrunner/internal/eventctx"
)

func TestResearchTurnStateSeenOrFailedAndInvariant(t *testing.T) {
	var turn ResearchTurnState
	require.False(t, turn.SeenOrFailed("https://a.example"))

	turn.MarkSeen("https://a.example")
	require.True(t, turn.SeenOrFailed("https://a.example"))
	require.False(t, turn.SeenOrFailed("https://b.example"))

	turn.MarkFailed("https://b.example")
	require.True(t, turn.SeenOrFailed("https://b.example"))
	require.Contains(t, turn.SeenURLs, "https://b.example")
	require.Contains(t, turn.FailedURLs, "https://b.example")

	// marking the same URL seen or failed twice must not duplicate it.
	turn.MarkSeen("https://a.example")
	turn.MarkFailed("https://b.example")
	require.Len(t, turn.SeenURLs, 2)
	require.Len(t, turn.FailedURLs, 1)
}

func TestResearchTurnStateReset(t *testing.T) {
	turn := ResearchTurnState{
		SeenURLs:          []string{"a"},
		FailedURLs:        []string{"a"},
		Evidence:          []EvidenceItem{{URL: "a"}},
		FollowUpQueries:   []string{"q"},
		NoNewResultsCount: 2,
	}
	turn.Reset()
	require.Empty(t, turn.SeenURLs)
	require.Empty(t, turn.FailedURLs)
	require.Empty(t, turn.Evidence)
	require.Empty(t, turn.FollowUpQueries)
	require.Equal(t, 0, turn.NoNewResultsCount)
}

func TestLoadSeedsNewState(t *testing.T) {
	rc := eventctx.New(nil, 1)
	s := Load(rc)
	require.Equal(t, ReportPath, s.Artifact.Path)
	require.Equal(t, ArtifactStatusRunning, s.Artifact.Status)
}

func TestEditAppliesUnderLock(t *testing.T) {
	rc := eventctx.New(nil, 1)
	out := Edit(rc, func(s DeepResearchState) DeepResearchState {
		s.Orchestrator.ResearchPlan = "plan text"
		return s
	})
	require.Equal(t, "plan text", out.Orchestrator.ResearchPlan)
	require.Equal(t, "plan text", Load(rc).Orchestrator.ResearchPlan)
}

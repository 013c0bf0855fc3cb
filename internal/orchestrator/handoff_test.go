package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepresearch/agentrunner/internal/eventctx"
)

func TestNewChildRunContextIsolatesMutation(t *testing.T) {
	parent := eventctx.New(nil, 1)
	Edit(parent, func(s DeepResearchState) DeepResearchState {
		s.ResearchTurn.SeenURLs = []string{"https://a.example"}
		s.ResearchTurn.Evidence = []EvidenceItem{{URL: "https://a.example", Assets: []Asset{{ID: "x"}}}}
		return s
	})

	child := NewChildRunContext(parent, nil, 1)
	Edit(child, func(s DeepResearchState) DeepResearchState {
		s.ResearchTurn.SeenURLs = append(s.ResearchTurn.SeenURLs, "https://b.example")
		s.ResearchTurn.Evidence[0].Assets[0].ID = "mutated"
		return s
	})

	parentState := Load(parent)
	require.Len(t, parentState.ResearchTurn.SeenURLs, 1)
	require.Equal(t, "x", parentState.ResearchTurn.Evidence[0].Assets[0].ID)

	childState := Load(child)
	require.Len(t, childState.ResearchTurn.SeenURLs, 2)
	require.Equal(t, "mutated", childState.ResearchTurn.Evidence[0].Assets[0].ID)
}

func TestRelayEventsForwardsUntilChildCloses(t *testing.T) {
	parent := eventctx.New(nil, 4)
	child := eventctx.New(nil, 4)

	done := make(chan struct{})
	go func() {
		RelayEvents(parent, child)
		close(done)
	}()

	child.WriteEventToStream(eventctx.NewStart("go"))
	child.WriteEventToStream(eventctx.NewStop(map[string]any{"ok": true}))
	child.Close()

	ev1 := <-parent.Events()
	require.Equal(t, "Start", ev1.Name())
	ev2 := <-parent.Events()
	require.Equal(t, "Stop", ev2.Name())

	<-done
}

func TestMergeBackSearcherReplacesResearchTurn(t *testing.T) {
	parent := eventctx.New(nil, 1)
	Edit(parent, func(s DeepResearchState) DeepResearchState {
		s.Artifact.Content = "existing report"
		return s
	})

	child := eventctx.New(nil, 1)
	Edit(child, func(s DeepResearchState) DeepResearchState {
		s.ResearchTurn.Evidence = []EvidenceItem{{URL: "https://a.example"}}
		s.Artifact.Content = "should not leak into parent"
		return s
	})

	merged := MergeBack(parent, ChildSearcher, child)
	require.Len(t, merged.ResearchTurn.Evidence, 1)
	require.Equal(t, "existing report", merged.Artifact.Content)
}

func TestMergeBackWriterReplacesArtifactAndResetsTurn(t *testing.T) {
	parent := eventctx.New(nil, 1)
	Edit(parent, func(s DeepResearchState) DeepResearchState {
		s.ResearchTurn.Evidence = []EvidenceItem{{URL: "https://a.example"}}
		return s
	})

	child := eventctx.New(nil, 1)
	Edit(child, func(s DeepResearchState) DeepResearchState {
		s.Artifact.Content = "new report body"
		draft := "stale draft"
		s.Artifact.TurnDraft = &draft
		return s
	})

	merged := MergeBack(parent, ChildWriter, child)
	require.Equal(t, "new report body", merged.Artifact.Content)
	require.Nil(t, merged.Artifact.TurnDraft)
	require.Empty(t, merged.ResearchTurn.Evidence)
}

package searcher

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepresearch/agentrunner/internal/adapters/search"
	"github.com/deepresearch/agentrunner/internal/adapters/tokencount"
	"github.com/deepresearch/agentrunner/internal/eventctx"
	"github.com/deepresearch/agentrunner/internal/orchestrator"
)

// googleFixture is a fake search.Google returning a fixed hit list every call.
type googleFixture struct {
	hits []search.Result
}

func (g *googleFixture) Search(ctx context.Context, query string, maxResults int) ([]search.Result, int, error) {
	return g.hits, 1, nil
}

func TestWebSearchToolTracksNoProgressAndHoarding(t *testing.T) {
	child := eventctx.New(nil, 4)
	a := &Agent{cfg: Config{
		Search: &googleFixture{hits: []search.Result{{Title: "t", URL: "https://a.example", Snippet: "s"}}},
	}}
	a.cfg.setDefaults()

	tool := a.webSearchTool(child)
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"x"}`))
	require.NoError(t, err)

	var res webSearchResult
	require.NoError(t, json.Unmarshal(out, &res))
	require.Len(t, res.Results, 1)
	require.Empty(t, res.Sentinel)
	// no evidence has been generated yet, so the hoarding notice already
	// accompanies this first batch of fresh results.
	require.Equal(t, hoardingNotice, res.Notice)

	state := orchestrator.Load(child)
	require.Equal(t, 0, state.ResearchTurn.NoNewResultsCount)
	require.Equal(t, []string{"https://a.example"}, state.ResearchTurn.SeenURLs)

	// second call with the same URL: no fresh results, hoarding notice
	// should not fire yet (the sentinel path takes over), but the
	// no-progress counter advances.
	out2, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"x"}`))
	require.NoError(t, err)
	var res2 webSearchResult
	require.NoError(t, json.Unmarshal(out2, &res2))
	require.Equal(t, NoNewResults, res2.Sentinel)

	state2 := orchestrator.Load(child)
	require.Equal(t, 1, state2.ResearchTurn.NoNewResultsCount)
}

func TestWebSearchToolReachesMaxNoNewResults(t *testing.T) {
	child := eventctx.New(nil, 4)
	a := &Agent{cfg: Config{
		Search:          &googleFixture{hits: nil},
		MaxNoNewResults: 2,
	}}
	a.cfg.setDefaults()

	tool := a.webSearchTool(child)
	for i := 0; i < 2; i++ {
		_, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"x"}`))
		require.NoError(t, err)
	}

	out, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"x"}`))
	require.NoError(t, err)
	var res webSearchResult
	require.NoError(t, json.Unmarshal(out, &res))
	require.Equal(t, MaxNoNewResultsReached, res.Sentinel)
}

func TestWebSearchToolReportsHoardingWhenNoEvidenceYet(t *testing.T) {
	child := eventctx.New(nil, 4)
	orchestrator.Edit(child, func(s orchestrator.DeepResearchState) orchestrator.DeepResearchState {
		s.ResearchTurn.MarkSeen("https://already-seen.example")
		return s
	})

	a := &Agent{cfg: Config{
		Search: &googleFixture{hits: []search.Result{{Title: "t", URL: "https://fresh.example", Snippet: "s"}}},
	}}
	a.cfg.setDefaults()

	tool := a.webSearchTool(child)
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"x"}`))
	require.NoError(t, err)

	var res webSearchResult
	require.NoError(t, json.Unmarshal(out, &res))
	require.Equal(t, hoardingNotice, res.Notice)
}

func TestGenerateEvidencesToolDedupesAndMarksFailures(t *testing.T) {
	child := eventctx.New(nil, 4)
	a := &Agent{cfg: Config{
		Fetch: &fakeFetcher{bodies: map[string][]byte{
			"https://a.example/doc": []byte("relevant content"),
		}},
		Files:  &fakeFileStore{},
		Parser: &fakeParser{},
		Tokens: tokencount.New(),
	}}
	a.cfg.setDefaults()
	a.cfg.WeakModel = &fakeWeakModel{insights: []string{"one"}}

	tool := a.generateEvidencesTool(child)
	args, _ := json.Marshal(generateEvidencesArgs{
		URLs:      []string{"https://a.example/doc", "https://a.example/doc", "https://missing.example/doc"},
		Directive: "find things",
	})
	out, err := tool.Execute(context.Background(), args)
	require.NoError(t, err)

	var res generateEvidencesResult
	require.NoError(t, json.Unmarshal(out, &res))
	require.Equal(t, 1, res.ItemsAdded)
	require.Equal(t, []string{"https://missing.example/doc"}, res.Failures)

	state := orchestrator.Load(child)
	require.Len(t, state.ResearchTurn.Evidence, 1)
	require.True(t, state.ResearchTurn.SeenOrFailed("https://missing.example/doc"))
	require.Equal(t, 0, state.ResearchTurn.NoNewResultsCount)
}

func TestFinalizeResearchToolTalliesAssets(t *testing.T) {
	child := eventctx.New(nil, 4)
	orchestrator.Edit(child, func(s orchestrator.DeepResearchState) orchestrator.DeepResearchState {
		s.ResearchTurn.Evidence = []orchestrator.EvidenceItem{
			{URL: "a", Assets: []orchestrator.Asset{{Type: orchestrator.AssetImage}, {Type: orchestrator.AssetTableCSV}}},
			{URL: "b", Assets: []orchestrator.Asset{{Type: orchestrator.AssetImage}}},
		}
		s.ResearchTurn.MarkSeen("a")
		s.ResearchTurn.MarkFailed("c")
		return s
	})

	a := &Agent{}
	tool := a.finalizeResearchTool(child)
	out, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)

	var summary finalizeSummary
	require.NoError(t, json.Unmarshal(out, &summary))
	require.Equal(t, 2, summary.Items)
	require.Equal(t, 2, summary.Seen) // "a" plus "c" (marked via MarkFailed -> also seen)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 2, summary.AssetsByType[orchestrator.AssetImage])
	require.Equal(t, 1, summary.AssetsByType[orchestrator.AssetTableCSV])
}

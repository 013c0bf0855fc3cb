package searcher

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepresearch/agentrunner/internal/adapters/parse"
	"github.com/deepresearch/agentrunner/internal/adapters/tokencount"
	"github.com/deepresearch/agentrunner/internal/agentloop"
	"github.com/deepresearch/agentrunner/internal/orchestrator"
)

func TestFilenameFromURL(t *testing.T) {
	require.Equal(t, "report.pdf", filenameFromURL("https://example.com/docs/report.pdf"))
	require.Equal(t, "document", filenameFromURL("https://example.com/"))
}

func TestRelevanceFromInsightCount(t *testing.T) {
	require.Equal(t, 1.0, relevanceFromInsightCount(5))
	require.Equal(t, 1.0, relevanceFromInsightCount(9))
	require.Equal(t, 0.4, relevanceFromInsightCount(2))
	require.Equal(t, 0.0, relevanceFromInsightCount(0))
}

func TestMarkSelected(t *testing.T) {
	assets := []orchestrator.Asset{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	markSelected(assets, []string{"b", "c"})
	require.False(t, assets[0].IsSelected)
	require.True(t, assets[1].IsSelected)
	require.True(t, assets[2].IsSelected)
}

// fakeFetcher returns canned bytes for known URLs, an error for the rest.
type fakeFetcher struct {
	bodies map[string][]byte
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	b, ok := f.bodies[url]
	if !ok {
		return nil, fmt.Errorf("fake fetch: no body for %s", url)
	}
	return b, nil
}

// fakeFileStore discards the bytes, returning the filename as the file ID.
type fakeFileStore struct{}

func (f *fakeFileStore) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	return filename, nil
}

func (f *fakeFileStore) Download(ctx context.Context, fileID string) ([]byte, error) {
	return nil, fmt.Errorf("fake download: not implemented")
}

// fakeParser echoes the uploaded bytes back as markdown content.
type fakeParser struct{}

func (p *fakeParser) Parse(ctx context.Context, req parse.Request) (parse.Result, error) {
	return parse.Result{Markdown: string(req.Content)}, nil
}

// fakeWeakModel satisfies both agentloop.Model and agentloop.StructuredPredictor,
// always returning a fixed set of insights for any document.
type fakeWeakModel struct {
	insights []string
}

func (m *fakeWeakModel) Complete(ctx context.Context, system string, messages []agentloop.Message, tools []agentloop.ToolSpec) (agentloop.Message, error) {
	return agentloop.Message{Role: agentloop.RoleAssistant, Content: "unused"}, nil
}

func (m *fakeWeakModel) StructuredPredict(ctx context.Context, system string, messages []agentloop.Message, schema json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(analyzeOutput{Insights: m.insights, SelectedAssetIDs: nil})
}

// zeroInsightModel reports no insights, simulating an irrelevant document.
type zeroInsightModel struct{}

func (m *zeroInsightModel) Complete(ctx context.Context, system string, messages []agentloop.Message, tools []agentloop.ToolSpec) (agentloop.Message, error) {
	return agentloop.Message{Role: agentloop.RoleAssistant}, nil
}

func (m *zeroInsightModel) StructuredPredict(ctx context.Context, system string, messages []agentloop.Message, schema json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(analyzeOutput{})
}

func TestRunEvidencePipelineAcceptsAndFilters(t *testing.T) {
	a := &Agent{cfg: Config{
		Fetch: &fakeFetcher{bodies: map[string][]byte{
			"https://a.example/doc": []byte("content about the directive"),
		}},
		Files:  &fakeFileStore{},
		Parser: &fakeParser{},
		Tokens: tokencount.New(),
	}}
	a.cfg.setDefaults()
	a.cfg.WeakModel = &fakeWeakModel{insights: []string{"insight one", "insight two"}}

	items, failures, budgetExhausted := a.runEvidencePipeline(context.Background(),
		[]string{"https://a.example/doc", "https://missing.example/doc"}, "directive")

	require.Len(t, items, 1)
	require.Equal(t, "https://a.example/doc", items[0].URL)
	require.Equal(t, "insight one insight two", items[0].Summary)
	require.Equal(t, 0.4, items[0].Relevance)
	require.Equal(t, []string{"https://missing.example/doc"}, failures)
	require.False(t, budgetExhausted)
}

func TestRunEvidencePipelineDropsZeroInsightDocuments(t *testing.T) {
	a := &Agent{cfg: Config{
		Fetch: &fakeFetcher{bodies: map[string][]byte{
			"https://a.example/doc": []byte("irrelevant content"),
		}},
		Files:  &fakeFileStore{},
		Parser: &fakeParser{},
		Tokens: tokencount.New(),
	}}
	a.cfg.setDefaults()
	a.cfg.WeakModel = &zeroInsightModel{}

	items, failures, _ := a.runEvidencePipeline(context.Background(), []string{"https://a.example/doc"}, "directive")
	require.Empty(t, items)
	require.Empty(t, failures)
}

func TestBudgetAssembleTruncatesAndStopsOnOverflow(t *testing.T) {
	a := &Agent{cfg: Config{
		Tokens:         tokencount.New(),
		MaxItemTokens:  5,
		MaxTotalTokens: 5,
	}}

	items := []orchestrator.EvidenceItem{
		{URL: "one", Content: "short"},
		{URL: "two", Content: "this one also has content"},
	}

	out, budgetExhausted := a.budgetAssemble(items)
	require.Len(t, out, 1)
	require.Equal(t, "one", out[0].URL)
	require.True(t, budgetExhausted)
}

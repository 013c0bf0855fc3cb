package searcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deepresearch/agentrunner/internal/agentloop"
	"github.com/deepresearch/agentrunner/internal/eventctx"
	"github.com/deepresearch/agentrunner/internal/orchestrator"
)

const (
	// NoNewResults is returned when a web_search call found zero URLs not
	// already in seen_urls ∪ failed_urls, but the no-progress counter has
	// not yet reached the finalize threshold.
	NoNewResults = "NO_NEW_RESULTS"
	// MaxNoNewResultsReached is returned once the no-progress counter hits
	// the configured threshold; the agent should call finalize_research.
	MaxNoNewResultsReached = "MAX_NO_NEW_RESULTS_REACHED"
	// Hoarding is reported alongside search results when the turn has seen
	// URLs but produced zero evidence items — a sign the agent is browsing
	// without ever calling generate_evidences.
	hoardingNotice = "hoarding detected: URLs have been seen but no evidence has been generated yet; call generate_evidences"
)

type webSearchArgs struct {
	Query string `json:"query"`
}

type webSearchResult struct {
	Results  []searchHit `json:"results,omitempty"`
	Sentinel string      `json:"sentinel,omitempty"`
	Notice   string       `json:"notice,omitempty"`
}

type searchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// web_search filters out URLs already in seen_urls ∪ failed_urls, updates
// the no-progress counter, and short-circuits with a sentinel token per
// spec.md §4.5/§4.5.2.
func (a *Agent) webSearchTool(child *eventctx.RunContext) agentloop.Tool {
	spec := agentloop.ToolSpec{
		Name:        "web_search",
		Description: "Search the web for a query; returns new (not-yet-seen) results.",
		ParametersSchema: json.RawMessage(`{
			"type":"object",
			"properties":{"query":{"type":"string"}},
			"required":["query"]
		}`),
	}
	return agentloop.ToolFunc{ToolSpec: spec, Fn: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var a2 webSearchArgs
		if err := json.Unmarshal(args, &a2); err != nil {
			return nil, fmt.Errorf("web_search: invalid arguments: %w", err)
		}

		state := orchestrator.Load(child)
		if state.ResearchTurn.NoNewResultsCount >= a.cfg.MaxNoNewResults {
			return json.Marshal(webSearchResult{Sentinel: MaxNoNewResultsReached})
		}

		hits, _, err := a.cfg.Search.Search(ctx, a2.Query, a.cfg.MaxResultsPerQuery)
		if err != nil {
			return nil, fmt.Errorf("web_search: %w", err)
		}

		var fresh []searchHit
		result := orchestrator.Edit(child, func(s orchestrator.DeepResearchState) orchestrator.DeepResearchState {
			for _, h := range hits {
				if s.ResearchTurn.SeenOrFailed(h.URL) {
					continue
				}
				s.ResearchTurn.MarkSeen(h.URL)
				fresh = append(fresh, searchHit{Title: h.Title, URL: h.URL, Snippet: h.Snippet})
			}
			if len(fresh) > 0 {
				s.ResearchTurn.NoNewResultsCount = 0
			} else {
				s.ResearchTurn.NoNewResultsCount++
			}
			return s
		})

		if len(fresh) == 0 {
			if result.ResearchTurn.NoNewResultsCount >= a.cfg.MaxNoNewResults {
				return json.Marshal(webSearchResult{Sentinel: MaxNoNewResultsReached})
			}
			return json.Marshal(webSearchResult{Sentinel: NoNewResults})
		}

		out := webSearchResult{Results: fresh}
		if len(result.ResearchTurn.SeenURLs) > 0 && len(result.ResearchTurn.Evidence) == 0 {
			out.Notice = hoardingNotice
		}
		return json.Marshal(out)
	}}
}

type generateEvidencesArgs struct {
	URLs      []string `json:"urls"`
	Directive string   `json:"directive"`
}

type generateEvidencesResult struct {
	ItemsAdded     int      `json:"items_added"`
	Failures       []string `json:"failures"`
	BudgetExhausted bool    `json:"budget_exhausted"`
}

// generate_evidences runs the evidence pipeline (§4.5.1), appends accepted
// items, records failures, and resets the no-progress counter on any
// progress.
func (a *Agent) generateEvidencesTool(child *eventctx.RunContext) agentloop.Tool {
	spec := agentloop.ToolSpec{
		Name:        "generate_evidences",
		Description: "Download, parse, and enrich a batch of URLs into evidence items.",
		ParametersSchema: json.RawMessage(`{
			"type":"object",
			"properties":{
				"urls":{"type":"array","items":{"type":"string"}},
				"directive":{"type":"string"}
			},
			"required":["urls","directive"]
		}`),
	}
	return agentloop.ToolFunc{ToolSpec: spec, Fn: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var a2 generateEvidencesArgs
		if err := json.Unmarshal(args, &a2); err != nil {
			return nil, fmt.Errorf("generate_evidences: invalid arguments: %w", err)
		}

		urls := dedupeURLs(a2.URLs)
		items, failures, budgetExhausted := a.runEvidencePipeline(ctx, urls, a2.Directive)

		orchestrator.Edit(child, func(s orchestrator.DeepResearchState) orchestrator.DeepResearchState {
			s.ResearchTurn.Evidence = append(s.ResearchTurn.Evidence, items...)
			for _, f := range failures {
				s.ResearchTurn.MarkFailed(f)
			}
			if len(items) > 0 {
				s.ResearchTurn.NoNewResultsCount = 0
			}
			return s
		})

		return json.Marshal(generateEvidencesResult{
			ItemsAdded:      len(items),
			Failures:        failures,
			BudgetExhausted: budgetExhausted,
		})
	}}
}

func dedupeURLs(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

type finalizeSummary struct {
	Items        int            `json:"items"`
	Seen         int            `json:"seen"`
	Failed       int            `json:"failed"`
	AssetsByType map[string]int `json:"assets_by_type"`
}

// finalize_research is a return-direct tool emitting a compact summary of
// totals and per-type asset counts.
func (a *Agent) finalizeResearchTool(child *eventctx.RunContext) agentloop.Tool {
	spec := agentloop.ToolSpec{
		Name:         "finalize_research",
		Description:  "Stop searching and return a compact summary of gathered evidence.",
		ReturnDirect: true,
		ParametersSchema: json.RawMessage(`{"type":"object","properties":{}}`),
	}
	return agentloop.ToolFunc{ToolSpec: spec, Fn: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		s := orchestrator.Load(child)
		summary := finalizeSummary{
			Items:        len(s.ResearchTurn.Evidence),
			Seen:         len(s.ResearchTurn.SeenURLs),
			Failed:       len(s.ResearchTurn.FailedURLs),
			AssetsByType: map[string]int{},
		}
		for _, item := range s.ResearchTurn.Evidence {
			for _, asset := range item.Assets {
				summary.AssetsByType[asset.Type]++
			}
		}
		return json.Marshal(summary)
	}}
}

// Package searcher implements the Searcher Pipeline (C5): a tool-calling
// sub-agent that plans queries, searches, downloads, parses, and enriches
// evidence for a single research goal handed down by the Orchestrator.
package searcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deepresearch/agentrunner/internal/adapters/fetch"
	"github.com/deepresearch/agentrunner/internal/adapters/filestore"
	"github.com/deepresearch/agentrunner/internal/adapters/parse"
	"github.com/deepresearch/agentrunner/internal/adapters/search"
	"github.com/deepresearch/agentrunner/internal/adapters/tokencount"
	"github.com/deepresearch/agentrunner/internal/agentloop"
	"github.com/deepresearch/agentrunner/internal/eventctx"
	"github.com/deepresearch/agentrunner/internal/orchestrator"
	"github.com/deepresearch/agentrunner/internal/telemetry"
)

// Config wires the Searcher's model and external adapters.
type Config struct {
	MainModel agentloop.Model
	WeakModel agentloop.Model
	Search    search.Google
	Fetch     fetch.Downloader
	Files     filestore.Store
	Parser    parse.Parser
	Tokens    tokencount.Counter

	MaxResultsPerQuery int
	MaxItemTokens      int
	MaxTotalTokens     int
	MaxNoNewResults    int
	MaxIterations      int
	Logger             telemetry.Logger
}

func (c *Config) setDefaults() {
	if c.MaxResultsPerQuery <= 0 {
		c.MaxResultsPerQuery = 10
	}
	if c.MaxItemTokens <= 0 {
		c.MaxItemTokens = 2000
	}
	if c.MaxTotalTokens <= 0 {
		c.MaxTotalTokens = 20000
	}
	if c.MaxNoNewResults <= 0 {
		c.MaxNoNewResults = 3
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 20
	}
	if c.Logger == nil {
		c.Logger = telemetry.NewNoopLogger()
	}
}

// Agent implements orchestrator.ResearchAgent.
type Agent struct {
	cfg Config
}

// New constructs a Searcher Agent.
func New(cfg Config) *Agent {
	cfg.setDefaults()
	return &Agent{cfg: cfg}
}

// Run implements orchestrator.ResearchAgent: drives the agent loop against
// child until finalize_research returns directly or the loop otherwise ends.
func (a *Agent) Run(ctx context.Context, child *eventctx.RunContext, prompt string) (string, error) {
	tools := agentloop.NewRegistry(
		a.planSearchQueriesTool(child),
		a.webSearchTool(child),
		a.generateEvidencesTool(child),
		a.finalizeResearchTool(child),
	)

	loop := &agentloop.Loop{
		Model:         a.cfg.MainModel,
		Tools:         tools,
		SystemPrompt:  a.systemPrompt(child),
		History:       agentloop.NewHistory(),
		MaxIterations: a.cfg.MaxIterations,
		Logger:        a.cfg.Logger,
	}
	outcome, err := loop.Run(ctx, prompt)
	if err != nil {
		return "", err
	}
	if outcome.ReturnDirectTool == "finalize_research" {
		return outcome.Final.Content, nil
	}
	return outcome.Final.Content, nil
}

func (a *Agent) systemPrompt(child *eventctx.RunContext) agentloop.SystemPromptFn {
	return func(ctx context.Context) (string, error) {
		s := orchestrator.Load(child)
		var b strings.Builder
		b.WriteString("You are the Searcher. Plan queries, search, and gather evidence for the goal.\n")
		b.WriteString("Call finalize_research once you have enough evidence or web_search returns MAX_NO_NEW_RESULTS_REACHED.\n\n")
		fmt.Fprintf(&b, "seen_urls=%d failed_urls=%d evidence_items=%d no_new_results_count=%d\n",
			len(s.ResearchTurn.SeenURLs), len(s.ResearchTurn.FailedURLs),
			len(s.ResearchTurn.Evidence), s.ResearchTurn.NoNewResultsCount)
		return b.String(), nil
	}
}

type planSearchQueriesArgs struct {
	Query string `json:"query"`
}

// plan_search_queries asks the weak LLM for a newline-delimited list of 1-6
// refined queries, folding any "Already tried queries"/"What is missing"
// annotations embedded in the goal text into the decomposition prompt
// (grounded on services/query_service.py).
func (a *Agent) planSearchQueriesTool(child *eventctx.RunContext) agentloop.Tool {
	spec := agentloop.ToolSpec{
		Name:        "plan_search_queries",
		Description: "Decompose a research goal into 1-6 engine-ready search queries.",
		ParametersSchema: json.RawMessage(`{
			"type":"object",
			"properties":{"query":{"type":"string"}},
			"required":["query"]
		}`),
	}
	return agentloop.ToolFunc{ToolSpec: spec, Fn: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var a2 planSearchQueriesArgs
		if err := json.Unmarshal(args, &a2); err != nil {
			return nil, fmt.Errorf("plan_search_queries: invalid arguments: %w", err)
		}
		system := "Decompose the research goal into 1 to 6 concise, engine-ready web search queries. " +
			"Respect any \"Already tried queries\" or \"What is missing\" annotations in the goal text: " +
			"never repeat a tried query, and target the missing angle. Reply with one query per line, no numbering."
		msg, err := a.cfg.WeakModel.Complete(ctx, system, []agentloop.Message{
			{Role: agentloop.RoleUser, Content: a2.Query},
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("plan_search_queries: %w", err)
		}
		queries := splitNonEmptyLines(msg.Content)
		if len(queries) == 0 {
			queries = []string{a2.Query}
		}
		if len(queries) > 6 {
			queries = queries[:6]
		}
		return json.Marshal(queries)
	}}
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

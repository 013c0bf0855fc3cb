package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deepresearch/agentrunner/internal/agentloop"
	"github.com/deepresearch/agentrunner/internal/eventctx"
	"github.com/deepresearch/agentrunner/internal/telemetry"
)

// ResearchAgent and WriteAgent are the two sub-agent capabilities the
// Orchestrator calls as tools. Concrete implementations live in
// internal/searcher and internal/writer; Orchestrator depends only on these
// interfaces (spec.md §9's "dependency inversion... each sub-agent is built
// through a factory and exposed by capability" resolution of the source's
// cyclic Orchestrator/Searcher/Writer module references).
type (
	ResearchAgent interface {
		Run(ctx context.Context, child *eventctx.RunContext, prompt string) (string, error)
	}
	WriteAgent interface {
		Run(ctx context.Context, child *eventctx.RunContext, instruction string) (string, error)
	}
)

// Config configures an Orchestrator run.
type Config struct {
	Model          agentloop.Model
	Researcher     ResearchAgent
	Writer         WriteAgent
	MaxIterations  int
	TargetWords    int
	Logger         telemetry.Logger
	StreamBuffer   int
	ChildResources map[string]any
}

// Orchestrator drives the plan-to-report loop as a Principal Investigator,
// exposing exactly call_research_agent and call_write_agent to the LLM and
// rendering plan/report/evidence state into a hot system prompt every turn.
type Orchestrator struct {
	cfg Config
}

// New constructs an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 25
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NewNoopLogger()
	}
	return &Orchestrator{cfg: cfg}
}

// Run drives the orchestrator's tool-calling loop against rc until the LLM
// stops calling tools (no explicit return-direct tool terminates this loop;
// the Orchestrator's own finish condition is a plain final-answer turn, per
// spec.md §4.4's "use the report as a scratchpad... do not stop below ~90%
// of the requested word budget" guidance baked into the system template).
func (o *Orchestrator) Run(ctx context.Context, rc *eventctx.RunContext, goal string) (agentloop.Outcome, error) {
	tools := agentloop.NewRegistry(
		o.callResearchAgentTool(rc),
		o.callWriteAgentTool(rc),
	)

	loop := &agentloop.Loop{
		Model:         o.cfg.Model,
		Tools:         tools,
		SystemPrompt:  o.systemPrompt(rc),
		History:       agentloop.NewHistory(),
		MaxIterations: o.cfg.MaxIterations,
		Logger:        o.cfg.Logger,
	}
	return loop.Run(ctx, goal)
}

// systemPrompt implements the hot-system-prompt hook (spec.md §4.3/§4.4):
// rendered fresh from the current DeepResearchState on every call_model
// round, so stale plan/report/evidence content never poisons a decision.
func (o *Orchestrator) systemPrompt(rc *eventctx.RunContext) agentloop.SystemPromptFn {
	return func(ctx context.Context) (string, error) {
		s := Load(rc)
		var b strings.Builder
		b.WriteString("You are the Principal Investigator orchestrating a research project.\n")
		b.WriteString("Resolve upstream dependencies first. Never call the write agent without sufficient evidence.\n")
		b.WriteString("Treat the report as a scratchpad: it may hold interim notes and be refined later.\n")
		if o.cfg.TargetWords > 0 {
			fmt.Fprintf(&b, "Target report length: %d words; do not stop below ~90%% of that budget.\n", o.cfg.TargetWords)
		}
		b.WriteString("Cite sources with inline markdown links only.\n\n")
		fmt.Fprintf(&b, "## Current plan\n%s\n\n", s.Orchestrator.ResearchPlan)
		fmt.Fprintf(&b, "## Current report\n%s\n\n", s.Artifact.Content)
		fmt.Fprintf(&b, "## Evidence gathered this turn (%d items, %d seen, %d failed)\n",
			len(s.ResearchTurn.Evidence), len(s.ResearchTurn.SeenURLs), len(s.ResearchTurn.FailedURLs))
		for _, item := range s.ResearchTurn.Evidence {
			fmt.Fprintf(&b, "- %s: %s\n", item.URL, item.Summary)
		}
		return b.String(), nil
	}
}

type callResearchAgentArgs struct {
	Prompt string `json:"prompt"`
}

func (o *Orchestrator) callResearchAgentTool(rc *eventctx.RunContext) agentloop.Tool {
	spec := agentloop.ToolSpec{
		Name:        "call_research_agent",
		Description: "Delegate to the Searcher sub-agent with a research prompt describing what evidence is needed.",
		ParametersSchema: json.RawMessage(`{
			"type":"object",
			"properties":{"prompt":{"type":"string"}},
			"required":["prompt"]
		}`),
	}
	return agentloop.ToolFunc{ToolSpec: spec, Fn: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var a callResearchAgentArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("call_research_agent: invalid arguments: %w", err)
		}
		child := NewChildRunContext(rc, o.cfg.ChildResources, o.cfg.StreamBuffer)
		go RelayEvents(rc, child)
		defer child.Close()

		summary, err := o.cfg.Researcher.Run(ctx, child, a.Prompt)
		if err != nil {
			return nil, err
		}
		MergeBack(rc, ChildSearcher, child)
		return json.Marshal(summary)
	}}
}

type callWriteAgentArgs struct {
	Instruction string `json:"instruction"`
}

func (o *Orchestrator) callWriteAgentTool(rc *eventctx.RunContext) agentloop.Tool {
	spec := agentloop.ToolSpec{
		Name:        "call_write_agent",
		Description: "Delegate to the Writer sub-agent with an instruction describing what to add or change in the report.",
		ParametersSchema: json.RawMessage(`{
			"type":"object",
			"properties":{"instruction":{"type":"string"}},
			"required":["instruction"]
		}`),
	}
	return agentloop.ToolFunc{ToolSpec: spec, Fn: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var a callWriteAgentArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("call_write_agent: invalid arguments: %w", err)
		}
		child := NewChildRunContext(rc, o.cfg.ChildResources, o.cfg.StreamBuffer)
		go RelayEvents(rc, child)
		defer child.Close()

		result, err := o.cfg.Writer.Run(ctx, child, a.Instruction)
		if err != nil {
			return nil, err
		}
		MergeBack(rc, ChildWriter, child)
		return json.Marshal(result)
	}}
}

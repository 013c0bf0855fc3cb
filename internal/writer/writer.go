package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deepresearch/agentrunner/internal/agentloop"
	"github.com/deepresearch/agentrunner/internal/eventctx"
	"github.com/deepresearch/agentrunner/internal/orchestrator"
	"github.com/deepresearch/agentrunner/internal/rerr"
	"github.com/deepresearch/agentrunner/internal/telemetry"
)

// Config wires the Writer's model.
type Config struct {
	Model         agentloop.Model
	TargetWords   int
	MaxIterations int
	Logger        telemetry.Logger
}

func (c *Config) setDefaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 15
	}
	if c.Logger == nil {
		c.Logger = telemetry.NewNoopLogger()
	}
}

// Agent implements orchestrator.WriteAgent.
type Agent struct {
	cfg Config
}

// New constructs a Writer Agent.
func New(cfg Config) *Agent {
	cfg.setDefaults()
	return &Agent{cfg: cfg}
}

// Run implements orchestrator.WriteAgent.
func (a *Agent) Run(ctx context.Context, child *eventctx.RunContext, instruction string) (string, error) {
	tools := agentloop.NewRegistry(
		a.applyPatchTool(child),
		a.finishWritingTool(child),
	)

	loop := &agentloop.Loop{
		Model:         a.cfg.Model,
		Tools:         tools,
		SystemPrompt:  a.systemPrompt(child),
		History:       agentloop.NewHistory(),
		MaxIterations: a.cfg.MaxIterations,
		Logger:        a.cfg.Logger,
	}
	outcome, err := loop.Run(ctx, instruction)
	if err != nil {
		return "", err
	}
	if outcome.ReturnDirectTool == "finish_writing" {
		return orchestrator.Load(child).Artifact.Content, nil
	}
	return outcome.Final.Content, nil
}

func (a *Agent) systemPrompt(child *eventctx.RunContext) agentloop.SystemPromptFn {
	return func(ctx context.Context) (string, error) {
		s := orchestrator.Load(child)
		var b strings.Builder
		b.WriteString("You are the Writer. Apply patches to the report draft, then call finish_writing to commit.\n")
		fmt.Fprintf(&b, "Only Update File patches against %s are accepted; no adds, deletes, or moves.\n", orchestrator.ReportPath)
		draft := s.Artifact.Content
		if s.Artifact.TurnDraft != nil {
			draft = *s.Artifact.TurnDraft
		}
		words := len(strings.Fields(draft))
		if a.cfg.TargetWords > 0 {
			fmt.Fprintf(&b, "Current draft word count: %d (target %d).\n", words, a.cfg.TargetWords)
		} else {
			fmt.Fprintf(&b, "Current draft word count: %d.\n", words)
		}
		fmt.Fprintf(&b, "\n## Current draft\n%s\n", draft)
		return b.String(), nil
	}
}

type applyPatchArgs struct {
	Diff string `json:"diff"`
}

// apply_patch validates, applies to turn_draft (seeded from content if
// null), and returns "added N lines, removed M lines". On validation
// failure it returns a PatchRejected tool error the agent may retry from.
func (a *Agent) applyPatchTool(child *eventctx.RunContext) agentloop.Tool {
	spec := agentloop.ToolSpec{
		Name:        "apply_patch",
		Description: "Apply a *** Begin Patch / *** End Patch envelope to the report draft.",
		ParametersSchema: json.RawMessage(`{
			"type":"object",
			"properties":{"diff":{"type":"string"}},
			"required":["diff"]
		}`),
	}
	return agentloop.ToolFunc{ToolSpec: spec, Fn: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var a2 applyPatchArgs
		if err := json.Unmarshal(args, &a2); err != nil {
			return nil, fmt.Errorf("apply_patch: invalid arguments: %w", err)
		}

		patch, err := ParsePatch(a2.Diff)
		if err != nil {
			return nil, err
		}
		if err := validatePatch(patch, orchestrator.ReportPath); err != nil {
			return nil, err
		}

		var resultMsg string
		var applyErr error
		orchestrator.Edit(child, func(s orchestrator.DeepResearchState) orchestrator.DeepResearchState {
			before := s.Artifact.Content
			if s.Artifact.TurnDraft != nil {
				before = *s.Artifact.TurnDraft
			}

			var after string
			added, removed := 0, 0
			for _, f := range patch.Files {
				var a3, r3 int
				after, a3, r3, applyErr = ApplyUpdate(before, f)
				if applyErr != nil {
					return s
				}
				added += a3
				removed += r3
				before = after
			}

			if catastrophicDelete(func() string {
				if s.Artifact.TurnDraft != nil {
					return *s.Artifact.TurnDraft
				}
				return s.Artifact.Content
			}(), after) {
				applyErr = rerr.New(rerr.PatchRejected, "patch rejected: would shrink draft to under 50% of its prior length")
				return s
			}

			s.Artifact.TurnDraft = &after
			resultMsg = fmt.Sprintf("added %d lines, removed %d lines", added, removed)
			return s
		})
		if applyErr != nil {
			return nil, applyErr
		}

		return json.Marshal(resultMsg)
	}}
}

// finish_writing is a return-direct tool: commits turn_draft -> content,
// clears turn_draft, clears research_turn, and returns the new report. It
// fails if turn_draft is null.
func (a *Agent) finishWritingTool(child *eventctx.RunContext) agentloop.Tool {
	spec := agentloop.ToolSpec{
		Name:         "finish_writing",
		Description:  "Commit the pending draft to the report and end writing.",
		ReturnDirect: true,
		ParametersSchema: json.RawMessage(`{"type":"object","properties":{}}`),
	}
	return agentloop.ToolFunc{ToolSpec: spec, Fn: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		s := orchestrator.Load(child)
		if s.Artifact.TurnDraft == nil {
			return nil, rerr.New(rerr.PatchRejected, "finish_writing: no pending draft to commit")
		}

		result := orchestrator.Edit(child, func(s orchestrator.DeepResearchState) orchestrator.DeepResearchState {
			s.Artifact.Content = *s.Artifact.TurnDraft
			s.Artifact.TurnDraft = nil
			s.ResearchTurn.Reset()
			return s
		})

		return json.Marshal(result.Artifact.Content)
	}}
}

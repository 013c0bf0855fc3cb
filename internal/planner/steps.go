package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/deepresearch/agentrunner/internal/adapters/session"
	"github.com/deepresearch/agentrunner/internal/agentloop"
	"github.com/deepresearch/agentrunner/internal/eventctx"
	"github.com/deepresearch/agentrunner/internal/rerr"
	"github.com/deepresearch/agentrunner/internal/workflow"
)

// Resource identities this package's steps require, registered by the
// caller (cmd/research) via Workflow.RegisterResource.
const (
	ResourcePlannerModel = "planner_llm"
	ResourceSessionStore = "session_store"
)

// RegisterSteps wires the three Planner steps (spec.md §4.7) onto wf.
func RegisterSteps(wf *workflow.Workflow) {
	wf.RegisterStep(initSessionStep())
	wf.RegisterStep(runPlannerLLMStep())
	wf.RegisterStep(applyPlanUpdateStep())
}

func initSessionStep() workflow.Step {
	return workflow.Step{
		Name:    "init_session",
		Handles: []string{"Start"},
		Fn: func(ctx context.Context, sc *workflow.StepContext, ev eventctx.Event) (eventctx.Event, error) {
			start, ok := ev.(eventctx.Start)
			if !ok {
				return nil, rerr.New(rerr.Invariant, "init_session: expected Start event")
			}
			initialQuery, _ := start.Payload.(string)

			editState(sc.Run, func(s ResearchPlanState) ResearchPlanState {
				s.InitialQuery = initialQuery
				s.ResearchID = uuid.NewString()
				s.Status = StatusPlanning
				s.PlanText = ""
				s.TextConfig = DefaultTextConfig()
				return s
			})
			loadMemory(sc.Run) // seeds an empty chat memory buffer for the run

			return NewPlannerTurn(initialQuery), nil
		},
	}
}

func runPlannerLLMStep() workflow.Step {
	return workflow.Step{
		Name:      "run_planner_llm",
		Handles:   []string{"PlannerTurn"},
		Resources: []string{ResourcePlannerModel},
		Fn: func(ctx context.Context, sc *workflow.StepContext, ev eventctx.Event) (eventctx.Event, error) {
			turn, ok := ev.(PlannerTurnEvent)
			if !ok {
				return nil, rerr.New(rerr.Invariant, "run_planner_llm: expected PlannerTurn event")
			}

			model := sc.Resource(ResourcePlannerModel).(agentloop.Model)
			predictor, ok := model.(agentloop.StructuredPredictor)
			if !ok {
				return nil, rerr.New(rerr.Invariant, "run_planner_llm: planner model does not support structured prediction")
			}

			state := loadState(sc.Run)
			memory := loadMemory(sc.Run)

			system := buildPlannerSystemPrompt(state.PlanText, state.TextConfig)
			messages := append(memory.Messages(), agentloop.Message{Role: agentloop.RoleUser, Content: turn.Message})

			raw, err := predictor.StructuredPredict(ctx, system, messages, outputSchema)
			if err != nil {
				return nil, rerr.Wrap(rerr.LLMError, "run_planner_llm: structured predict failed", err)
			}

			var output PlannerAgentOutput
			if err := json.Unmarshal(raw, &output); err != nil {
				return nil, rerr.Wrap(rerr.LLMError, "run_planner_llm: decode output", err)
			}

			return NewPlannerOutput(output, turn.Message), nil
		},
	}
}

func applyPlanUpdateStep() workflow.Step {
	return workflow.Step{
		Name:      "apply_plan_update",
		Handles:   []string{"PlannerOutput"},
		Resources: []string{ResourceSessionStore},
		Fn: func(ctx context.Context, sc *workflow.StepContext, ev eventctx.Event) (eventctx.Event, error) {
			out, ok := ev.(PlannerOutputEvent)
			if !ok {
				return nil, rerr.New(rerr.Invariant, "apply_plan_update: expected PlannerOutput event")
			}

			memory := loadMemory(sc.Run)
			memory.Append(
				agentloop.Message{Role: agentloop.RoleUser, Content: out.UserMessage},
				agentloop.Message{Role: agentloop.RoleAssistant, Content: out.Output.Response},
			)

			state := editState(sc.Run, func(s ResearchPlanState) ResearchPlanState {
				s.PlanText = out.Output.Plan
				s.TextConfig = out.Output.TextConfig
				return s
			})

			store := sc.Resource(ResourceSessionStore).(session.Store)
			if out.Output.Decision == DecisionFinalize {
				return finalizeRun(ctx, sc.Run, store)
			}

			// This engine's HITL suspension (§4.1 WaitForEvent/SendEvent)
			// blocks the calling step itself rather than routing
			// HumanResponse back through the Workflow dispatch queue, so
			// apply_plan_update and on_human_response — two separate
			// llama-index-style steps in the original
			// (workflows/planner/workflow.py) — collapse into one Go step
			// that waits inline and applies the original on_human_response
			// decision locally once the human replies.
			prefix := fmt.Sprintf(
				"Current Plan:\n%s\n\n-----------------------\n\n%s\n\nIf the actual plan is good enough, type 'accept' to approve, or reply with edits.",
				out.Output.Plan, out.Output.Response,
			)
			waiterID := state.ResearchID
			resp, err := sc.Run.WaitForEvent(ctx, waiterID, eventctx.NewInputRequired(prefix, waiterID))
			if err != nil {
				return nil, err
			}
			human, ok := resp.(eventctx.HumanResponse)
			if !ok {
				return nil, rerr.New(rerr.Invariant, "apply_plan_update: expected HumanResponse")
			}

			normalized := strings.ToLower(strings.TrimSpace(human.Response))
			if normalized == "accept" && state.PlanText != "" {
				return finalizeRun(ctx, sc.Run, store)
			}
			return NewPlannerTurn(human.Response), nil
		},
	}
}

// finalizeRun marks the session finalized, persists it idempotently, and
// emits Stop with the final research_id/status/plan (spec.md §4.7 step 5).
func finalizeRun(ctx context.Context, rc *eventctx.RunContext, store session.Store) (eventctx.Event, error) {
	state := editState(rc, func(s ResearchPlanState) ResearchPlanState {
		s.Status = StatusFinalized
		return s
	})

	record := sessionRecordFor(state)
	if err := store.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("finalize_run: session upsert failed: %w", err)
	}

	return eventctx.NewStop(map[string]any{
		"research_id": state.ResearchID,
		"status":      state.Status,
		"plan":        state.PlanText,
		"text_config": record.TextConfig,
	}), nil
}

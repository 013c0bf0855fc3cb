// Package planner implements the Planner (C7): a HITL chat loop producing a
// PlannerAgentOutput per turn, persisting a session record on finalize.
package planner

import (
	"github.com/deepresearch/agentrunner/internal/adapters/session"
	"github.com/deepresearch/agentrunner/internal/agentloop"
	"github.com/deepresearch/agentrunner/internal/eventctx"
)

// TextConfig carries free-form output-style guidance for downstream agents
// (synthesis type, tone, point of view, target word count, and so on).
// Grounded on the original TextSynthesizerConfig: every field is a
// free-form string except TargetWords. Unknown keys are not rejected; they
// are dropped when decoding into this struct.
type TextConfig struct {
	SynthesisType      string `json:"synthesis_type"`
	Tone               string `json:"tone"`
	PointOfView        string `json:"point_of_view"`
	Language           string `json:"language"`
	TargetAudience     string `json:"target_audience"`
	TargetWords        int    `json:"target_words"`
	OutputFormat       string `json:"output_format"`
	CustomInstructions string `json:"custom_instructions"`
}

// DefaultTextConfig matches the original's per-field defaults.
func DefaultTextConfig() TextConfig {
	return TextConfig{
		SynthesisType:  "report",
		Tone:           "objective",
		PointOfView:    "third_person",
		Language:       "english",
		TargetAudience: "general_audience",
		TargetWords:    4000,
		OutputFormat:   "markdown",
	}
}

// Decision is the planner's per-turn choice: keep iterating on the plan, or
// hand off to the research run.
type Decision string

const (
	DecisionProposePlan Decision = "propose_plan"
	DecisionFinalize     Decision = "finalize"
)

// PlannerAgentOutput is the structured schema the planner LLM must produce
// every turn.
type PlannerAgentOutput struct {
	Decision   Decision   `json:"decision"`
	Response   string     `json:"response"`
	Plan       string     `json:"plan"`
	TextConfig TextConfig `json:"text_config"`
}

var outputSchema = []byte(`{
	"type": "object",
	"properties": {
		"decision": {"type": "string", "enum": ["propose_plan", "finalize"]},
		"response": {"type": "string"},
		"plan": {"type": "string"},
		"text_config": {
			"type": "object",
			"properties": {
				"synthesis_type": {"type": "string"},
				"tone": {"type": "string"},
				"point_of_view": {"type": "string"},
				"language": {"type": "string"},
				"target_audience": {"type": "string"},
				"target_words": {"type": "integer"},
				"output_format": {"type": "string"},
				"custom_instructions": {"type": "string"}
			}
		}
	},
	"required": ["decision", "response", "plan"]
}`)

// Status values for ResearchPlanState.Status / session.Record.Status.
const (
	StatusPlanning  = "planning"
	StatusFinalized = "finalized"
	StatusFailed    = "failed"
)

// ResearchPlanState is the session-scoped planner state, seeded in
// init_session and mutated by every subsequent step.
type ResearchPlanState struct {
	InitialQuery string
	ResearchID   string
	PlanText     string
	TextConfig   TextConfig
	Status       string
}

// PlanStartEvent begins a planning run.
type PlanStartEvent struct {
	eventctx.Base
	InitialQuery string
}

// NewPlanStart constructs a PlanStartEvent.
func NewPlanStart(initialQuery string) PlanStartEvent {
	return PlanStartEvent{Base: eventctx.Base{EventName: "PlanStart"}, InitialQuery: initialQuery}
}

// PlannerTurnEvent represents a user message in the planning conversation.
type PlannerTurnEvent struct {
	eventctx.Base
	Message string
}

// NewPlannerTurn constructs a PlannerTurnEvent.
func NewPlannerTurn(message string) PlannerTurnEvent {
	return PlannerTurnEvent{Base: eventctx.Base{EventName: "PlannerTurn"}, Message: message}
}

// PlannerOutputEvent carries the planner's structured output for one turn.
type PlannerOutputEvent struct {
	eventctx.Base
	Output      PlannerAgentOutput
	UserMessage string
}

// NewPlannerOutput constructs a PlannerOutputEvent.
func NewPlannerOutput(output PlannerAgentOutput, userMessage string) PlannerOutputEvent {
	return PlannerOutputEvent{Base: eventctx.Base{EventName: "PlannerOutput"}, Output: output, UserMessage: userMessage}
}

// stateKey is the eventctx.Store key for ResearchPlanState.
const stateKey = "planner_state"

// memoryKey is the eventctx.Store key for the per-run chat history.
const memoryKey = "planner_memory"

func loadState(rc *eventctx.RunContext) ResearchPlanState {
	v := rc.Store.Get(stateKey, ResearchPlanState{Status: StatusPlanning, TextConfig: DefaultTextConfig()})
	s, ok := v.(ResearchPlanState)
	if !ok {
		return ResearchPlanState{Status: StatusPlanning, TextConfig: DefaultTextConfig()}
	}
	return s
}

func editState(rc *eventctx.RunContext, fn func(ResearchPlanState) ResearchPlanState) ResearchPlanState {
	out := rc.Store.Edit(stateKey, ResearchPlanState{Status: StatusPlanning, TextConfig: DefaultTextConfig()}, func(current any) any {
		s, ok := current.(ResearchPlanState)
		if !ok {
			s = ResearchPlanState{Status: StatusPlanning, TextConfig: DefaultTextConfig()}
		}
		return fn(s)
	})
	return out.(ResearchPlanState)
}

func loadMemory(rc *eventctx.RunContext) *agentloop.History {
	v := rc.Store.Get(memoryKey, (*agentloop.History)(nil))
	h, _ := v.(*agentloop.History)
	if h == nil {
		h = agentloop.NewHistory()
		rc.Store.Set(memoryKey, h)
	}
	return h
}

// sessionRecordFor builds the idempotent session.Record to persist on
// finalize.
func sessionRecordFor(s ResearchPlanState) session.Record {
	return session.Record{
		ResearchID:   s.ResearchID,
		Status:       s.Status,
		InitialQuery: s.InitialQuery,
		Plan:         s.PlanText,
		TextConfig: map[string]any{
			"synthesis_type":      s.TextConfig.SynthesisType,
			"tone":                s.TextConfig.Tone,
			"point_of_view":       s.TextConfig.PointOfView,
			"language":            s.TextConfig.Language,
			"target_audience":     s.TextConfig.TargetAudience,
			"target_words":        s.TextConfig.TargetWords,
			"output_format":       s.TextConfig.OutputFormat,
			"custom_instructions": s.TextConfig.CustomInstructions,
		},
	}
}

package planner

import (
	"fmt"
	"strings"
)

const plannerSystemPrompt = `You are an expert deep-research planner collaborating with a human.

Goal: produce a high-quality research plan through HITL iterations.

You MUST output a valid JSON object that matches the PlannerAgentOutput schema.

The generated plan must be ready to be accepted. No meta questions about the topic.

Plan editing rules:
- If the user asks for ANY change, you MUST update the plan accordingly.
- Preserve the existing plan structure, numbering, and wording as much as possible.
- Do NOT add new sections, new deliverables, new data sources, new methodology, or new scope expansions unless the user explicitly asks.
- Do NOT add a 'Timeline' (or estimates of time/effort) unless the user explicitly asks for timing.
- Always return the FULL revised plan in the 'plan' field (raw text, not JSON).
- Avoid changing the plan between interactions unless the user explicitly asks.

Output config rules:
- You MUST include a 'text_config' object in your JSON output.
- 'text_config' values are guidelines, not a closed list. Fields like tone/language/type may be ANY strings.
- Preserve the existing config unless the user explicitly requests changes.
- If the user requests nuanced or mixed requirements that don't fit fields, put them in text_config.custom_instructions.

Your job: convert the user's request into a compact research plan as questions we will research.

Decision policy (HITL):
- decision='propose_plan': Present a plan (initial or revised) for user review.
- decision='finalize': Use this when the user agrees with the plan (e.g., they say 'accept').
  This is the TERMINAL step. The workflow will end here.
- If details are missing in the query, ask clarifying questions in response, and propose the best plan you can.
`

// buildPlannerSystemPrompt renders the hot system prompt for run_planner_llm,
// folding the current plan and text config into the fixed instructions.
func buildPlannerSystemPrompt(currentPlan string, cfg TextConfig) string {
	plan := strings.TrimSpace(currentPlan)
	if plan == "" {
		plan = "(none yet)"
	}
	return fmt.Sprintf("%s\nCurrent plan:\n%s\n\n%s\n", plannerSystemPrompt, plan, formatTextConfig(cfg))
}

func formatTextConfig(cfg TextConfig) string {
	var b strings.Builder
	b.WriteString("Current text_config:\n")
	fmt.Fprintf(&b, "- synthesis_type: %s\n", orDefault(cfg.SynthesisType, "report"))
	fmt.Fprintf(&b, "- tone: %s\n", orDefault(cfg.Tone, "objective"))
	fmt.Fprintf(&b, "- point_of_view: %s\n", orDefault(cfg.PointOfView, "third_person"))
	fmt.Fprintf(&b, "- language: %s\n", orDefault(cfg.Language, "english"))
	fmt.Fprintf(&b, "- target_audience: %s\n", orDefault(cfg.TargetAudience, "general_audience"))
	fmt.Fprintf(&b, "- target_words: %d\n", cfg.TargetWords)
	fmt.Fprintf(&b, "- output_format: %s\n", orDefault(cfg.OutputFormat, "markdown"))
	if cfg.CustomInstructions != "" {
		fmt.Fprintf(&b, "- custom_instructions: %s\n", cfg.CustomInstructions)
	}
	return b.String()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

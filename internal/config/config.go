// Package config loads the JSON research configuration (spec.md §6) from
// configs/config.json under the "research" path.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// LLMConfig names a model and its sampling temperature for one agent's
// main or weak LLM.
type LLMConfig struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
}

// AgentLLMConfig is the main_llm/weak_llm pair an agent is configured with.
// WeakLLM is optional; callers fall back to MainLLM when unset.
type AgentLLMConfig struct {
	MainLLM LLMConfig  `json:"main_llm"`
	WeakLLM *LLMConfig `json:"weak_llm,omitempty"`
}

// Settings holds the global research run tunables.
type Settings struct {
	MaxReportUpdateSize       int `json:"max_report_update_size"`
	MaxPendingEvidenceTokens  int `json:"max_pending_evidence_tokens"`
	MinSources                int `json:"min_sources"`
	MaxSources                int `json:"max_sources"`
	TimeoutSeconds            int `json:"timeout_seconds"`
}

// SearcherConfig holds Searcher-specific tunables alongside its LLM config.
type SearcherConfig struct {
	AgentLLMConfig
	MaxResultsPerQuery int `json:"max_results_per_query"`
}

// Collections names persistence targets.
type Collections struct {
	ResearchCollection string `json:"research_collection"`
}

// ResearchConfig is the top-level "research" config object.
type ResearchConfig struct {
	Settings     Settings       `json:"settings"`
	Planner      AgentLLMConfig `json:"planner"`
	Searcher     SearcherConfig `json:"searcher"`
	Writer       AgentLLMConfig `json:"writer"`
	Orchestrator AgentLLMConfig `json:"orchestrator"`
	Reviewer     AgentLLMConfig `json:"reviewer"`
	Collections  Collections    `json:"collections"`
}

type document struct {
	Research ResearchConfig `json:"research"`
}

// defaults matches the enumerated defaults in spec.md §6.
func defaults() ResearchConfig {
	return ResearchConfig{
		Settings: Settings{
			MaxReportUpdateSize:      800,
			MaxPendingEvidenceTokens: 20000,
			MinSources:               5,
			MaxSources:               25,
			TimeoutSeconds:           1800,
		},
		Searcher: SearcherConfig{MaxResultsPerQuery: 10},
		Collections: Collections{
			ResearchCollection: "deep_research_sessions",
		},
	}
}

// Load reads and parses path, overlaying onto the documented defaults so an
// omitted field (e.g. a missing weak_llm) falls back predictably.
func Load(path string) (ResearchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ResearchConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	doc := document{Research: defaults()}
	if err := json.Unmarshal(data, &doc); err != nil {
		return ResearchConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return doc.Research, nil
}

// WeakOrMain returns cfg.WeakLLM if set, otherwise cfg.MainLLM, implementing
// the "optional weak_llm falls back to main_llm" rule each agent's config
// follows.
func (cfg AgentLLMConfig) WeakOrMain() LLMConfig {
	if cfg.WeakLLM != nil {
		return *cfg.WeakLLM
	}
	return cfg.MainLLM
}

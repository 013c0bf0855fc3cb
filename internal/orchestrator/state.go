// Package orchestrator implements the Orchestrator (C4): the plan-to-report
// loop that drives the Searcher and Writer as tool-agents via state-snapshot
// handoff, composing the single DeepResearchState the rest of the system
// reads and writes through eventctx.Store.Edit.
package orchestrator

import "github.com/deepresearch/agentrunner/internal/eventctx"

// StateKey is the single well-known eventctx.Store key holding the
// DeepResearchState for a run, per spec.md §3.
const StateKey = "deep_research_state"

// Asset is an extracted sub-resource referenced by an EvidenceItem.
type Asset struct {
	ID          string `json:"id"`
	Type        string `json:"type"` // image, table_csv, downloadable_file, unknown
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	IsSelected  bool   `json:"is_selected"`
}

const (
	AssetImage            = "image"
	AssetTableCSV         = "table_csv"
	AssetDownloadableFile = "downloadable_file"
	AssetUnknown          = "unknown"
)

// EvidenceItem is a single piece of enriched, scored evidence gathered for a
// research turn. Bullets/Relevance match the enriched variant spec.md §9
// resolves the duplicated-schema ambiguity in favor of (the
// ResearchStateAccessor-referencing modules' shape).
type EvidenceItem struct {
	URL       string         `json:"url"`
	Title     string         `json:"title,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Content   string         `json:"content"`
	Summary   string         `json:"summary"`
	Assets    []Asset        `json:"assets,omitempty"`
	Bullets   []string       `json:"bullets,omitempty"`
	Relevance float64        `json:"relevance"`
}

// ResearchTurnState holds the mutable, append-only state of the in-flight
// research turn; cleared atomically when the Writer commits.
type ResearchTurnState struct {
	SeenURLs          []string       `json:"seen_urls"`
	FailedURLs        []string       `json:"failed_urls"`
	Evidence          []EvidenceItem `json:"evidence_items"`
	FollowUpQueries   []string       `json:"follow_up_queries"`
	NoNewResultsCount int            `json:"no_new_results_count"`
}

// Reset clears all of its fields atomically (the caller holds the store's
// Edit lock for the duration of the call).
func (t *ResearchTurnState) Reset() {
	*t = ResearchTurnState{}
}

// SeenOrFailed reports whether url has already been seen or marked failed.
func (t *ResearchTurnState) SeenOrFailed(url string) bool {
	for _, u := range t.SeenURLs {
		if u == url {
			return true
		}
	}
	for _, u := range t.FailedURLs {
		if u == url {
			return true
		}
	}
	return false
}

// MarkSeen appends url to SeenURLs if not already present.
func (t *ResearchTurnState) MarkSeen(url string) {
	for _, u := range t.SeenURLs {
		if u == url {
			return
		}
	}
	t.SeenURLs = append(t.SeenURLs, url)
}

// MarkFailed appends url to FailedURLs (and SeenURLs, preserving the
// seen_urls ⊇ failed_urls invariant) if not already present.
func (t *ResearchTurnState) MarkFailed(url string) {
	t.MarkSeen(url)
	for _, u := range t.FailedURLs {
		if u == url {
			return
		}
	}
	t.FailedURLs = append(t.FailedURLs, url)
}

const (
	ArtifactStatusRunning   = "running"
	ArtifactStatusCompleted = "completed"
	ArtifactStatusFailed    = "failed"
)

// ReportPath is the sole allowed Writer target, per spec.md §4.6.
const ReportPath = "artifacts/report.md"

// ResearchArtifactState holds the committed report and any uncommitted
// turn_draft.
type ResearchArtifactState struct {
	Path      string  `json:"path"`
	Content   string  `json:"content"`
	TurnDraft *string `json:"turn_draft"`
	Status    string  `json:"status"`
}

// OrchestratorState holds orchestrator-owned fields.
type OrchestratorState struct {
	ResearchPlan string `json:"research_plan"`
}

// DeepResearchState is the single nested record composed under StateKey,
// matching the orchestrator/research_turn/research_artifact sub-record shape
// spec.md §3 and §9 name as authoritative.
type DeepResearchState struct {
	Orchestrator OrchestratorState     `json:"orchestrator"`
	ResearchTurn ResearchTurnState     `json:"research_turn"`
	Artifact     ResearchArtifactState `json:"research_artifact"`
}

// NewState returns the zero-value DeepResearchState with Artifact defaults
// set (path and running status), matching a fresh run's initial state.
func NewState() DeepResearchState {
	return DeepResearchState{
		Artifact: ResearchArtifactState{
			Path:   ReportPath,
			Status: ArtifactStatusRunning,
		},
	}
}

// Load reads the current DeepResearchState from rc's store, seeding it with
// NewState if unset.
func Load(rc *eventctx.RunContext) DeepResearchState {
	v := rc.Store.Get(StateKey, NewState())
	s, ok := v.(DeepResearchState)
	if !ok {
		return NewState()
	}
	return s
}

// Edit applies fn to the current DeepResearchState under the store's
// exclusive-edit lock and returns the resulting state.
func Edit(rc *eventctx.RunContext, fn func(s DeepResearchState) DeepResearchState) DeepResearchState {
	out := rc.Store.Edit(StateKey, NewState(), func(current any) any {
		s, ok := current.(DeepResearchState)
		if !ok {
			s = NewState()
		}
		return fn(s)
	})
	return out.(DeepResearchState)
}

package orchestrator

import (
	"github.com/deepresearch/agentrunner/internal/eventctx"
)

// ChildKind identifies which sub-agent a handoff is for, determining which
// slice of DeepResearchState is merged back on completion.
type ChildKind int

const (
	ChildSearcher ChildKind = iota
	ChildWriter
)

// NewChildRunContext constructs a fresh Run Context for a sub-agent,
// seeded with a deep copy of the parent's DeepResearchState (spec.md §4.4:
// "copy-snapshot the relevant subset of the parent state into the child
// context", generalized here to the whole record since both sub-agents
// read more of it than they're allowed to write back). Grounded on the
// teacher's child-workflow tracking
// (runtime/agent/runtime/child_tracker.go) adapted from cross-workflow
// progress tracking to same-process sub-Run-Context construction, since
// this system's sub-agent isolation is in-process state copying rather
// than a durable child workflow.
func NewChildRunContext(parent *eventctx.RunContext, resources map[string]any, streamBuffer int) *eventctx.RunContext {
	snapshot := deepCopyState(Load(parent))
	child := eventctx.New(resources, streamBuffer)
	child.Store.Set(StateKey, snapshot)
	return child
}

// RelayEvents forwards every event a child RunContext publishes to the
// parent's stream verbatim, so the user sees one continuous stream
// regardless of which sub-agent is active. It returns once the child's
// event channel closes (the sub-agent run has ended).
func RelayEvents(parent, child *eventctx.RunContext) {
	for ev := range child.Events() {
		parent.WriteEventToStream(ev)
	}
}

// MergeBack applies the declared merge-back slice for kind: a Searcher
// child's entire research_turn replaces the parent's, a Writer child's
// report content replaces the parent's artifact content and clears
// turn_draft/research_turn. This is the only path by which a sub-agent's
// work becomes visible outside its own isolated context.
func MergeBack(parent *eventctx.RunContext, kind ChildKind, child *eventctx.RunContext) DeepResearchState {
	childState := deepCopyState(Load(child))
	return Edit(parent, func(s DeepResearchState) DeepResearchState {
		switch kind {
		case ChildSearcher:
			s.ResearchTurn = childState.ResearchTurn
		case ChildWriter:
			s.Artifact.Content = childState.Artifact.Content
			s.Artifact.TurnDraft = nil
			s.ResearchTurn.Reset()
		}
		return s
	})
}

func deepCopyState(s DeepResearchState) DeepResearchState {
	out := s
	out.ResearchTurn.SeenURLs = append([]string(nil), s.ResearchTurn.SeenURLs...)
	out.ResearchTurn.FailedURLs = append([]string(nil), s.ResearchTurn.FailedURLs...)
	out.ResearchTurn.FollowUpQueries = append([]string(nil), s.ResearchTurn.FollowUpQueries...)
	out.ResearchTurn.Evidence = make([]EvidenceItem, len(s.ResearchTurn.Evidence))
	for i, item := range s.ResearchTurn.Evidence {
		out.ResearchTurn.Evidence[i] = deepCopyEvidence(item)
	}
	if s.Artifact.TurnDraft != nil {
		draft := *s.Artifact.TurnDraft
		out.Artifact.TurnDraft = &draft
	}
	return out
}

func deepCopyEvidence(item EvidenceItem) EvidenceItem {
	out := item
	out.Assets = append([]Asset(nil), item.Assets...)
	out.Bullets = append([]string(nil), item.Bullets...)
	if item.Metadata != nil {
		out.Metadata = make(map[string]any, len(item.Metadata))
		for k, v := range item.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepresearch/agentrunner/internal/agentloop"
	"github.com/deepresearch/agentrunner/internal/eventctx"
)

func TestLoadStateSeedsDefaults(t *testing.T) {
	rc := eventctx.New(nil, 1)
	s := loadState(rc)
	require.Equal(t, StatusPlanning, s.Status)
	require.Equal(t, DefaultTextConfig(), s.TextConfig)
}

func TestEditStatePersistsAcrossLoads(t *testing.T) {
	rc := eventctx.New(nil, 1)
	editState(rc, func(s ResearchPlanState) ResearchPlanState {
		s.ResearchID = "r-1"
		s.InitialQuery = "what is the weather"
		s.Status = StatusFinalized
		return s
	})

	s := loadState(rc)
	require.Equal(t, "r-1", s.ResearchID)
	require.Equal(t, "what is the weather", s.InitialQuery)
	require.Equal(t, StatusFinalized, s.Status)
}

func TestLoadMemorySeedsOnceAndPersists(t *testing.T) {
	rc := eventctx.New(nil, 1)

	h1 := loadMemory(rc)
	require.NotNil(t, h1)
	require.Equal(t, 0, h1.Len())

	h1.Append(agentloop.Message{Role: agentloop.RoleUser, Content: "hello"})

	h2 := loadMemory(rc)
	require.Same(t, h1, h2)
	require.Equal(t, 1, h2.Len())
}

func TestSessionRecordForMapsTextConfig(t *testing.T) {
	s := ResearchPlanState{
		ResearchID:   "r-2",
		Status:       StatusFinalized,
		InitialQuery: "query",
		PlanText:     "plan body",
		TextConfig:   DefaultTextConfig(),
	}
	rec := sessionRecordFor(s)
	require.Equal(t, "r-2", rec.ResearchID)
	require.Equal(t, StatusFinalized, rec.Status)
	require.Equal(t, "plan body", rec.Plan)
	require.Equal(t, "report", rec.TextConfig["synthesis_type"])
	require.Equal(t, 4000, rec.TextConfig["target_words"])
}

package writer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepresearch/agentrunner/internal/orchestrator"
	"github.com/deepresearch/agentrunner/internal/rerr"
)

func TestValidatePatchAcceptsUpdateToReportPath(t *testing.T) {
	patch := Patch{Files: []FileOp{{Op: OpUpdate, Path: orchestrator.ReportPath}}}
	require.NoError(t, validatePatch(patch, orchestrator.ReportPath))
}

func TestValidatePatchRejectsAdd(t *testing.T) {
	patch := Patch{Files: []FileOp{{Op: OpAdd, Path: orchestrator.ReportPath}}}
	err := validatePatch(patch, orchestrator.ReportPath)
	require.Error(t, err)
	require.Equal(t, rerr.PatchRejected, rerr.KindOf(err))
}

func TestValidatePatchRejectsDelete(t *testing.T) {
	patch := Patch{Files: []FileOp{{Op: OpDelete, Path: orchestrator.ReportPath}}}
	err := validatePatch(patch, orchestrator.ReportPath)
	require.Error(t, err)
	require.Equal(t, rerr.PatchRejected, rerr.KindOf(err))
}

func TestValidatePatchRejectsWrongPath(t *testing.T) {
	patch := Patch{Files: []FileOp{{Op: OpUpdate, Path: "somewhere/else.md"}}}
	err := validatePatch(patch, orchestrator.ReportPath)
	require.Error(t, err)
	require.Equal(t, rerr.PatchRejected, rerr.KindOf(err))
}

func TestValidatePatchRejectsMove(t *testing.T) {
	patch := Patch{Files: []FileOp{{Op: OpUpdate, Path: orchestrator.ReportPath, MoveTo: "new.md"}}}
	err := validatePatch(patch, orchestrator.ReportPath)
	require.Error(t, err)
	require.Equal(t, rerr.PatchRejected, rerr.KindOf(err))
}

func TestValidatePatchRejectsEmptyPatch(t *testing.T) {
	err := validatePatch(Patch{}, orchestrator.ReportPath)
	require.Error(t, err)
	require.Equal(t, rerr.PatchRejected, rerr.KindOf(err))
}

func TestCatastrophicDeleteIgnoresShortDrafts(t *testing.T) {
	before := strings.Repeat("a", 100)
	require.False(t, catastrophicDelete(before, ""))
}

func TestCatastrophicDeleteFlagsMajorShrink(t *testing.T) {
	before := strings.Repeat("a", 200)
	after := strings.Repeat("a", 90)
	require.True(t, catastrophicDelete(before, after))
}

func TestCatastrophicDeleteAllowsModerateShrink(t *testing.T) {
	before := strings.Repeat("a", 200)
	after := strings.Repeat("a", 150)
	require.False(t, catastrophicDelete(before, after))
}

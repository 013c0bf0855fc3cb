package writer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepresearch/agentrunner/internal/rerr"
)

func TestParsePatchSingleUpdate(t *testing.T) {
	diff := "*** Begin Patch\n" +
		"*** Update File: artifacts/report.md\n" +
		"@@\n" +
		" line one\n" +
		"-line two\n" +
		"+line two revised\n" +
		" line three\n" +
		"*** End Patch\n"

	patch, err := ParsePatch(diff)
	require.NoError(t, err)
	require.Len(t, patch.Files, 1)

	f := patch.Files[0]
	require.Equal(t, OpUpdate, f.Op)
	require.Equal(t, "artifacts/report.md", f.Path)
	require.Len(t, f.Hunks, 1)
	require.Len(t, f.Hunks[0].Lines, 4)
}

func TestParsePatchRejectsMissingMarkers(t *testing.T) {
	_, err := ParsePatch("*** Update File: report.md\n@@\n line\n")
	require.Error(t, err)
	require.Equal(t, rerr.PatchRejected, rerr.KindOf(err))
}

func TestParsePatchRejectsInvalidHunkLine(t *testing.T) {
	diff := "*** Begin Patch\n" +
		"*** Update File: report.md\n" +
		"@@\n" +
		"~this is not a valid prefix\n" +
		"*** End Patch\n"
	_, err := ParsePatch(diff)
	require.Error(t, err)
	require.Equal(t, rerr.PatchRejected, rerr.KindOf(err))
}

func TestApplyUpdateInsertsAndRemovesLines(t *testing.T) {
	original := "line one\nline two\nline three\n"
	diff := "*** Begin Patch\n" +
		"*** Update File: report.md\n" +
		"@@\n" +
		" line one\n" +
		"-line two\n" +
		"+line two revised\n" +
		"+an extra line\n" +
		" line three\n" +
		"*** End Patch\n"

	patch, err := ParsePatch(diff)
	require.NoError(t, err)

	after, added, removed, err := ApplyUpdate(original, patch.Files[0])
	require.NoError(t, err)
	require.Equal(t, 2, added)
	require.Equal(t, 1, removed)
	require.Equal(t, "line one\nline two revised\nan extra line\nline three\n", after)
}

func TestApplyUpdateRejectsUnmatchedContext(t *testing.T) {
	original := "line one\nline two\n"
	diff := "*** Begin Patch\n" +
		"*** Update File: report.md\n" +
		"@@\n" +
		" this context does not exist\n" +
		"+new line\n" +
		"*** End Patch\n"

	patch, err := ParsePatch(diff)
	require.NoError(t, err)

	_, _, _, err = ApplyUpdate(original, patch.Files[0])
	require.Error(t, err)
	require.Equal(t, rerr.PatchRejected, rerr.KindOf(err))
}

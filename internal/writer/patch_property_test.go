package writer

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestApplyUpdateInverseRoundTrips verifies that for any original document and
// any contiguous line replacement, applying the replacement and then
// applying its inverse (swap the removed/added line sets) restores the
// original document exactly. This is the apply/inverse round-trip law
// referenced by spec.md §8.
func TestApplyUpdateInverseRoundTrips(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	lineGen := gen.AlphaString()
	origGen := gen.SliceOfN(6, lineGen)

	properties.Property("apply then inverse-apply restores the original", prop.ForAll(
		func(origLines []string, at int, removeCount int, replacement []string) bool {
			if len(origLines) == 0 {
				return true
			}
			at = at % len(origLines)
			if at < 0 {
				at += len(origLines)
			}
			if removeCount < 0 {
				removeCount = -removeCount
			}
			removeCount = removeCount % (len(origLines) - at + 1)

			removed := append([]string(nil), origLines[at:at+removeCount]...)
			original := strings.Join(origLines, "\n")

			forward := FileOp{Op: OpUpdate, Path: "artifacts/report.md", Hunks: []Hunk{
				hunkFor(origLines[:at], removed, replacement, origLines[at+removeCount:]),
			}}
			updated, added, removedCount, err := ApplyUpdate(original, forward)
			if err != nil {
				t.Fatalf("forward apply: %v", err)
			}
			if added != len(replacement) || removedCount != len(removed) {
				t.Fatalf("unexpected counts: added=%d removed=%d", added, removedCount)
			}

			updatedLines := splitLines(updated)
			inverse := FileOp{Op: OpUpdate, Path: "artifacts/report.md", Hunks: []Hunk{
				hunkFor(origLines[:at], replacement, removed, origLines[at+removeCount:]),
			}}
			restored, _, _, err := ApplyUpdate(updated, inverse)
			if err != nil {
				t.Fatalf("inverse apply: %v (updated=%q)", err, updatedLines)
			}

			return restored == original
		},
		origGen, gen.IntRange(0, 5), gen.IntRange(0, 3), gen.SliceOfN(2, lineGen),
	))

	properties.TestingRun(t)
}

// hunkFor builds a single hunk with leading/trailing context plus a
// remove/add pair at the cut point.
func hunkFor(before, remove, add, after []string) Hunk {
	var lines []PatchLine
	for _, l := range before {
		lines = append(lines, PatchLine{Kind: LineContext, Text: l})
	}
	for _, l := range remove {
		lines = append(lines, PatchLine{Kind: LineRemove, Text: l})
	}
	for _, l := range add {
		lines = append(lines, PatchLine{Kind: LineAdd, Text: l})
	}
	for _, l := range after {
		lines = append(lines, PatchLine{Kind: LineContext, Text: l})
	}
	return Hunk{Lines: lines}
}

// Package writer implements the Writer Pipeline (C6): a patch-applying
// sub-agent that edits the single report target under a strict draft/commit
// state machine.
package writer

import (
	"fmt"
	"strings"

	"github.com/deepresearch/agentrunner/internal/rerr"
)

// Op identifies a patch file operation kind.
type Op int

const (
	OpAdd Op = iota
	OpDelete
	OpUpdate
)

// LineKind identifies a hunk line's role in a unified-diff-like chunk.
type LineKind byte

const (
	LineContext LineKind = ' '
	LineAdd     LineKind = '+'
	LineRemove  LineKind = '-'
)

// PatchLine is one line of a hunk.
type PatchLine struct {
	Kind LineKind
	Text string
}

// Hunk is one contiguous chunk of context/add/remove lines within an Update
// File operation, optionally preceded by an "@@ ..." section header (stored
// but not required for matching; matching is purely line-content based).
type Hunk struct {
	Header string
	Lines  []PatchLine
}

// FileOp is a single file operation inside a patch envelope.
type FileOp struct {
	Op         Op
	Path       string
	MoveTo     string
	Hunks      []Hunk
	AddedLines []string // Add File: the literal new file content, one entry per line
}

// Patch is a fully parsed patch envelope.
type Patch struct {
	Files []FileOp
}

const (
	beginMarker  = "*** Begin Patch"
	endMarker    = "*** End Patch"
	addPrefix    = "*** Add File: "
	deletePrefix = "*** Delete File: "
	updatePrefix = "*** Update File: "
	moveToPrefix = "Move to: "
)

// ParsePatch parses the textual envelope between "*** Begin Patch" and
// "*** End Patch" (spec.md §4.6's bit-exact external contract). Returns a
// rerr.PatchRejected error on any grammar violation.
func ParsePatch(text string) (Patch, error) {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != beginMarker {
		return Patch{}, rerr.New(rerr.PatchRejected, "patch must begin with \"*** Begin Patch\"")
	}

	var patch Patch
	var current *FileOp
	var currentHunk *Hunk

	flushHunk := func() {
		if current != nil && currentHunk != nil {
			current.Hunks = append(current.Hunks, *currentHunk)
			currentHunk = nil
		}
	}
	flushFile := func() {
		flushHunk()
		if current != nil {
			patch.Files = append(patch.Files, *current)
			current = nil
		}
	}

	sawEnd := false
	for _, raw := range lines[1:] {
		if strings.TrimSpace(raw) == endMarker {
			sawEnd = true
			flushFile()
			break
		}

		switch {
		case strings.HasPrefix(raw, addPrefix):
			flushFile()
			current = &FileOp{Op: OpAdd, Path: strings.TrimSpace(strings.TrimPrefix(raw, addPrefix))}
		case strings.HasPrefix(raw, deletePrefix):
			flushFile()
			current = &FileOp{Op: OpDelete, Path: strings.TrimSpace(strings.TrimPrefix(raw, deletePrefix))}
		case strings.HasPrefix(raw, updatePrefix):
			flushFile()
			current = &FileOp{Op: OpUpdate, Path: strings.TrimSpace(strings.TrimPrefix(raw, updatePrefix))}
		case current != nil && current.Op == OpUpdate && currentHunk == nil && strings.HasPrefix(raw, moveToPrefix):
			current.MoveTo = strings.TrimSpace(strings.TrimPrefix(raw, moveToPrefix))
		case current != nil && current.Op == OpAdd && strings.HasPrefix(raw, "+"):
			current.AddedLines = append(current.AddedLines, strings.TrimPrefix(raw, "+"))
		case current != nil && current.Op == OpUpdate && strings.HasPrefix(raw, "@@"):
			flushHunk()
			currentHunk = &Hunk{Header: raw}
		case current != nil && current.Op == OpUpdate && raw != "":
			kind := LineKind(raw[0])
			if kind != LineContext && kind != LineAdd && kind != LineRemove {
				return Patch{}, rerr.New(rerr.PatchRejected, fmt.Sprintf("invalid hunk line prefix %q", raw[:1]))
			}
			if currentHunk == nil {
				currentHunk = &Hunk{}
			}
			currentHunk.Lines = append(currentHunk.Lines, PatchLine{Kind: kind, Text: raw[1:]})
		case raw == "":
			// blank lines between/around file blocks are tolerated
		default:
			return Patch{}, rerr.New(rerr.PatchRejected, fmt.Sprintf("unexpected patch line %q", raw))
		}
	}

	if !sawEnd {
		return Patch{}, rerr.New(rerr.PatchRejected, "patch must end with \"*** End Patch\"")
	}
	return patch, nil
}

// ApplyUpdate applies op's hunks to original, returning the new content and
// the count of added/removed lines. op.Op must be OpUpdate.
func ApplyUpdate(original string, op FileOp) (string, int, int, error) {
	origLines := splitLines(original)
	cursor := 0
	var out []string
	added, removed := 0, 0

	for _, hunk := range op.Hunks {
		var expected []string
		for _, l := range hunk.Lines {
			if l.Kind == LineContext || l.Kind == LineRemove {
				expected = append(expected, l.Text)
			}
		}

		idx, err := findSubsequence(origLines, cursor, expected)
		if err != nil {
			return "", 0, 0, rerr.Wrap(rerr.PatchRejected, "hunk context not found in current draft", err)
		}

		out = append(out, origLines[cursor:idx]...)
		pos := idx
		for _, l := range hunk.Lines {
			switch l.Kind {
			case LineContext:
				out = append(out, l.Text)
				pos++
			case LineRemove:
				removed++
				pos++
			case LineAdd:
				out = append(out, l.Text)
				added++
			}
		}
		cursor = pos
	}
	out = append(out, origLines[cursor:]...)

	return strings.Join(out, "\n"), added, removed, nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func findSubsequence(haystack []string, from int, needle []string) (int, error) {
	if len(needle) == 0 {
		return from, nil
	}
	for i := from; i+len(needle) <= len(haystack); i++ {
		match := true
		for j, want := range needle {
			if haystack[i+j] != want {
				match = false
				break
			}
		}
		if match {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no match for %d-line context starting with %q", len(needle), needle[0])
}

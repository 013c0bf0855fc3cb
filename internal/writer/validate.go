package writer

import (
	"fmt"

	"github.com/deepresearch/agentrunner/internal/rerr"
)

// validatePatch enforces the writer's policy at the tool boundary, never in
// the parser (spec.md §9's resolution of the duplicated-variant ambiguity):
// only Update File operations, only targeting reportPath, no moves.
func validatePatch(patch Patch, reportPath string) error {
	if len(patch.Files) == 0 {
		return rerr.New(rerr.PatchRejected, "patch contains no file operations")
	}
	for _, f := range patch.Files {
		switch f.Op {
		case OpAdd:
			return rerr.New(rerr.PatchRejected, "patch may not add files")
		case OpDelete:
			return rerr.New(rerr.PatchRejected, "patch may not delete files")
		case OpUpdate:
			if f.Path != reportPath {
				return rerr.New(rerr.PatchRejected, fmt.Sprintf("patch may only target %s", reportPath))
			}
			if f.MoveTo != "" {
				return rerr.New(rerr.PatchRejected, "patch may not rename or move files")
			}
		}
	}
	return nil
}

// catastrophicDelete reports whether applying the patch would shrink the
// draft to under 50% of its prior length, when the prior length exceeded
// 100 characters (spec.md §4.6's guard against catastrophic LLM deletes).
func catastrophicDelete(before, after string) bool {
	if len(before) <= 100 {
		return false
	}
	return len(after) < len(before)/2
}

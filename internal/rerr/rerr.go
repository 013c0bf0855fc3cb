// Package rerr defines the error taxonomy shared by the workflow engine,
// agent loop, and pipelines. Errors are classified by Kind rather than by
// concrete type so callers can branch on behavior (retry, surface to model,
// terminate run) without importing every producer package.
package rerr

import (
	"errors"
	"fmt"
)

// Kind identifies an error category from the taxonomy in SPEC_FULL.md §7.
type Kind string

const (
	// Cancelled indicates a suspension was aborted by context cancellation.
	Cancelled Kind = "cancelled"
	// Timeout indicates a per-call, per-step, or per-workflow deadline expired.
	Timeout Kind = "timeout"
	// LLMError wraps a provider failure.
	LLMError Kind = "llm_error"
	// ToolError is surfaced to the model as a tool result; never terminal.
	ToolError Kind = "tool_error"
	// PatchRejected indicates a writer patch failed validation or the
	// catastrophic-delete rule. Never terminal.
	PatchRejected Kind = "patch_rejected"
	// DownloadFailed indicates a fetch-bytes failure for a single URL.
	DownloadFailed Kind = "download_failed"
	// UploadFailed indicates a store-bytes failure for a single URL.
	UploadFailed Kind = "upload_failed"
	// ParseFailed indicates a parse failure for a single file.
	ParseFailed Kind = "parse_failed"
	// IterationLimitExceeded indicates an agent run exceeded max_iterations.
	IterationLimitExceeded Kind = "iteration_limit_exceeded"
	// Invariant indicates a programmer error (e.g. missing system message).
	Invariant Kind = "invariant"
)

// Error is a Kind-tagged error. Use errors.As to recover the Kind from an
// arbitrary error chain.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err does not wrap an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Terminal reports whether errors of this kind are terminal for a run by
// default (per SPEC_FULL.md §7's propagation policy).
func (k Kind) Terminal() bool {
	switch k {
	case ToolError, PatchRejected, DownloadFailed, UploadFailed, ParseFailed:
		return false
	default:
		return true
	}
}

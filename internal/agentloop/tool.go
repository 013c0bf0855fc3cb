package agentloop

import (
	"context"
	"encoding/json"
)

type (
	// ToolSpec describes a tool's identity and JSON schema surface to the
	// model. Mirrors the teacher's tool-registration metadata, trimmed to
	// what a single agent's fixed tool set needs (no toolset/service
	// routing, no DSL-sourced confirmation policy — each agent here exposes
	// a small, hand-declared tool list per §4).
	ToolSpec struct {
		// Name is the tool identifier as presented to the model.
		Name string
		// Description is shown to the model to explain when to call it.
		Description string
		// ParametersSchema is the JSON schema for the tool's arguments,
		// passed verbatim to the model provider.
		ParametersSchema json.RawMessage
		// ReturnDirect marks a tool whose result ends the loop immediately:
		// the Loop appends the ToolResult to history and returns without a
		// further model call (§4.3's return-direct tools, e.g.
		// finalize_research, finish_writing).
		ReturnDirect bool
	}

	// Tool is an executable tool bound to a ToolSpec.
	Tool interface {
		Spec() ToolSpec
		// Execute runs the tool against raw JSON arguments and returns the
		// JSON result to feed back to the model, or an error. A non-nil
		// error is surfaced to the model as a tool error message (§4.3);
		// the loop does not abort the run for ordinary tool errors, only
		// for errors wrapped as rerr.Kind.Terminal().
		Execute(ctx context.Context, args json.RawMessage) (json.RawMessage, error)
	}

	// ToolFunc adapts a function to the Tool interface.
	ToolFunc struct {
		ToolSpec ToolSpec
		Fn       func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)
	}
)

// Spec implements Tool.
func (f ToolFunc) Spec() ToolSpec { return f.ToolSpec }

// Execute implements Tool.
func (f ToolFunc) Execute(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	return f.Fn(ctx, args)
}

// Registry is an ordered, name-indexed set of tools exposed to a single
// agent's model calls.
type Registry struct {
	order []string
	byName map[string]Tool
}

// NewRegistry builds a Registry from the given tools, preserving declaration
// order for deterministic prompt rendering.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		name := t.Spec().Name
		r.order = append(r.order, name)
		r.byName[name] = t
	}
	return r
}

// Specs returns the tool specs in declaration order, for passing to the model.
func (r *Registry) Specs() []ToolSpec {
	out := make([]ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name].Spec())
	}
	return out
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

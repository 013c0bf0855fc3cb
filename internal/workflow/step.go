// Package workflow implements the Step Workflow (C2): steps that consume
// events of a declared type and emit events, routed by event type, with
// resource injection, fan-out dispatch, and HITL-aware suspension built on
// top of eventctx.RunContext.
package workflow

import (
	"context"
	"fmt"

	"github.com/deepresearch/agentrunner/internal/eventctx"
	"github.com/deepresearch/agentrunner/internal/telemetry"
)

type (
	// StepFunc is a step's executable body. It receives the triggering
	// event and a StepContext exposing the Run Context and injected
	// resources, and returns the event to emit next (nil ends that
	// dispatch branch) or an error (surfaced as a StepFailed event).
	StepFunc func(ctx context.Context, sc *StepContext, ev eventctx.Event) (eventctx.Event, error)

	// Step registers a StepFunc against the event name(s) it handles.
	Step struct {
		// Name identifies the step for logging and StepFailed reporting.
		Name string
		// Handles lists the event names that trigger this step. A Start
		// event fans out to every step registered for "Start".
		Handles []string
		// Resources lists resource identities this step requires; Run
		// resolves and injects them via StepContext.Resource before
		// invoking Fn.
		Resources []string
		// Fn is the step body.
		Fn StepFunc
	}

	// StepContext is passed to every step invocation.
	StepContext struct {
		Run    *eventctx.RunContext
		Logger telemetry.Logger

		resources map[string]any
	}
)

// Resource returns a previously resolved resource by identity. Panics if the
// step did not declare the resource in Step.Resources — a programmer error.
// Workflow.Validate, run at the start of Run, only checks that every
// declared resource is registered; it does not detect this case.
func (sc *StepContext) Resource(name string) any {
	v, ok := sc.resources[name]
	if !ok {
		panic(fmt.Sprintf("workflow: step requested undeclared resource %q", name))
	}
	return v
}

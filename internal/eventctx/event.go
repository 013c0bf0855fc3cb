// Package eventctx implements the Event & Context Runtime (C1): a typed
// event bus, a per-run keyed state store with atomic edits, and a
// pending-waiter table used to implement human-in-the-loop suspension.
package eventctx

import "time"

// Event is the interface all workflow events implement. Concrete event
// types carry a Name and arbitrary payload; three distinguished kinds exist
// for human-in-the-loop: InputRequired, HumanResponse, and Stop.
type Event interface {
	// Name identifies the event's logical type (e.g. "PlannerTurn", "Stop").
	Name() string
}

// Base is embedded by concrete event types to satisfy Event without
// boilerplate.
type Base struct {
	EventName string
}

// Name implements Event.
func (b Base) Name() string { return b.EventName }

// Start begins a workflow run.
type Start struct {
	Base
	Payload any
}

// NewStart constructs a Start event.
func NewStart(payload any) Start {
	return Start{Base: Base{EventName: "Start"}, Payload: payload}
}

// InputRequired is published when the workflow must block for a human
// response. Prefix is the rendered prompt shown to the user; WaiterID
// correlates the eventual HumanResponse.
type InputRequired struct {
	Base
	Prefix   string
	WaiterID string
}

// NewInputRequired constructs an InputRequired event.
func NewInputRequired(prefix, waiterID string) InputRequired {
	return InputRequired{Base: Base{EventName: "InputRequired"}, Prefix: prefix, WaiterID: waiterID}
}

// HumanResponse carries a user's reply to a prior InputRequired event.
type HumanResponse struct {
	Base
	Response string
	WaiterID string
}

// NewHumanResponse constructs a HumanResponse event.
func NewHumanResponse(response, waiterID string) HumanResponse {
	return HumanResponse{Base: Base{EventName: "HumanResponse"}, Response: response, WaiterID: waiterID}
}

// Stop terminates a workflow run with a final result.
type Stop struct {
	Base
	Result any
}

// NewStop constructs a Stop event.
func NewStop(result any) Stop {
	return Stop{Base: Base{EventName: "Stop"}, Result: result}
}

// StepFailed reports an unhandled step error. By default terminal for the
// run unless the producing step declares the error recoverable.
type StepFailed struct {
	Base
	Step      string
	ErrorKind string
	Message   string
	At        time.Time
}

// NewStepFailed constructs a StepFailed event.
func NewStepFailed(step, errorKind, message string, at time.Time) StepFailed {
	return StepFailed{Base: Base{EventName: "StepFailed"}, Step: step, ErrorKind: errorKind, Message: message, At: at}
}

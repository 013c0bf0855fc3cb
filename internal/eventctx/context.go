package eventctx

import (
	"context"
	"sync"

	"github.com/deepresearch/agentrunner/internal/rerr"
)

// RunContext owns the State Store, event stream, and pending-waiter table
// for a single workflow execution. It exclusively owns the Store and
// stream; sub-agents (§4.4) receive copies of relevant state, never a
// shared reference to this RunContext.
type RunContext struct {
	Store *Store

	resources map[string]any

	streamMu sync.Mutex
	stream   chan Event
	closed   bool
	closeSet sync.Once

	waitersMu sync.Mutex
	waiters   map[string]chan Event
}

// New constructs a RunContext with the given injected resources and a
// stream buffer of the given size (0 means unbuffered).
func New(resources map[string]any, streamBuffer int) *RunContext {
	if resources == nil {
		resources = map[string]any{}
	}
	return &RunContext{
		Store:     NewStore(),
		resources: resources,
		stream:    make(chan Event, streamBuffer),
		waiters:   make(map[string]chan Event),
	}
}

// Resource returns the injected resource registered under key.
func (rc *RunContext) Resource(key string) (any, bool) {
	v, ok := rc.resources[key]
	return v, ok
}

// Events returns the read side of the event stream for consumers (the UI,
// or a parent RunContext relaying a sub-agent's events verbatim).
func (rc *RunContext) Events() <-chan Event {
	return rc.stream
}

// WriteEventToStream publishes event non-blockingly onto the stream. Order
// of publication per producer goroutine is preserved by Go channel
// semantics; cross-producer ordering is unspecified. Publication never
// fails; if the stream is closed the event is silently dropped (the run has
// already ended).
func (rc *RunContext) WriteEventToStream(event Event) {
	rc.streamMu.Lock()
	defer rc.streamMu.Unlock()
	if rc.closed {
		return
	}
	select {
	case rc.stream <- event:
	default:
		// Buffer full: drop oldest-blocking semantics are not part of the
		// contract here, but we must never block a producer indefinitely.
		go func() { rc.stream <- event }()
	}
}

// Close closes the event stream. Safe to call multiple times.
func (rc *RunContext) Close() {
	rc.closeSet.Do(func() {
		rc.streamMu.Lock()
		rc.closed = true
		rc.streamMu.Unlock()
		close(rc.stream)
	})
}

// WaitForEvent publishes waiterEvent to the stream, then suspends until
// SendEvent delivers an event correlated by waiterID (of whatever name),
// honoring ctx cancellation. Implementations route the correlating HumanResponse via
// SendEvent.
func (rc *RunContext) WaitForEvent(ctx context.Context, waiterID string, waiterEvent Event) (Event, error) {
	ch := make(chan Event, 1)

	rc.waitersMu.Lock()
	rc.waiters[waiterID] = ch
	rc.waitersMu.Unlock()

	defer func() {
		rc.waitersMu.Lock()
		delete(rc.waiters, waiterID)
		rc.waitersMu.Unlock()
	}()

	rc.WriteEventToStream(waiterEvent)

	select {
	case ev := <-ch:
		return ev, nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, rerr.New(rerr.Timeout, "wait_for_event deadline exceeded")
		}
		return nil, rerr.New(rerr.Cancelled, "wait_for_event cancelled")
	}
}

// SendEvent delivers event to the waiter registered under waiterID, if any.
// Used by the HITL driver to deliver a HumanResponse.
func (rc *RunContext) SendEvent(waiterID string, event Event) bool {
	rc.waitersMu.Lock()
	ch, ok := rc.waiters[waiterID]
	rc.waitersMu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- event:
		return true
	default:
		return false
	}
}

// Snapshot returns a shallow copy suitable for handing the relevant state
// slice to a sub-agent's own RunContext. Callers are expected to deep-copy
// any mutable sub-record before passing it across, per §4.4's "copy
// semantics" contract — Snapshot only isolates the map itself.
func (rc *RunContext) Snapshot(key string, def any) any {
	return rc.Store.Get(key, def)
}

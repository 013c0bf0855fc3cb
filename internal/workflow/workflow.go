package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/deepresearch/agentrunner/internal/eventctx"
	"github.com/deepresearch/agentrunner/internal/rerr"
	"github.com/deepresearch/agentrunner/internal/telemetry"
)

// Workflow is an event-routed DAG of Steps built at startup: every emitted
// event is dispatched to every Step registered for its name, concurrently.
// The run ends when a Stop event is produced (or the per-run timeout
// expires, or the context is cancelled).
type Workflow struct {
	steps     map[string][]Step
	resources map[string]ResourceSpec
	logger    telemetry.Logger
}

// New constructs an empty Workflow.
func New(logger telemetry.Logger) *Workflow {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Workflow{
		steps:     make(map[string][]Step),
		resources: make(map[string]ResourceSpec),
		logger:    logger,
	}
}

// RegisterStep adds a step to the workflow. It may be called multiple times
// for the same event name: all registered steps fan out on that event.
func (w *Workflow) RegisterStep(s Step) {
	for _, name := range s.Handles {
		w.steps[name] = append(w.steps[name], s)
	}
}

// RegisterResource adds a named resource factory.
func (w *Workflow) RegisterResource(name string, spec ResourceSpec) {
	w.resources[name] = spec
}

// Validate checks that every step's declared resources are registered,
// catching the programmer error StepContext.Resource would otherwise panic
// on mid-run.
func (w *Workflow) Validate() error {
	for _, steps := range w.steps {
		for _, s := range steps {
			for _, name := range s.Resources {
				if _, ok := w.resources[name]; !ok {
					return fmt.Errorf("workflow: step %q requires unregistered resource %q", s.Name, name)
				}
			}
		}
	}
	return nil
}

// dispatchResult carries the events one step invocation emitted, or the
// error it failed with.
type dispatchResult struct {
	events []eventctx.Event
	err    error
}

// Run drives the workflow to completion: starting from start, it dispatches
// each event to every matching step concurrently, feeding emitted events
// back into the loop, until a Stop event is observed or timeout elapses. It
// returns the Stop event's Result, or an error describing why the run ended
// otherwise (Cancelled, Timeout, or the first StepFailed's kind/message).
func (w *Workflow) Run(ctx context.Context, rc *eventctx.RunContext, start eventctx.Event, timeout time.Duration) (any, error) {
	if err := w.Validate(); err != nil {
		return nil, rerr.Wrap(rerr.Invariant, "workflow validation failed", err)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resourceCache := make(map[string]map[string]any)
	var cacheMu sync.Mutex
	resourcesFor := func(s Step) (map[string]any, error) {
		cacheMu.Lock()
		defer cacheMu.Unlock()
		key := s.Name
		if cached, ok := resourceCache[key]; ok {
			return cached, nil
		}
		resolved, err := w.resolveResources(s.Resources)
		if err != nil {
			return nil, err
		}
		resourceCache[key] = resolved
		return resolved, nil
	}

	queue := []eventctx.Event{start}
	for len(queue) > 0 {
		select {
		case <-runCtx.Done():
			if runCtx.Err() == context.DeadlineExceeded {
				return nil, rerr.New(rerr.Timeout, "workflow run exceeded configured timeout")
			}
			return nil, rerr.New(rerr.Cancelled, "workflow run cancelled")
		default:
		}

		ev := queue[0]
		queue = queue[1:]

		rc.WriteEventToStream(ev)

		if stop, ok := ev.(eventctx.Stop); ok {
			return stop.Result, nil
		}

		matches := w.steps[ev.Name()]
		if len(matches) == 0 {
			continue
		}

		results := make([]dispatchResult, len(matches))
		var wg sync.WaitGroup
		for i, step := range matches {
			wg.Add(1)
			go func(i int, s Step) {
				defer wg.Done()
				resources, err := resourcesFor(s)
				if err != nil {
					results[i] = dispatchResult{err: err}
					return
				}
				sc := &StepContext{Run: rc, Logger: w.logger, resources: resources}
				out, err := s.Fn(runCtx, sc, ev)
				if err != nil {
					results[i] = dispatchResult{err: fmt.Errorf("step %q: %w", s.Name, err)}
					return
				}
				if out != nil {
					results[i] = dispatchResult{events: []eventctx.Event{out}}
				}
			}(i, step)
		}
		wg.Wait()

		select {
		case <-runCtx.Done():
			if runCtx.Err() == context.DeadlineExceeded {
				return nil, rerr.New(rerr.Timeout, "workflow run exceeded configured timeout")
			}
			return nil, rerr.New(rerr.Cancelled, "workflow run cancelled")
		default:
		}

		for i, res := range results {
			if res.err != nil {
				kind := rerr.KindOf(res.err)
				failed := eventctx.NewStepFailed(matches[i].Name, string(kind), res.err.Error(), time.Now())
				rc.WriteEventToStream(failed)
				if kind.Terminal() {
					return nil, res.err
				}
				continue
			}
			queue = append(queue, res.events...)
		}
	}

	return nil, rerr.New(rerr.Invariant, "workflow run ended without a Stop event")
}

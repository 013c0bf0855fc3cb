package workflow

import "fmt"

// ResourceFactory builds a resource for a run. Factories may themselves
// depend on other resources by identity (resolved acyclically by
// Workflow.resolveOne). Run caches resolved resources per step: a step's
// resources are built on its first dispatch and reused for the rest of the
// run, but two steps that declare the same resource each get their own
// build, so the factory runs once per declaring step.
type ResourceFactory func(deps map[string]any) (any, error)

// ResourceSpec binds a factory to the resources it depends on.
type ResourceSpec struct {
	DependsOn []string
	Factory   ResourceFactory
}

func (w *Workflow) resolveResources(names []string) (map[string]any, error) {
	resolved := make(map[string]any)
	visiting := make(map[string]bool)
	for _, name := range names {
		if err := w.resolveOne(name, resolved, visiting); err != nil {
			return nil, err
		}
	}
	out := make(map[string]any, len(names))
	for _, name := range names {
		out[name] = resolved[name]
	}
	return out, nil
}

func (w *Workflow) resolveOne(name string, resolved map[string]any, visiting map[string]bool) error {
	if _, ok := resolved[name]; ok {
		return nil
	}
	if visiting[name] {
		return fmt.Errorf("workflow: cyclic resource dependency involving %q", name)
	}
	spec, ok := w.resources[name]
	if !ok {
		return fmt.Errorf("workflow: resource %q is not registered", name)
	}
	visiting[name] = true
	deps := make(map[string]any, len(spec.DependsOn))
	for _, dep := range spec.DependsOn {
		if err := w.resolveOne(dep, resolved, visiting); err != nil {
			return err
		}
		deps[dep] = resolved[dep]
	}
	visiting[name] = false
	v, err := spec.Factory(deps)
	if err != nil {
		return fmt.Errorf("workflow: resource %q factory failed: %w", name, err)
	}
	resolved[name] = v
	return nil
}

// Package gateway composes one or more llm.Model backends behind a single
// routable Model, and layers schema validation plus bounded retry onto
// StructuredPredict for providers whose structured-output support is
// best-effort rather than guaranteed.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/deepresearch/agentrunner/internal/adapters/llm"
	"github.com/deepresearch/agentrunner/internal/agentloop"
	"github.com/deepresearch/agentrunner/internal/rerr"
	"github.com/deepresearch/agentrunner/internal/telemetry"
)

// Gateway routes model calls to a named backend and validates structured
// predictions against their declared schema, retrying with a corrective
// follow-up message when validation fails.
type Gateway struct {
	backends    map[string]llm.Model
	defaultName string
	logger      telemetry.Logger
	maxRetries  int
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger attaches a logger used to record validation retries.
func WithLogger(l telemetry.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithMaxRetries bounds the number of corrective retries StructuredPredict
// performs after a schema-validation failure. Default 2.
func WithMaxRetries(n int) Option {
	return func(g *Gateway) { g.maxRetries = n }
}

// New builds a Gateway routing to the given named backends. defaultName
// selects which backend Complete/StructuredPredict use when no override is
// supplied via context (see WithBackend).
func New(defaultName string, backends map[string]llm.Model, opts ...Option) (*Gateway, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("gateway: at least one backend is required")
	}
	if _, ok := backends[defaultName]; !ok {
		return nil, fmt.Errorf("gateway: default backend %q not registered", defaultName)
	}
	g := &Gateway{
		backends:    backends,
		defaultName: defaultName,
		logger:      telemetry.NewNoopLogger(),
		maxRetries:  2,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

type backendKey struct{}

// WithBackend returns a context that routes subsequent Gateway calls to the
// named backend instead of the default, letting callers pin a specific
// agent to e.g. the small/cheap model class.
func WithBackend(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, backendKey{}, name)
}

func (g *Gateway) resolve(ctx context.Context) (llm.Model, error) {
	name := g.defaultName
	if v, ok := ctx.Value(backendKey{}).(string); ok && v != "" {
		name = v
	}
	m, ok := g.backends[name]
	if !ok {
		return nil, fmt.Errorf("gateway: backend %q not registered", name)
	}
	return m, nil
}

// Complete implements llm.Model by delegating to the resolved backend.
func (g *Gateway) Complete(ctx context.Context, system string, messages []agentloop.Message, tools []agentloop.ToolSpec) (agentloop.Message, error) {
	m, err := g.resolve(ctx)
	if err != nil {
		return agentloop.Message{}, err
	}
	return m.Complete(ctx, system, messages, tools)
}

// StructuredPredict implements llm.Model. It validates the backend's output
// against schema and, on failure, appends a corrective user message
// describing the validation error and retries up to maxRetries times before
// giving up with an rerr.LLMError.
func (g *Gateway) StructuredPredict(ctx context.Context, system string, messages []agentloop.Message, schema json.RawMessage) (json.RawMessage, error) {
	m, err := g.resolve(ctx)
	if err != nil {
		return nil, err
	}

	compiled, err := compileSchema(schema)
	if err != nil {
		return nil, rerr.Wrap(rerr.Invariant, "structured predict schema is invalid", err)
	}

	history := append([]agentloop.Message(nil), messages...)
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		out, err := m.StructuredPredict(ctx, system, history, schema)
		if err != nil {
			return nil, rerr.Wrap(rerr.LLMError, "structured predict call failed", err)
		}
		if verr := validate(compiled, out); verr == nil {
			return out, nil
		} else if attempt == g.maxRetries {
			return nil, rerr.Wrap(rerr.LLMError, "structured predict output failed schema validation after retries", verr)
		} else {
			g.logger.Warn(ctx, "structured predict output failed validation, retrying",
				"attempt", attempt, "error", verr.Error())
			history = append(history, agentloop.Message{
				Role:    agentloop.RoleUser,
				Content: fmt.Sprintf("Your previous response did not match the required schema: %s. Respond again with a corrected JSON object only.", verr.Error()),
			})
		}
	}
	return nil, rerr.New(rerr.LLMError, "structured predict exhausted retries")
}

// LastUsage reports usage for the default backend; callers needing
// per-backend usage should track it via their own accounting hook, since a
// Gateway may route to different backends across calls.
func (g *Gateway) LastUsage() llm.Usage {
	if m, ok := g.backends[g.defaultName]; ok {
		return m.LastUsage()
	}
	return llm.Usage{}
}

func compileSchema(schema json.RawMessage) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	const resourceURL = "agentloop://structured-predict-schema.json"
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schema))
	if err != nil {
		return nil, err
	}
	if err := c.AddResource(resourceURL, doc); err != nil {
		return nil, err
	}
	return c.Compile(resourceURL)
}

func validate(schema *jsonschema.Schema, data json.RawMessage) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return schema.Validate(doc)
}

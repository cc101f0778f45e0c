// Package toolmesh provides a high-level façade over the selection and
// orchestration engine. Most applications interact with this package by:
//  1. Creating a ToolMesh via New() with a model and embedder
//  2. Registering capabilities (function, clock, document, HTTP tools) or
//     loading a YAML catalog
//  3. Calling Answer, or the individual SelectTools, DecomposeQuery and
//     ExecuteQuery operations
//
// The façade delegates to engine.Engine while keeping setup concise. Without
// a model or embedder every operation still works through deterministic
// fallbacks, which is convenient for local development and tests.
package toolmesh

import (
	"context"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/engine"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/metrics"
	"github.com/hupe1980/toolmesh/model"
	"github.com/hupe1980/toolmesh/registry"
	"github.com/hupe1980/toolmesh/tool"
)

// Options configures the ToolMesh instance.
type Options struct {
	// Engine configuration (request concurrency, answer selection size)
	EngineConfig engine.Config

	// Model generates intents, sub-questions and final answers (optional).
	Model model.Model

	// Embedder produces tool and query embeddings (optional).
	Embedder model.Embedder

	// Callbacks receives lifecycle events (optional).
	Callbacks *engine.CallbackManager

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// Metrics (defaults to a no-op recorder if nil)
	Metrics metrics.Recorder

	// EngineOptions are applied last and may override anything above.
	EngineOptions []func(o *engine.Options)
}

// ToolMesh is the high-level façade aggregating the underlying engine.
type ToolMesh struct {
	opts   Options
	engine *engine.Engine
}

// New creates a new ToolMesh instance with optional overrides.
func New(optFns ...func(o *Options)) *ToolMesh {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	e := engine.New(append([]func(o *engine.Options){func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Model = opts.Model
		o.Embedder = opts.Embedder
		o.Callbacks = opts.Callbacks
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
	}}, opts.EngineOptions...)...)

	return &ToolMesh{opts: opts, engine: e}
}

// Engine exposes the underlying engine.
func (m *ToolMesh) Engine() *engine.Engine { return m.engine }

// RegisterTool adds a capability to the registry.
func (m *ToolMesh) RegisterTool(ctx context.Context, c tool.Capability) error {
	return m.engine.RegisterTool(ctx, c)
}

// LoadCatalog registers every tool declared in a YAML catalog file.
func (m *ToolMesh) LoadCatalog(ctx context.Context, path string, optFns ...func(o *registry.CatalogOptions)) error {
	return m.engine.LoadCatalog(ctx, path, optFns...)
}

// Tools lists the metadata of every registered tool, sorted by name.
func (m *ToolMesh) Tools() []core.ToolMetadata { return m.engine.Registry().All() }

// SelectTools picks up to maxTools relevant tools for query.
func (m *ToolMesh) SelectTools(ctx context.Context, query string, maxTools int) (*core.Selection, error) {
	return m.engine.SelectTools(ctx, query, maxTools)
}

// DecomposeQuery plans query as dependency-ordered sub-questions.
func (m *ToolMesh) DecomposeQuery(ctx context.Context, query string) (*core.QueryDecomposition, error) {
	return m.engine.DecomposeQuery(ctx, query)
}

// ExecuteQuery runs a decomposition and synthesizes the final response.
func (m *ToolMesh) ExecuteQuery(ctx context.Context, dec *core.QueryDecomposition) (*core.ExecutionResult, error) {
	return m.engine.ExecuteQuery(ctx, dec)
}

// Answer answers query end to end, decomposing it only when it looks
// multi-step.
func (m *ToolMesh) Answer(ctx context.Context, query string) (*engine.Answer, error) {
	return m.engine.Answer(ctx, query)
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/decompose"
	"github.com/hupe1980/toolmesh/embedding"
	"github.com/hupe1980/toolmesh/lexical"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/metrics"
	"github.com/hupe1980/toolmesh/model"
	"github.com/hupe1980/toolmesh/orchestrator"
	"github.com/hupe1980/toolmesh/registry"
	"github.com/hupe1980/toolmesh/selector"
	"github.com/hupe1980/toolmesh/semantic"
	"github.com/hupe1980/toolmesh/tool"
)

// Config defines tuning parameters for the Engine's operational behavior.
//
// Component level tunables (weights, thresholds, timeouts) belong to the
// component options passed through Options; this struct only covers what
// the engine itself enforces.
//
// Example:
//
//	cfg := Config{
//	    MaxConcurrentRequests: 50,
//	    MaxTools: 3,
//	}
type Config struct {
	// MaxConcurrentRequests limits how many ExecuteQuery and Answer calls
	// run at once. Further calls wait for a slot or their context. Set to
	// 0 for unlimited.
	MaxConcurrentRequests int

	// MaxTools is the selection size used by Answer.
	MaxTools int
}

// DefaultConfig provides the default engine configuration.
//
// Configuration values:
//   - MaxConcurrentRequests: 10
//   - MaxTools: 3
var DefaultConfig = Config{
	MaxConcurrentRequests: 10,
	MaxTools:              3,
}

// Options configures an Engine instance using the functional options pattern.
//
// Only Model and Embedder connect to the outside world; everything else has
// an in-process default. The component option slices are applied after the
// engine has wired loggers, metrics and catalogs, so callers can override
// any of them.
//
// Example:
//
//	e := New(func(o *Options) {
//	    o.Model = openai.NewModel()
//	    o.Embedder = openai.NewEmbedder()
//	    o.Logger = logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	})
type Options struct {
	// Config contains operational parameters for the engine behavior.
	// Defaults to DefaultConfig if not specified.
	Config Config

	// Model generates intents, sub-questions and final answers. When nil
	// the engine uses deterministic fallbacks throughout.
	Model model.Model

	// Embedder produces tool and query embeddings. When nil selection is
	// keyword-only.
	Embedder model.Embedder

	// Callbacks receives lifecycle events. Defaults to an empty manager.
	Callbacks *CallbackManager

	// Logger provides structured logging. Defaults to NoOp.
	Logger logging.Logger

	// Metrics receives observations. Defaults to Noop.
	Metrics metrics.Recorder

	RegistryOptions     []func(o *registry.Options)
	IndexOptions        []func(o *embedding.Options)
	TrackerOptions      []func(o *semantic.TrackerOptions)
	LexicalOptions      []func(o *lexical.Options)
	SemanticOptions     []func(o *semantic.Options)
	SelectorOptions     []func(o *selector.Options)
	DecomposerOptions   []func(o *decompose.Options)
	OrchestratorOptions []func(o *orchestrator.Options)
}

// Engine wires the capability registry, both scorers, the ensemble selector,
// the decomposer and the orchestrator into one object with an explicit
// lifecycle. It is constructed once and is safe for concurrent use.
//
// Registry mutations go through the engine so the embedding index and the
// selection cache never serve stale tools:
//   - every mutation re-syncs the embedding index
//   - every mutation purges the selection cache
type Engine struct {
	registry     *registry.Registry
	index        *embedding.Index
	tracker      *semantic.PerformanceTracker
	selector     *selector.Selector
	decomposer   *decompose.Decomposer
	orchestrator *orchestrator.Orchestrator
	callbacks    *CallbackManager

	embedder model.Embedder
	config   Config
	logger   logging.Logger
	metrics  metrics.Recorder

	// syncMu serialises index syncs so concurrent registrations cannot
	// interleave a stale catalog snapshot.
	syncMu sync.Mutex

	// slots bounds concurrent requests; nil when unlimited.
	slots chan struct{}

	// Active request tracking for Cancel.
	activeRequests map[string]context.CancelFunc
	requestsMu     sync.Mutex
}

// New creates an Engine with its components wired together.
//
// Examples:
//
//	// Offline: keyword selection, template decomposition and synthesis
//	e := New()
//
//	// Full pipeline
//	e := New(func(o *Options) {
//	    o.Model = anthropic.NewModel()
//	    o.Embedder = openai.NewEmbedder()
//	    o.Metrics = metrics.NewPrometheus(prometheus.DefaultRegisterer)
//	})
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:    DefaultConfig,
		Callbacks: NewCallbackManager(),
		Logger:    logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	logger := logging.OrNoOp(opts.Logger)
	recorder := metrics.OrNoop(opts.Metrics)
	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}

	e := &Engine{
		callbacks:      opts.Callbacks,
		embedder:       opts.Embedder,
		config:         opts.Config,
		logger:         logging.ForComponent(logger, "engine"),
		metrics:        recorder,
		activeRequests: make(map[string]context.CancelFunc),
	}
	if opts.Config.MaxConcurrentRequests > 0 {
		e.slots = make(chan struct{}, opts.Config.MaxConcurrentRequests)
	}

	e.registry = registry.New(prepend(opts.RegistryOptions, func(o *registry.Options) {
		o.Logger = logging.ForComponent(logger, "registry")
	})...)

	e.tracker = semantic.NewPerformanceTracker(opts.TrackerOptions...)

	embedder := opts.Embedder
	if embedder == nil {
		embedder = unavailableEmbedder{}
	}
	e.index = embedding.New(embedder, prepend(opts.IndexOptions, func(o *embedding.Options) {
		o.Logger = logging.ForComponent(logger, "embedding")
	})...)

	lex := lexical.New(opts.LexicalOptions...)
	sem := semantic.New(e.index, embedder, e.tracker, prepend(opts.SemanticOptions, func(o *semantic.Options) {
		o.Logger = logging.ForComponent(logger, "semantic")
	})...)

	e.selector = selector.New(e.registry, lex, sem, prepend(opts.SelectorOptions, func(o *selector.Options) {
		o.Logger = logging.ForComponent(logger, "selector")
		o.Metrics = recorder
	})...)

	e.decomposer = decompose.New(opts.Model, prepend(opts.DecomposerOptions, func(o *decompose.Options) {
		o.Catalog = e.registry
		o.Logger = logging.ForComponent(logger, "decomposer")
		o.Metrics = recorder
	})...)

	e.orchestrator = orchestrator.New(e.registry, opts.Model, prepend(opts.OrchestratorOptions, func(o *orchestrator.Options) {
		o.Catalog = e.registry
		o.Selector = e.selector
		o.Tracker = e.tracker
		o.Observer = callbackObserver{engine: e}
		o.Logger = logging.ForComponent(logger, "orchestrator")
		o.Metrics = recorder
	})...)

	return e
}

func prepend[T any](fns []func(o *T), first func(o *T)) []func(o *T) {
	return append([]func(o *T){first}, fns...)
}

// Registry returns the capability registry. Mutating it directly bypasses
// index syncing and cache purging; use the engine's registration methods.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Tracker returns the per-tool performance tracker.
func (e *Engine) Tracker() *semantic.PerformanceTracker { return e.tracker }

// Callbacks returns the callback manager.
func (e *Engine) Callbacks() *CallbackManager { return e.callbacks }

// RegisterTool adds a capability and embeds its metadata.
//
// Registration succeeds even when the embedder is unavailable: the tool is
// then reachable through keyword triggers only until SyncIndex succeeds.
func (e *Engine) RegisterTool(ctx context.Context, c tool.Capability) error {
	if err := e.registry.Register(c); err != nil {
		return err
	}
	e.catalogChanged(ctx)
	return nil
}

// ReplaceTool swaps the capability registered under the same name.
func (e *Engine) ReplaceTool(ctx context.Context, c tool.Capability) error {
	if err := e.registry.Replace(c); err != nil {
		return err
	}
	e.catalogChanged(ctx)
	return nil
}

// UnregisterTool removes a capability and reports whether it existed.
func (e *Engine) UnregisterTool(ctx context.Context, name string) bool {
	if !e.registry.Unregister(name) {
		return false
	}
	e.catalogChanged(ctx)
	return true
}

// LoadCatalog registers every tool declared in the YAML catalog at path.
func (e *Engine) LoadCatalog(ctx context.Context, path string, optFns ...func(o *registry.CatalogOptions)) error {
	err := e.registry.LoadCatalog(path, optFns...)
	// tools registered before a failing entry stay registered
	e.catalogChanged(ctx)
	return err
}

// SyncIndex embeds tools whose metadata changed since the last sync. It
// returns an upstream error for tools that could not be embedded.
func (e *Engine) SyncIndex(ctx context.Context) error {
	if e.embedder == nil {
		return nil
	}
	e.syncMu.Lock()
	defer e.syncMu.Unlock()
	return e.index.Sync(ctx, e.registry.All())
}

func (e *Engine) catalogChanged(ctx context.Context) {
	if err := e.SyncIndex(ctx); err != nil {
		e.metrics.ObserveUpstreamFailure("embedding.sync")
		e.logger.Warn("engine.index.sync_failed", "error", err.Error())
	}
	e.selector.Cache().Purge()
	e.logger.Debug("engine.catalog.changed", "tools", e.registry.Len(), "version", e.registry.Version())
}

// SelectTools picks up to maxTools tools relevant to query. maxTools <= 0
// uses the selector default.
func (e *Engine) SelectTools(ctx context.Context, query string, maxTools int) (*core.Selection, error) {
	if err := e.fire(ctx, CallbackBeforeSelect, &CallbackContext{Query: query}); err != nil {
		return nil, err
	}
	sel, err := e.selector.SelectTools(ctx, query, maxTools)
	if err != nil {
		e.failed(ctx, query, err)
		return nil, err
	}
	e.notify(ctx, CallbackAfterSelect, &CallbackContext{Query: query, Selection: sel})
	return sel, nil
}

// DecomposeQuery plans query as an ordered set of sub-questions.
func (e *Engine) DecomposeQuery(ctx context.Context, query string) (*core.QueryDecomposition, error) {
	if err := e.fire(ctx, CallbackBeforeDecompose, &CallbackContext{Query: query}); err != nil {
		return nil, err
	}
	dec, err := e.decomposer.DecomposeQuery(ctx, query)
	if err != nil {
		e.failed(ctx, query, err)
		return nil, err
	}
	e.notify(ctx, CallbackAfterDecompose, &CallbackContext{Query: query, Decomposition: dec})
	return dec, nil
}

// ExecuteQuery executes dec. It waits for a request slot when
// MaxConcurrentRequests requests are already running. The request can be
// stopped with Cancel using the id reported in the result.
func (e *Engine) ExecuteQuery(ctx context.Context, dec *core.QueryDecomposition) (*core.ExecutionResult, error) {
	if dec == nil {
		return nil, core.NewError(core.KindInvalidInput, "engine.execute", errors.New("nil decomposition"))
	}

	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, done := e.track(ctx)
	defer done()

	res, err := e.orchestrator.ExecuteQuery(ctx, dec)
	if err != nil {
		e.failed(ctx, dec.OriginalQuery, err)
		return nil, err
	}
	return res, nil
}

// Route records which path Answer took.
type Route string

const (
	// RouteDirect answers with the selected tools in a single step.
	RouteDirect Route = "direct"
	// RouteDecomposed answers through decomposition and multi-step execution.
	RouteDecomposed Route = "decomposed"
)

// Answer is the result of Engine.Answer.
type Answer struct {
	Route Route `json:"route"`
	// Selection is set on the direct route.
	Selection *core.Selection `json:"selection,omitempty"`
	// Decomposition is set on the decomposed route and synthesized as a
	// single step on the direct route.
	Decomposition *core.QueryDecomposition `json:"decomposition"`
	Result        *core.ExecutionResult    `json:"result"`
}

// Answer routes query between the cheap single-shot path (select tools,
// run them as one step) and the decompose and execute path.
func (e *Engine) Answer(ctx context.Context, query string) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, core.NewError(core.KindInvalidInput, "engine.answer", errors.New("empty query"))
	}

	if decompose.NeedsDecomposition(query) {
		dec, err := e.DecomposeQuery(ctx, query)
		if err != nil {
			return nil, err
		}
		res, err := e.ExecuteQuery(ctx, dec)
		if err != nil {
			return nil, err
		}
		return &Answer{Route: RouteDecomposed, Decomposition: dec, Result: res}, nil
	}

	sel, err := e.SelectTools(ctx, query, e.config.MaxTools)
	if err != nil {
		return nil, err
	}
	dec := e.directDecomposition(query, sel)
	res, err := e.ExecuteQuery(ctx, dec)
	if err != nil {
		return nil, err
	}
	return &Answer{Route: RouteDirect, Selection: sel, Decomposition: dec, Result: res}, nil
}

// directDecomposition wraps a selection into a one-step plan.
func (e *Engine) directDecomposition(query string, sel *core.Selection) *core.QueryDecomposition {
	sq := core.SubQuestion{
		ID:            "1",
		Question:      query,
		Type:          core.TypeResearch,
		Priority:      core.MaxPriority,
		Dependencies:  []string{},
		ExpectedTools: append([]string(nil), sel.Tools...),
		Confidence:    sel.TopConfidence(),
	}
	score, level := decompose.ComplexityScore([]core.SubQuestion{sq})
	return &core.QueryDecomposition{
		OriginalQuery:   query,
		Intent:          core.IntentFactual,
		SubQuestions:    []core.SubQuestion{sq},
		ExecutionOrder:  []string{sq.ID},
		Complexity:      level,
		ComplexityScore: score,
		EstimatedTime:   e.decomposer.EstimateTime(1, level),
		Method:          core.DecompositionFallback,
	}
}

// Cancel stops a running request and reports whether it was active.
func (e *Engine) Cancel(requestID string) bool {
	e.requestsMu.Lock()
	defer e.requestsMu.Unlock()

	cancel, ok := e.activeRequests[requestID]
	if ok {
		cancel()
		delete(e.activeRequests, requestID)
	}
	return ok
}

// ActiveRequests returns the ids of the requests currently executing.
func (e *Engine) ActiveRequests() []string {
	e.requestsMu.Lock()
	defer e.requestsMu.Unlock()

	ids := make([]string, 0, len(e.activeRequests))
	for id := range e.activeRequests {
		ids = append(ids, id)
	}
	return ids
}

func (e *Engine) track(ctx context.Context) (context.Context, func()) {
	id, ok := orchestrator.RequestIDFromContext(ctx)
	if !ok {
		id = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(orchestrator.WithRequestID(ctx, id))

	e.requestsMu.Lock()
	e.activeRequests[id] = cancel
	e.requestsMu.Unlock()

	return ctx, func() {
		e.requestsMu.Lock()
		delete(e.activeRequests, id)
		e.requestsMu.Unlock()
		cancel()
	}
}

func (e *Engine) acquire(ctx context.Context) (func(), error) {
	if e.slots == nil {
		return func() {}, nil
	}
	select {
	case e.slots <- struct{}{}:
		return func() { <-e.slots }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("engine: waiting for request slot: %w", ctx.Err())
	}
}

// fire runs the callbacks of a Before* lifecycle point.
func (e *Engine) fire(ctx context.Context, t CallbackType, cc *CallbackContext) error {
	if cc.RequestID == "" {
		cc.RequestID, _ = orchestrator.RequestIDFromContext(ctx)
	}
	if err := e.callbacks.ExecuteCallbacks(ctx, t, cc); err != nil {
		e.logger.Warn("engine.callback.rejected", "type", t, "error", err.Error())
		return fmt.Errorf("%s callback: %w", t, err)
	}
	return nil
}

// notify runs the callbacks of an After* lifecycle point. Errors are logged.
func (e *Engine) notify(ctx context.Context, t CallbackType, cc *CallbackContext) {
	if cc.RequestID == "" {
		cc.RequestID, _ = orchestrator.RequestIDFromContext(ctx)
	}
	if err := e.callbacks.ExecuteCallbacks(ctx, t, cc); err != nil {
		e.logger.Warn("engine.callback.failed", "type", t, "error", err.Error())
	}
}

func (e *Engine) failed(ctx context.Context, query string, err error) {
	e.logger.Error("engine.operation.failed", "query", query, "kind", core.KindOf(err), "error", err.Error())
	e.notify(ctx, CallbackOnError, &CallbackContext{Query: query, Err: err})
}

type unavailableEmbedder struct{}

func (unavailableEmbedder) Embed(context.Context, string) ([]float64, error) {
	return nil, errors.New("no embedder configured")
}

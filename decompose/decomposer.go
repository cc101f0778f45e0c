// Package decompose splits complex requests into dependency-linked
// sub-questions, classifies their intent and complexity, and orders them
// topologically for execution.
package decompose

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/util"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/metrics"
	"github.com/hupe1980/toolmesh/model"
)

// Catalog lists the tools the generator may reference as expected tools.
type Catalog interface {
	All() []core.ToolMetadata
}

// Options configure a Decomposer.
type Options struct {
	// Catalog restricts expected tools to registered names. Optional.
	Catalog Catalog

	MinSubQuestions int
	MaxSubQuestions int

	// GenerateTimeout bounds each generation call.
	GenerateTimeout time.Duration

	// PerStepEstimate and MaxEstimatedTime drive EstimatedTime.
	PerStepEstimate  time.Duration
	MaxEstimatedTime time.Duration

	Logger  logging.Logger
	Metrics metrics.Recorder
}

// Decomposer turns a query into a QueryDecomposition. The dependency graph
// it builds belongs to one request and is not retained.
type Decomposer struct {
	model   model.Model
	opts    Options
	logger  logging.Logger
	metrics metrics.Recorder
}

// New creates a Decomposer. A nil model always takes the fallback path.
func New(m model.Model, optFns ...func(o *Options)) *Decomposer {
	opts := Options{
		MinSubQuestions:  3,
		MaxSubQuestions:  5,
		GenerateTimeout:  15 * time.Second,
		PerStepEstimate:  5 * time.Second,
		MaxEstimatedTime: 2 * time.Minute,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Decomposer{
		model:   m,
		opts:    opts,
		logger:  logging.OrNoOp(opts.Logger),
		metrics: metrics.OrNoop(opts.Metrics),
	}
}

// DecomposeQuery plans query. Generation failures and malformed output fall
// back to deterministic templates; a dependency cycle fails with
// core.ErrCircularDependency and yields no decomposition.
func (d *Decomposer) DecomposeQuery(ctx context.Context, query string) (*core.QueryDecomposition, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, core.NewError(core.KindInvalidInput, "decompose", fmt.Errorf("empty query"))
	}

	intent := d.ClassifyIntent(ctx, query)

	method := core.DecompositionGenerated
	subs, err := d.generate(ctx, query, intent)
	if err != nil {
		d.logger.Warn("decompose.fallback", "reason", err.Error(), "kind", core.KindOf(err))
		subs = fallbackSubQuestions(query, d.opts.MaxSubQuestions)
		method = core.DecompositionFallback
	}

	order, err := BuildExecutionOrder(subs)
	if err != nil {
		d.logger.Error("decompose.graph.failed", "error", err.Error())
		return nil, err
	}

	score, level := ComplexityScore(subs)
	dec := &core.QueryDecomposition{
		OriginalQuery:   query,
		Intent:          intent,
		SubQuestions:    subs,
		ExecutionOrder:  order,
		Complexity:      level,
		ComplexityScore: score,
		EstimatedTime:   d.EstimateTime(len(subs), level),
		Method:          method,
	}

	d.metrics.ObserveDecomposition(string(method), string(level))
	d.logger.Info("decompose.done",
		"intent", intent,
		"sub_questions", len(subs),
		"complexity", level,
		"method", method,
	)

	return dec, nil
}

// EstimateTime estimates the run time of a plan with count steps using the
// configured per-step estimate and cap.
func (d *Decomposer) EstimateTime(count int, c core.Complexity) time.Duration {
	return EstimateTime(count, c, d.opts.PerStepEstimate, d.opts.MaxEstimatedTime)
}

// ClassifyIntent asks the model for the request intent. Any failure yields
// core.IntentResearch.
func (d *Decomposer) ClassifyIntent(ctx context.Context, query string) core.Intent {
	if d.model == nil {
		return core.IntentResearch
	}
	intents := make([]string, len(core.Intents))
	for i, in := range core.Intents {
		intents[i] = string(in)
	}
	prompt, err := util.RenderTemplate(intentPrompt, map[string]any{"Query": query, "Intents": intents})
	if err != nil {
		return core.IntentResearch
	}

	text, err := d.call(ctx, "decompose.intent", intentInstructions, prompt)
	if err != nil {
		return core.IntentResearch
	}
	intent, ok := parseIntent(text)
	if !ok {
		d.logger.Warn("decompose.intent.unrecognised", "response", util.Truncate(text, 120))
	}
	return intent
}

func (d *Decomposer) generate(ctx context.Context, query string, intent core.Intent) ([]core.SubQuestion, error) {
	if d.model == nil {
		return nil, core.NewError(core.KindUpstreamUnavailable, "decompose.generate", fmt.Errorf("no model configured"))
	}

	var (
		tools []core.ToolMetadata
		known map[string]bool
	)
	if d.opts.Catalog != nil {
		tools = d.opts.Catalog.All()
		known = make(map[string]bool, len(tools))
		for _, t := range tools {
			known[t.Name] = true
		}
	}

	prompt, err := util.RenderTemplate(subQuestionPrompt, map[string]any{
		"Query":  query,
		"Intent": intent,
		"Min":    d.opts.MinSubQuestions,
		"Max":    d.opts.MaxSubQuestions,
		"Tools":  tools,
	})
	if err != nil {
		return nil, err
	}

	text, err := d.call(ctx, "decompose.generate", subQuestionInstructions, prompt)
	if err != nil {
		return nil, err
	}

	subs, dropped, err := parseSubQuestions(text, d.opts.MaxSubQuestions, known)
	if err != nil {
		return nil, err
	}
	if len(dropped) > 0 {
		d.logger.Warn("decompose.dependencies.dropped", "edges", dropped)
	}
	return subs, nil
}

func (d *Decomposer) call(ctx context.Context, op, instructions, prompt string) (string, error) {
	if d.opts.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.GenerateTimeout)
		defer cancel()
	}
	start := time.Now()
	resp, err := d.model.Generate(ctx, model.Request{
		Instructions: instructions,
		Prompt:       prompt,
		JSONMode:     true,
	})
	logging.LogGeneration(d.logger, op, time.Since(start), err)
	if err != nil {
		d.metrics.ObserveUpstreamFailure(op)
		return "", core.Upstream(op, err)
	}
	return resp.Text, nil
}

var multiStepCues = []string{" and also ", " then ", " after that ", "step by step", "as well as"}

// NeedsDecomposition reports whether query looks multi-step enough to go
// through the decomposer instead of single-shot selection.
func NeedsDecomposition(query string) bool {
	lower := " " + strings.ToLower(strings.TrimSpace(query)) + " "
	if strings.Count(lower, "?") > 1 || strings.Contains(lower, ";") {
		return true
	}
	if containsAny(lower, comparisonCues) || containsAny(lower, multiStepCues) {
		return true
	}
	if containsAny(lower, synthesisCues) && len(strings.Fields(lower)) > 8 {
		return true
	}
	return len(strings.Fields(lower)) > 25
}

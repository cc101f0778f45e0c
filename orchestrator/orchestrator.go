// Package orchestrator executes a QueryDecomposition step by step, invoking
// each step's tools, tolerating partial failure and synthesizing one answer
// from the completed steps.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/util"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/metrics"
	"github.com/hupe1980/toolmesh/model"
	"golang.org/x/sync/errgroup"
)

// Invoker runs a named capability.
type Invoker interface {
	Invoke(ctx context.Context, name, input string, cc *core.CallContext) (*core.ToolResult, error)
}

// Catalog resolves tool metadata. It decides whether a step may fan out.
type Catalog interface {
	Metadata(name string) (core.ToolMetadata, bool)
}

// ToolSelector picks tools for steps whose sub-question names none.
type ToolSelector interface {
	SelectTools(ctx context.Context, query string, maxTools int) (*core.Selection, error)
}

// PerformanceRecorder receives every tool outcome.
type PerformanceRecorder interface {
	Record(tool string, success bool, latency time.Duration)
}

// Options configure an Orchestrator.
type Options struct {
	Catalog  Catalog
	Selector ToolSelector
	Tracker  PerformanceRecorder
	Observer Observer

	// Parallelism bounds concurrent invocations inside one step.
	Parallelism int
	// MaxToolsPerStep bounds selector picks for steps without expected tools.
	MaxToolsPerStep int
	// MaxToolCalls is the per-request invocation budget; 0 is unlimited.
	MaxToolCalls int

	// ContextLimit truncates the prior result handed to the next tool.
	ContextLimit int
	// TemplateLimit truncates each step result in the fallback template.
	TemplateLimit int

	SynthesisTimeout time.Duration

	Logger  logging.Logger
	Metrics metrics.Recorder
}

// Orchestrator runs decompositions. It holds no per-request state.
type Orchestrator struct {
	invoker  Invoker
	model    model.Model
	opts     Options
	observer Observer
	logger   logging.Logger
	metrics  metrics.Recorder
}

// New creates an Orchestrator. A nil model always synthesizes by template.
func New(invoker Invoker, m model.Model, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Parallelism:      4,
		MaxToolsPerStep:  2,
		ContextLimit:     500,
		TemplateLimit:    400,
		SynthesisTimeout: 12 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	observer := opts.Observer
	if observer == nil {
		observer = NoopObserver{}
	}
	return &Orchestrator{
		invoker:  invoker,
		model:    m,
		opts:     opts,
		observer: observer,
		logger:   logging.OrNoOp(opts.Logger),
		metrics:  metrics.OrNoop(opts.Metrics),
	}
}

type requestIDKey struct{}

// WithRequestID returns a context that makes ExecuteQuery use id as the
// request id instead of generating one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id carried by ctx.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// request is the state of one ExecuteQuery call.
type request struct {
	id      string
	query   string
	limiter *core.CallLimiter
	logger  logging.Logger
}

// ExecuteQuery runs every step of dec in execution order. Step failures are
// recorded on the step and never abort the run; only a nil decomposition is
// an error.
func (o *Orchestrator) ExecuteQuery(ctx context.Context, dec *core.QueryDecomposition) (*core.ExecutionResult, error) {
	if dec == nil {
		return nil, core.NewError(core.KindInvalidInput, "orchestrator.execute", errors.New("nil decomposition"))
	}

	start := time.Now()
	id, ok := RequestIDFromContext(ctx)
	if !ok {
		id = uuid.NewString()
		ctx = WithRequestID(ctx, id)
	}
	req := &request{
		id:      id,
		query:   dec.OriginalQuery,
		limiter: core.NewCallLimiter(o.opts.MaxToolCalls),
		logger:  logging.ForRequest(o.logger, id),
	}
	req.logger.Info("orchestrator.execute.start", "steps", len(dec.ExecutionOrder))

	res := &core.ExecutionResult{
		RequestID: req.id,
		Query:     dec.OriginalQuery,
		Steps:     make([]core.ExecutionStep, 0, len(dec.ExecutionOrder)),
	}

	for _, id := range dec.ExecutionOrder {
		sq, ok := dec.SubQuestion(id)
		if !ok {
			req.logger.Warn("orchestrator.step.unknown", "sub_question_id", id)
			continue
		}
		res.Steps = append(res.Steps, o.runStep(ctx, req, sq))
	}

	res.OverallConfidence = core.MeanConfidence(res.Steps)
	res.Sources = collectSources(res.Steps)
	res.FinalResponse, res.Synthesis = o.synthesize(ctx, dec.OriginalQuery, res.CompletedSteps())
	res.TotalTimeMs = time.Since(start).Milliseconds()

	logging.LogExecution(req.logger, len(res.Steps), len(res.CompletedSteps()), res.OverallConfidence, time.Since(start),
		"synthesis", res.Synthesis,
	)

	return res, nil
}

func (o *Orchestrator) runStep(ctx context.Context, req *request, sq core.SubQuestion) core.ExecutionStep {
	step := core.ExecutionStep{
		ID:            uuid.NewString(),
		SubQuestionID: sq.ID,
		Question:      sq.Question,
		Tools:         append([]string(nil), sq.ExpectedTools...),
		Status:        core.StatusPending,
	}
	start := time.Now()
	_ = step.Start()

	defer func() {
		o.metrics.ObserveStep(string(step.Status), time.Since(start))
		o.observer.AfterStep(ctx, &step)
	}()

	if err := o.observer.BeforeStep(ctx, &step); err != nil {
		o.failStep(req, &step, err, start)
		return step
	}

	if len(step.Tools) == 0 {
		step.Tools = o.selectTools(ctx, req, sq)
	}
	if len(step.Tools) == 0 {
		o.failStep(req, &step, errors.New("no tools available for step"), start)
		return step
	}

	cc := core.NewCallContext(ctx, core.CallInfo{
		RequestID:     req.id,
		Query:         req.query,
		StepID:        step.ID,
		SubQuestionID: sq.ID,
	}, req.logger)

	if o.canFanOut(step.Tools) {
		step.Outcomes = o.fanOut(ctx, req, cc, step.ID, sq.Question, step.Tools)
	} else {
		step.Outcomes = o.sequential(ctx, req, cc, step.ID, sq.Question, step.Tools)
	}

	result, confidence, err := summarize(step.Outcomes)
	if err != nil {
		o.failStep(req, &step, err, start)
		return step
	}
	_ = step.Complete(result, confidence, time.Since(start))
	req.logger.Info("orchestrator.step.completed",
		"step_id", step.ID,
		"sub_question_id", step.SubQuestionID,
		"confidence", step.Confidence,
		"duration_ms", step.DurationMs,
	)
	return step
}

func (o *Orchestrator) failStep(req *request, step *core.ExecutionStep, cause error, start time.Time) {
	err := &core.Error{Kind: core.KindPartialStepFailure, Op: "orchestrator.step", ID: step.SubQuestionID, Err: cause}
	_ = step.Fail(err, time.Since(start))
	req.logger.Warn("orchestrator.step.failed",
		"step_id", step.ID,
		"sub_question_id", step.SubQuestionID,
		"error", err.Error(),
	)
}

func (o *Orchestrator) selectTools(ctx context.Context, req *request, sq core.SubQuestion) []string {
	if o.opts.Selector == nil {
		return nil
	}
	sel, err := o.opts.Selector.SelectTools(ctx, sq.Question, o.opts.MaxToolsPerStep)
	if err != nil {
		req.logger.Warn("orchestrator.step.select.failed", "sub_question_id", sq.ID, "error", err.Error())
		return nil
	}
	return sel.Tools
}

// canFanOut reports whether every tool of a multi-tool step is known and
// declared side-effect free.
func (o *Orchestrator) canFanOut(tools []string) bool {
	if len(tools) < 2 || o.opts.Catalog == nil {
		return false
	}
	for _, name := range tools {
		meta, ok := o.opts.Catalog.Metadata(name)
		if !ok || !meta.SideEffectFree {
			return false
		}
	}
	return true
}

func (o *Orchestrator) fanOut(ctx context.Context, req *request, cc *core.CallContext, stepID, question string, tools []string) []core.ToolOutcome {
	outcomes := make([]core.ToolOutcome, len(tools))

	var g errgroup.Group
	if o.opts.Parallelism > 0 {
		g.SetLimit(o.opts.Parallelism)
	}
	for i, name := range tools {
		g.Go(func() error {
			outcomes[i] = o.invoke(ctx, req, cc, stepID, name, question)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (o *Orchestrator) sequential(ctx context.Context, req *request, cc *core.CallContext, stepID, question string, tools []string) []core.ToolOutcome {
	outcomes := make([]core.ToolOutcome, 0, len(tools))

	prior := ""
	for _, name := range tools {
		if ctx.Err() != nil {
			outcomes = append(outcomes, core.ToolOutcome{Tool: name, Error: ctx.Err().Error()})
			continue
		}
		input := question
		if prior != "" {
			input = fmt.Sprintf("%s\n\nContext from previous tool:\n%s", question, prior)
		}
		out := o.invoke(ctx, req, cc.WithPrior(prior), stepID, name, input)
		outcomes = append(outcomes, out)
		if out.Succeeded() {
			prior = util.Truncate(out.Result.String(), o.opts.ContextLimit)
		}
	}

	return outcomes
}

// invoke runs one tool and converts every failure, including an exhausted
// call budget, into outcome data.
func (o *Orchestrator) invoke(ctx context.Context, req *request, cc *core.CallContext, stepID, name, input string) core.ToolOutcome {
	out := core.ToolOutcome{Tool: name}

	if err := o.observer.BeforeTool(ctx, stepID, name); err != nil {
		out.Error = err.Error()
		return out
	}
	defer func() { o.observer.AfterTool(ctx, stepID, out) }()

	if err := req.limiter.Acquire(name); err != nil {
		req.logger.Warn("orchestrator.tool.budget", "tool", name, "calls", req.limiter.Count())
		out.Error = err.Error()
		return out
	}

	start := time.Now()
	result, err := o.invoker.Invoke(ctx, name, input, cc)
	dur := time.Since(start)
	out.DurationMs = dur.Milliseconds()

	if err == nil && result == nil {
		err = errors.New("tool returned no result")
	}

	o.metrics.ObserveToolCall(name, dur, err)
	if o.opts.Tracker != nil {
		o.opts.Tracker.Record(name, err == nil, dur)
	}

	if err != nil {
		if core.IsUpstream(err) {
			o.metrics.ObserveUpstreamFailure("orchestrator.invoke")
		}
		req.logger.Warn("orchestrator.tool.failed", "step_id", stepID, "tool", name, "error", err.Error())
		out.Error = err.Error()
		return out
	}

	out.Result = result
	out.Confidence = ResultConfidence(result)
	req.logger.Debug("orchestrator.tool.done", "step_id", stepID, "tool", name, "confidence", out.Confidence)
	return out
}

// ResultConfidence returns result.Confidence when set, otherwise a heuristic
// on the result cardinality.
func ResultConfidence(result *core.ToolResult) float64 {
	if result == nil {
		return 0
	}
	if result.Confidence != nil {
		return clamp01(*result.Confidence)
	}
	switch {
	case result.Count >= 5:
		return 0.9
	case result.Count >= 2:
		return 0.8
	case result.Count == 1:
		return 0.7
	case strings.TrimSpace(result.String()) != "":
		return 0.5
	default:
		return 0.1
	}
}

// summarize merges the successful outcomes of a step. It fails when no
// tool succeeded, returning the last captured error.
func summarize(outcomes []core.ToolOutcome) (string, float64, error) {
	var (
		succeeded []core.ToolOutcome
		sum       float64
		lastErr   string
	)
	for _, out := range outcomes {
		if !out.Succeeded() {
			lastErr = fmt.Sprintf("%s: %s", out.Tool, out.Error)
			continue
		}
		succeeded = append(succeeded, out)
		sum += out.Confidence
	}
	if len(succeeded) == 0 {
		return "", 0, fmt.Errorf("all %d tools failed; last error %s", len(outcomes), lastErr)
	}

	var b strings.Builder
	for i, out := range succeeded {
		if i > 0 {
			b.WriteString("\n")
		}
		if len(succeeded) > 1 {
			b.WriteString("[" + out.Tool + "] ")
		}
		b.WriteString(out.Result.String())
	}
	return b.String(), sum / float64(len(succeeded)), nil
}

// collectSources gathers the sources of every successful outcome of the
// completed steps, including "sources" keys nested in structured data.
func collectSources(steps []core.ExecutionStep) []string {
	var all []string
	for _, s := range steps {
		if s.Status != core.StatusCompleted {
			continue
		}
		for _, out := range s.Outcomes {
			if !out.Succeeded() || out.Result == nil {
				continue
			}
			all = append(all, out.Result.Sources...)
			all = append(all, nestedSources(out.Result.Data)...)
		}
	}
	return util.DedupeStrings(all)
}

func nestedSources(data any) []string {
	var out []string
	switch v := data.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if k == "sources" {
				out = append(out, stringList(v[k])...)
				continue
			}
			out = append(out, nestedSources(v[k])...)
		}
	case []any:
		for _, item := range v {
			out = append(out, nestedSources(item)...)
		}
	}
	return out
}

func stringList(v any) []string {
	switch s := v.(type) {
	case string:
		return []string{s}
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

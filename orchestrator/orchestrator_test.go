package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/model"
	"github.com/hupe1980/toolmesh/registry"
	"github.com/hupe1980/toolmesh/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type invokeFunc func(input string, cc *core.CallContext) (*core.ToolResult, error)

type fakeInvoker struct {
	mu    sync.Mutex
	fns   map[string]invokeFunc
	calls []string
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{fns: map[string]invokeFunc{}}
}

func (f *fakeInvoker) on(name string, fn invokeFunc) *fakeInvoker {
	f.fns[name] = fn
	return f
}

func (f *fakeInvoker) Invoke(_ context.Context, name, input string, cc *core.CallContext) (*core.ToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	fn, ok := f.fns[name]
	f.mu.Unlock()
	if !ok {
		return nil, core.ErrToolNotFound
	}
	return fn(input, cc)
}

func (f *fakeInvoker) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeCatalog map[string]core.ToolMetadata

func (c fakeCatalog) Metadata(name string) (core.ToolMetadata, bool) {
	m, ok := c[name]
	return m, ok
}

type fakeTracker struct {
	mu      sync.Mutex
	records map[string][]bool
}

func (t *fakeTracker) Record(tool string, success bool, _ time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.records == nil {
		t.records = map[string][]bool{}
	}
	t.records[tool] = append(t.records[tool], success)
}

type fakeSelector struct {
	tools []string
	err   error
}

func (s fakeSelector) SelectTools(context.Context, string, int) (*core.Selection, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &core.Selection{Tools: s.tools}, nil
}

func textResult(text string, count int) invokeFunc {
	return func(string, *core.CallContext) (*core.ToolResult, error) {
		return &core.ToolResult{Text: text, Count: count}, nil
	}
}

func failing(msg string) invokeFunc {
	return func(string, *core.CallContext) (*core.ToolResult, error) {
		return nil, errors.New(msg)
	}
}

func decomposition(query string, subs ...core.SubQuestion) *core.QueryDecomposition {
	order := make([]string, len(subs))
	for i, s := range subs {
		order[i] = s.ID
	}
	return &core.QueryDecomposition{OriginalQuery: query, SubQuestions: subs, ExecutionOrder: order}
}

func sub(id, question string, tools ...string) core.SubQuestion {
	return core.SubQuestion{ID: id, Question: question, Type: core.TypeResearch, Priority: 3, ExpectedTools: tools}
}

func TestExecuteQuery_NilDecomposition(t *testing.T) {
	o := New(newFakeInvoker(), nil)
	_, err := o.ExecuteQuery(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestExecuteQuery_SideEffectFreeToolsFanOut(t *testing.T) {
	var arrived sync.WaitGroup
	arrived.Add(2)

	// each call blocks until both are in flight, which only happens when
	// the invocations run concurrently
	barrier := func(text string) invokeFunc {
		return func(string, *core.CallContext) (*core.ToolResult, error) {
			arrived.Done()
			done := make(chan struct{})
			go func() {
				arrived.Wait()
				close(done)
			}()
			select {
			case <-done:
				return &core.ToolResult{Text: text, Count: 1}, nil
			case <-time.After(2 * time.Second):
				return nil, errors.New("invocations did not overlap")
			}
		}
	}

	inv := newFakeInvoker().on("weather", barrier("sunny, 22C")).on("news", barrier("three headlines"))
	catalog := fakeCatalog{
		"weather": {Name: "weather", SideEffectFree: true},
		"news":    {Name: "news", SideEffectFree: true},
	}
	o := New(inv, nil, func(o *Options) { o.Catalog = catalog })

	res, err := o.ExecuteQuery(context.Background(), decomposition(
		"weather and news in Berlin",
		sub("1", "What is the weather and news in Berlin?", "weather", "news"),
	))
	require.NoError(t, err)
	require.Len(t, res.Steps, 1)

	step := res.Steps[0]
	assert.Equal(t, core.StatusCompleted, step.Status)
	require.Len(t, step.Outcomes, 2)
	assert.Equal(t, "weather", step.Outcomes[0].Tool)
	assert.Equal(t, "news", step.Outcomes[1].Tool)
	assert.Equal(t, "[weather] sunny, 22C\n[news] three headlines", step.Result)
	assert.InDelta(t, 0.7, step.Confidence, 1e-9)
}

func TestExecuteQuery_IndependentStepsBothComplete(t *testing.T) {
	inv := newFakeInvoker().
		on("weather", textResult("sunny", 1)).
		on("news", textResult("headlines", 3))
	o := New(inv, nil)

	res, err := o.ExecuteQuery(context.Background(), decomposition(
		"weather and news",
		sub("1", "What is the weather?", "weather"),
		sub("2", "What is in the news?", "news"),
	))
	require.NoError(t, err)
	require.Len(t, res.Steps, 2)
	assert.Len(t, res.CompletedSteps(), 2)
	assert.InDelta(t, (0.7+0.8)/2, res.OverallConfidence, 1e-9)
	assert.NotEmpty(t, res.RequestID)
	assert.NotEqual(t, res.Steps[0].ID, res.Steps[1].ID)
}

func TestExecuteQuery_SequentialPassesPriorResult(t *testing.T) {
	var seenPrior, seenInput string
	inv := newFakeInvoker().
		on("search", textResult(strings.Repeat("x", 50), 2)).
		on("summarize", func(input string, cc *core.CallContext) (*core.ToolResult, error) {
			seenPrior = cc.Prior()
			seenInput = input
			return &core.ToolResult{Text: "summary"}, nil
		})
	o := New(inv, nil, func(o *Options) {
		o.ContextLimit = 10
		o.Catalog = fakeCatalog{
			"search":    {Name: "search", SideEffectFree: true},
			"summarize": {Name: "summarize"},
		}
	})

	res, err := o.ExecuteQuery(context.Background(), decomposition("q", sub("1", "Find and summarize", "search", "summarize")))
	require.NoError(t, err)

	assert.Equal(t, "xxxxxxx...", seenPrior)
	assert.Contains(t, seenInput, "Find and summarize")
	assert.Contains(t, seenInput, "xxxxxxx...")
	assert.Equal(t, []string{"search", "summarize"}, inv.Calls())
	assert.Equal(t, core.StatusCompleted, res.Steps[0].Status)
}

func TestExecuteQuery_PartialFailure(t *testing.T) {
	inv := newFakeInvoker().
		on("ok", textResult("the only answer", 1)).
		on("broken", failing("backend down"))
	tracker := &fakeTracker{}
	o := New(inv, nil, func(o *Options) { o.Tracker = tracker })

	res, err := o.ExecuteQuery(context.Background(), decomposition(
		"three things",
		sub("1", "First failing question", "broken"),
		sub("2", "Working question", "ok"),
		sub("3", "Second failing question", "broken"),
	))
	require.NoError(t, err)
	require.Len(t, res.Steps, 3)

	assert.Equal(t, core.StatusFailed, res.Steps[0].Status)
	assert.Contains(t, res.Steps[0].Error, "backend down")
	assert.Zero(t, res.Steps[0].Confidence)
	assert.Equal(t, core.StatusCompleted, res.Steps[1].Status)
	assert.Equal(t, core.StatusFailed, res.Steps[2].Status)

	assert.InDelta(t, 0.7, res.OverallConfidence, 1e-9)
	assert.Equal(t, core.SynthesisTemplate, res.Synthesis)
	assert.Contains(t, res.FinalResponse, "Working question")
	assert.Contains(t, res.FinalResponse, "the only answer")
	assert.NotContains(t, res.FinalResponse, "failing")

	assert.Equal(t, []bool{false, false}, tracker.records["broken"])
	assert.Equal(t, []bool{true}, tracker.records["ok"])
}

func TestExecuteQuery_NothingCompleted(t *testing.T) {
	inv := newFakeInvoker().on("broken", failing("nope"))
	m := model.NewMockModel("synth").SetFallback(strings.Repeat("long answer ", 20))
	o := New(inv, m)

	res, err := o.ExecuteQuery(context.Background(), decomposition("q", sub("1", "a", "broken"), sub("2", "b", "missing")))
	require.NoError(t, err)

	assert.Zero(t, res.OverallConfidence)
	assert.Empty(t, res.CompletedSteps())
	assert.Equal(t, core.SynthesisTemplate, res.Synthesis)
	assert.Equal(t, "No results could be gathered for: q", res.FinalResponse)
	assert.Zero(t, m.Calls())
	assert.Empty(t, res.Sources)
}

func TestExecuteQuery_RecoversToolPanic(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(tool.NewFunctionTool(core.ToolMetadata{
		Name:        "explosive",
		Category:    core.CategoryUtility,
		Description: "always panics",
	}, nil, func(*core.CallContext, map[string]any) (*core.ToolResult, error) {
		panic("kaboom")
	})))
	o := New(reg, nil, func(o *Options) { o.Catalog = reg })

	res, err := o.ExecuteQuery(context.Background(), decomposition("q", sub("1", "boom?", "explosive")))
	require.NoError(t, err)

	step := res.Steps[0]
	assert.Equal(t, core.StatusFailed, step.Status)
	assert.Contains(t, step.Error, "kaboom")
	require.Len(t, step.Outcomes, 1)
	assert.Contains(t, step.Outcomes[0].Error, tool.CodePanic)
}

func TestExecuteQuery_SelectsToolsForUntaggedStep(t *testing.T) {
	inv := newFakeInvoker().on("clock", textResult("12:00", 1))

	o := New(inv, nil, func(o *Options) { o.Selector = fakeSelector{tools: []string{"clock"}} })
	res, err := o.ExecuteQuery(context.Background(), decomposition("q", sub("1", "What time is it?")))
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, res.Steps[0].Status)
	assert.Equal(t, []string{"clock"}, res.Steps[0].Tools)

	noSelector := New(inv, nil)
	res, err = noSelector.ExecuteQuery(context.Background(), decomposition("q", sub("1", "What time is it?")))
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, res.Steps[0].Status)
	assert.Contains(t, res.Steps[0].Error, "no tools")
}

func TestExecuteQuery_CallBudget(t *testing.T) {
	inv := newFakeInvoker().on("a", textResult("a", 1)).on("b", textResult("b", 1))
	o := New(inv, nil, func(o *Options) { o.MaxToolCalls = 1 })

	res, err := o.ExecuteQuery(context.Background(), decomposition("q", sub("1", "both", "a", "b")))
	require.NoError(t, err)

	step := res.Steps[0]
	assert.Equal(t, core.StatusCompleted, step.Status)
	assert.Equal(t, "a", step.Result)
	assert.Contains(t, step.Outcomes[1].Error, core.ErrCallBudgetExhausted.Error())
	assert.Equal(t, []string{"a"}, inv.Calls())
}

func TestExecuteQuery_CollectsSources(t *testing.T) {
	inv := newFakeInvoker().
		on("web", func(string, *core.CallContext) (*core.ToolResult, error) {
			return &core.ToolResult{
				Text:    "web",
				Sources: []string{"https://a.example", "https://b.example"},
				Data: map[string]any{
					"items": []any{
						map[string]any{"sources": []any{"https://b.example", "https://c.example"}},
					},
				},
			}, nil
		}).
		on("docs", func(string, *core.CallContext) (*core.ToolResult, error) {
			return &core.ToolResult{Text: "docs", Sources: []string{"doc-abcdef", "https://a.example"}}, nil
		}).
		on("broken", failing("x"))
	o := New(inv, nil)

	res, err := o.ExecuteQuery(context.Background(), decomposition("q",
		sub("1", "web", "web"),
		sub("2", "docs", "docs", "broken"),
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example", "https://c.example", "doc-abcdef"}, res.Sources)
}

type recordingObserver struct {
	NoopObserver
	mu     sync.Mutex
	events []string
	deny   string
}

func (r *recordingObserver) BeforeStep(_ context.Context, step *core.ExecutionStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "before:"+step.SubQuestionID)
	if step.SubQuestionID == r.deny {
		return errors.New("denied")
	}
	return nil
}

func (r *recordingObserver) AfterStep(_ context.Context, step *core.ExecutionStep) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "after:"+step.SubQuestionID+":"+string(step.Status))
}

func TestExecuteQuery_Observer(t *testing.T) {
	inv := newFakeInvoker().on("a", textResult("a", 1))
	obs := &recordingObserver{deny: "2"}
	o := New(inv, nil, func(o *Options) { o.Observer = obs })

	res, err := o.ExecuteQuery(context.Background(), decomposition("q", sub("1", "one", "a"), sub("2", "two", "a")))
	require.NoError(t, err)

	assert.Equal(t, core.StatusFailed, res.Steps[1].Status)
	assert.Contains(t, res.Steps[1].Error, "denied")
	assert.Equal(t, []string{"before:1", "after:1:completed", "before:2", "after:2:failed"}, obs.events)
	assert.Equal(t, []string{"a"}, inv.Calls())
}

func TestResultConfidence(t *testing.T) {
	tests := []struct {
		name   string
		result *core.ToolResult
		want   float64
	}{
		{"nil", nil, 0},
		{"explicit", &core.ToolResult{Count: 10, Confidence: core.Confidence(0.42)}, 0.42},
		{"clamped", &core.ToolResult{Confidence: core.Confidence(1.5)}, 1},
		{"many", &core.ToolResult{Count: 7}, 0.9},
		{"some", &core.ToolResult{Count: 3}, 0.8},
		{"one", &core.ToolResult{Count: 1}, 0.7},
		{"text only", &core.ToolResult{Text: "hello"}, 0.5},
		{"empty", &core.ToolResult{}, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ResultConfidence(tt.result), 1e-9)
		})
	}
}

func TestExecuteQuery_UsesRequestIDFromContext(t *testing.T) {
	var seen string
	inv := newFakeInvoker().on("a", func(_ string, cc *core.CallContext) (*core.ToolResult, error) {
		seen = cc.RequestID()
		return &core.ToolResult{Text: "a"}, nil
	})
	o := New(inv, nil)

	res, err := o.ExecuteQuery(WithRequestID(context.Background(), "req-42"), decomposition("q", sub("1", "one", "a")))
	require.NoError(t, err)
	assert.Equal(t, "req-42", res.RequestID)
	assert.Equal(t, "req-42", seen)
}

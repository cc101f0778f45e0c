package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallbackManager_ExecutesInOrderAndStopsOnError(t *testing.T) {
	cm := NewCallbackManager()
	var calls []string

	cm.RegisterCallback(NewFunctionCallback(CallbackBeforeSelect, func(_ context.Context, cc *CallbackContext) error {
		calls = append(calls, "first:"+string(cc.CallbackType))
		return nil
	}))
	cm.RegisterCallback(NewFunctionCallback(CallbackBeforeSelect, func(context.Context, *CallbackContext) error {
		calls = append(calls, "second")
		return errors.New("stop")
	}))
	cm.RegisterCallback(NewFunctionCallback(CallbackBeforeSelect, func(context.Context, *CallbackContext) error {
		calls = append(calls, "third")
		return nil
	}))

	err := cm.ExecuteCallbacks(context.Background(), CallbackBeforeSelect, &CallbackContext{})
	assert.EqualError(t, err, "stop")
	assert.Equal(t, []string{"first:before_select", "second"}, calls)

	assert.NoError(t, cm.ExecuteCallbacks(context.Background(), CallbackAfterSelect, &CallbackContext{}))
}

func TestLoggingCallback(t *testing.T) {
	var messages []string
	cb := NewLoggingCallback(CallbackAfterTool, func(m string) { messages = append(messages, m) })

	require.NoError(t, cb.Execute(context.Background(), &CallbackContext{
		RequestID: "r1",
		Outcome:   &core.ToolOutcome{Tool: "weather"},
	}))
	assert.Equal(t, []string{"[after_tool] request=r1 tool=weather ok=true"}, messages)

	assert.NoError(t, NewLoggingCallback(CallbackAfterTool, nil).Execute(context.Background(), &CallbackContext{}))
}

func TestEngine_ToolFilterCallbackDeniesInvocation(t *testing.T) {
	cm := NewCallbackManager()
	cm.RegisterCallback(NewToolFilterCallback(func(tool string) bool { return tool != "news" }))
	e := newTestEngine(t, func(o *Options) { o.Callbacks = cm })

	dec := testutil.NewDecompositionBuilder("weather and news").
		Step("1", "weather?", "weather").
		Step("2", "news?", "news").
		Build()
	res, err := e.ExecuteQuery(context.Background(), dec)
	require.NoError(t, err)

	assert.Equal(t, core.StatusCompleted, res.Steps[0].Status)
	assert.Equal(t, core.StatusFailed, res.Steps[1].Status)
	assert.Contains(t, res.Steps[1].Error, ErrToolDenied.Error())
}

func TestEngine_LifecycleCallbacks(t *testing.T) {
	cm := NewCallbackManager()
	var (
		mu     sync.Mutex
		events []CallbackType
		reqIDs = map[string]bool{}
	)
	record := func(_ context.Context, cc *CallbackContext) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, cc.CallbackType)
		if cc.RequestID != "" {
			reqIDs[cc.RequestID] = true
		}
		return nil
	}
	for _, ct := range []CallbackType{
		CallbackBeforeSelect, CallbackAfterSelect,
		CallbackBeforeStep, CallbackAfterStep,
		CallbackBeforeTool, CallbackAfterTool,
	} {
		cm.RegisterCallback(NewFunctionCallback(ct, record))
	}

	e := newTestEngine(t, func(o *Options) { o.Callbacks = cm })
	ans, err := e.Answer(context.Background(), "what time is it")
	require.NoError(t, err)

	assert.Equal(t, []CallbackType{
		CallbackBeforeSelect, CallbackAfterSelect,
		CallbackBeforeStep,
		CallbackBeforeTool, CallbackAfterTool,
		CallbackAfterStep,
	}, events)
	assert.Equal(t, map[string]bool{ans.Result.RequestID: true}, reqIDs)
}

func TestEngine_BeforeDecomposeCallbackAborts(t *testing.T) {
	cm := NewCallbackManager()
	cm.RegisterCallback(NewFunctionCallback(CallbackBeforeDecompose, func(context.Context, *CallbackContext) error {
		return errors.New("quota exceeded")
	}))
	var onError []error
	cm.RegisterCallback(NewFunctionCallback(CallbackOnError, func(_ context.Context, cc *CallbackContext) error {
		onError = append(onError, cc.Err)
		return nil
	}))
	e := newTestEngine(t, func(o *Options) { o.Callbacks = cm })

	_, err := e.DecomposeQuery(context.Background(), "compare a and b")
	assert.ErrorContains(t, err, "quota exceeded")
	assert.Empty(t, onError)
}

func TestEngine_OnErrorCallback(t *testing.T) {
	cm := NewCallbackManager()
	var onError []error
	cm.RegisterCallback(NewFunctionCallback(CallbackOnError, func(_ context.Context, cc *CallbackContext) error {
		onError = append(onError, cc.Err)
		return nil
	}))
	e := New(func(o *Options) { o.Callbacks = cm })

	_, err := e.SelectTools(context.Background(), "anything", 3)
	require.ErrorIs(t, err, core.ErrEmptyRegistry)
	require.Len(t, onError, 1)
	assert.ErrorIs(t, onError[0], core.ErrEmptyRegistry)
}

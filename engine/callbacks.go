package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/orchestrator"
)

// CallbackType defines the lifecycle points where callbacks can be executed.
//
// Callbacks hook into the engine's pipeline without modifying core logic:
//   - BeforeSelect/AfterSelect: around ensemble tool selection
//   - BeforeDecompose/AfterDecompose: around query decomposition
//   - BeforeStep/AfterStep: around each execution step
//   - BeforeTool/AfterTool: around individual tool invocations
//   - OnError: when an operation surfaces an error to the caller
//
// Callbacks run synchronously. An error returned from a Before* callback
// terminates the associated operation; errors from After* and OnError
// callbacks are logged and otherwise ignored.
type CallbackType string

const (
	// CallbackBeforeSelect is triggered before tools are selected for a query.
	CallbackBeforeSelect CallbackType = "before_select"

	// CallbackAfterSelect is triggered with the selection that was produced.
	CallbackAfterSelect CallbackType = "after_select"

	// CallbackBeforeDecompose is triggered before a query is decomposed.
	CallbackBeforeDecompose CallbackType = "before_decompose"

	// CallbackAfterDecompose is triggered with the finished decomposition.
	CallbackAfterDecompose CallbackType = "after_decompose"

	// CallbackBeforeStep is triggered when a step starts executing.
	// Returning an error fails the step.
	CallbackBeforeStep CallbackType = "before_step"

	// CallbackAfterStep is triggered once a step is completed or failed.
	CallbackAfterStep CallbackType = "after_step"

	// CallbackBeforeTool is triggered before a tool is invoked.
	// Returning an error fails that invocation only.
	CallbackBeforeTool CallbackType = "before_tool"

	// CallbackAfterTool is triggered with the outcome of a tool invocation.
	CallbackAfterTool CallbackType = "after_tool"

	// CallbackOnError is triggered when an operation returns an error.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries the information available at a lifecycle point.
// Fields irrelevant to the callback type are zero.
type CallbackContext struct {
	// RequestID identifies the ExecuteQuery or Answer call, when there is one.
	RequestID string

	// Query is the original user query.
	Query string

	// Selection is set for CallbackAfterSelect.
	Selection *core.Selection

	// Decomposition is set for CallbackAfterDecompose.
	Decomposition *core.QueryDecomposition

	// Step is set for the step callbacks. BeforeStep callbacks may inspect
	// but should not mutate it.
	Step *core.ExecutionStep

	// StepID and Tool are set for the tool callbacks.
	StepID string
	Tool   string

	// Outcome is set for CallbackAfterTool.
	Outcome *core.ToolOutcome

	// Err is set for CallbackOnError.
	Err error

	// CallbackType indicates which callback type triggered this execution.
	CallbackType CallbackType

	// Metadata provides extensible storage for custom callback data.
	Metadata map[string]any
}

// Callback defines the interface for execution lifecycle hooks.
//
// Implementations should be fast, since callbacks run synchronously on the
// request path, and safe for concurrent use, since BeforeTool and AfterTool
// fire from concurrent invocations inside one step.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	audit := NewFunctionCallback(
//	    CallbackAfterTool,
//	    func(ctx context.Context, cc *CallbackContext) error {
//	        log.Printf("tool %s finished: %v", cc.Tool, cc.Outcome.Succeeded())
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager routes callbacks to the lifecycle points they handle.
//
// Callbacks are executed in registration order, and any callback returning
// an error stops the remaining callbacks of that type. Registration and
// execution are safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback to the manager for its type.
//
// Example:
//
//	manager := NewCallbackManager()
//	manager.RegisterCallback(loggingCallback)
//	manager.RegisterCallback(NewToolFilterCallback(allowReadOnly))
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks executes all registered callbacks for the specified type
// and returns the first error.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	cm.mu.RLock()
	callbacks := cm.callbacks[callbackType]
	cm.mu.RUnlock()

	if len(callbacks) == 0 {
		return nil
	}

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}

	return nil
}

// LoggingCallback forwards lifecycle events to a logging function.
//
// Example:
//
//	logger := func(message string) {
//	    log.Printf("[TOOLMESH] %s", message)
//	}
//	callback := NewLoggingCallback(CallbackAfterStep, logger)
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the lifecycle event. A nil logger function makes it a no-op.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.logger == nil {
		return nil
	}

	message := fmt.Sprintf("[%s] request=%s", c.callbackType, callbackCtx.RequestID)
	switch {
	case callbackCtx.Outcome != nil:
		message += fmt.Sprintf(" tool=%s ok=%t", callbackCtx.Outcome.Tool, callbackCtx.Outcome.Succeeded())
	case callbackCtx.Tool != "":
		message += " tool=" + callbackCtx.Tool
	case callbackCtx.Step != nil:
		message += fmt.Sprintf(" step=%s status=%s", callbackCtx.Step.SubQuestionID, callbackCtx.Step.Status)
	case callbackCtx.Selection != nil:
		message += fmt.Sprintf(" tools=%v method=%s", callbackCtx.Selection.Tools, callbackCtx.Selection.Method)
	case callbackCtx.Decomposition != nil:
		message += fmt.Sprintf(" sub_questions=%d complexity=%s", len(callbackCtx.Decomposition.SubQuestions), callbackCtx.Decomposition.Complexity)
	case callbackCtx.Err != nil:
		message += " error=" + callbackCtx.Err.Error()
	}
	c.logger(message)
	return nil
}

// ToolFilterCallback vetoes tool invocations.
//
// The allow function receives the tool name before every invocation and
// returns false to deny it. Denied invocations fail with ErrToolDenied and
// the step continues with its remaining tools.
//
// Example:
//
//	readOnly := map[string]bool{"weather": true, "news": true}
//	callback := NewToolFilterCallback(func(tool string) bool {
//	    return readOnly[tool]
//	})
type ToolFilterCallback struct {
	allow func(tool string) bool
}

// ErrToolDenied is returned when a ToolFilterCallback rejects an invocation.
var ErrToolDenied = errors.New("tool invocation denied")

// NewToolFilterCallback creates a new tool filter callback.
func NewToolFilterCallback(allow func(tool string) bool) *ToolFilterCallback {
	return &ToolFilterCallback{allow: allow}
}

// Type returns the callback type (always CallbackBeforeTool).
func (c *ToolFilterCallback) Type() CallbackType {
	return CallbackBeforeTool
}

// Execute rejects tools the allow function denies.
func (c *ToolFilterCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.allow != nil && !c.allow(callbackCtx.Tool) {
		return fmt.Errorf("%w: %s", ErrToolDenied, callbackCtx.Tool)
	}
	return nil
}

// callbackObserver adapts a CallbackManager to orchestrator.Observer.
type callbackObserver struct {
	engine *Engine
}

var _ orchestrator.Observer = callbackObserver{}

func (o callbackObserver) BeforeStep(ctx context.Context, step *core.ExecutionStep) error {
	return o.engine.fire(ctx, CallbackBeforeStep, &CallbackContext{Step: step, Query: step.Question})
}

func (o callbackObserver) AfterStep(ctx context.Context, step *core.ExecutionStep) {
	o.engine.notify(ctx, CallbackAfterStep, &CallbackContext{Step: step, Query: step.Question})
}

func (o callbackObserver) BeforeTool(ctx context.Context, stepID, tool string) error {
	return o.engine.fire(ctx, CallbackBeforeTool, &CallbackContext{StepID: stepID, Tool: tool})
}

func (o callbackObserver) AfterTool(ctx context.Context, stepID string, outcome core.ToolOutcome) {
	o.engine.notify(ctx, CallbackAfterTool, &CallbackContext{StepID: stepID, Tool: outcome.Tool, Outcome: &outcome})
}

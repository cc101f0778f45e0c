package tool

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/util"
)

// InputKey is the argument name a plain-text input is bound to when the
// invocation input is not a JSON object.
const InputKey = "input"

// Func is the signature of a function backing a FunctionTool.
type Func func(cc *core.CallContext, args map[string]any) (*core.ToolResult, error)

// FunctionTool exposes a plain Go function as a Capability.
//
// Input handling: a JSON object input is decoded into args and validated
// against the parameter schema; any other input is passed as args["input"]
// and, when the schema has a single required string property, bound to that
// property as well.
//
// Error semantics:
//
//	*ToolError (returned directly)  -> forwarded unchanged
//	validation failure              -> *ToolError{Code: "VALIDATION_ERROR"}
//	other error                     -> *ToolError{Code: "EXECUTION_ERROR"}
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	meta       core.ToolMetadata
	parameters map[string]any
	fn         Func
}

// NewFunctionTool constructs a FunctionTool from metadata, an optional
// parameter schema and the implementation.
//
// Example:
//
//	weather := tool.NewFunctionTool(core.ToolMetadata{
//	  Name:           "weather",
//	  Category:       core.CategoryInformation,
//	  Triggers:       []string{"weather", "forecast"},
//	  Description:    "Current weather conditions for a city",
//	  SideEffectFree: true,
//	}, nil, func(cc *core.CallContext, args map[string]any) (*core.ToolResult, error) {
//	  return &core.ToolResult{Text: "sunny", Count: 1}, nil
//	})
func NewFunctionTool(meta core.ToolMetadata, parameters map[string]any, fn Func) *FunctionTool {
	if parameters == nil {
		parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return &FunctionTool{meta: meta, parameters: parameters, fn: fn}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection (see util.CreateSchema).
func NewFunctionToolFromStruct(meta core.ToolMetadata, structType any, fn Func) *FunctionTool {
	return NewFunctionTool(meta, util.CreateSchema(structType), fn)
}

// Metadata implements Capability.
func (t *FunctionTool) Metadata() core.ToolMetadata { return t.meta }

// Kind implements Capability.
func (t *FunctionTool) Kind() Kind { return KindFunction }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Invoke decodes and validates input, then calls the wrapped function.
func (t *FunctionTool) Invoke(cc *core.CallContext, input string) (*core.ToolResult, error) {
	logger := cc.Logger()
	start := time.Now()

	logger.Debug("tool.call.start", "tool", t.meta.Name, "step_id", cc.StepID())

	args, err := decodeArgs(input)
	if err != nil {
		return nil, &ToolError{
			Tool:    t.meta.Name,
			Message: fmt.Sprintf("decode input: %v", err),
			Code:    CodeValidation,
		}
	}

	if input, plain := args[InputKey].(string); plain && len(args) == 1 {
		if field, ok := util.PlainInputField(t.parameters); ok {
			args[field] = input
		}
	}

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.meta.Name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.meta.Name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(cc, args)
	if err != nil {
		toolErr := wrapError(t.meta.Name, err)
		logger.Error("tool.call.error", "tool", t.meta.Name, "code", toolErr.Code, "error", toolErr.Message)

		return nil, toolErr
	}
	if result == nil {
		result = &core.ToolResult{}
	}

	logger.Debug("tool.call.success", "tool", t.meta.Name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}

func decodeArgs(input string) (map[string]any, error) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "{") {
		return map[string]any{InputKey: input}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		return nil, err
	}
	return args, nil
}

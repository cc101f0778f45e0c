package testutil

import (
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/tool"
)

// ToolBuilder provides a fluent helper for constructing function tools.
// Example:
//
//	weather := NewToolBuilder("weather").
//	    Triggers("weather", "forecast").
//	    SideEffectFree().
//	    Returns("sunny", 1).
//	    Build()
type ToolBuilder struct {
	meta core.ToolMetadata
	fn   tool.Func
}

// NewToolBuilder creates a builder with category information and a
// description derived from name.
func NewToolBuilder(name string) *ToolBuilder {
	return &ToolBuilder{
		meta: core.ToolMetadata{
			Name:        name,
			Category:    core.CategoryInformation,
			Priority:    50,
			Description: name + " tool",
		},
		fn: func(_ *core.CallContext, args map[string]any) (*core.ToolResult, error) {
			input, _ := args[tool.InputKey].(string)
			return &core.ToolResult{Text: name + ": " + input, Count: 1}, nil
		},
	}
}

// Category sets the tool category (chainable).
func (b *ToolBuilder) Category(c core.Category) *ToolBuilder { b.meta.Category = c; return b }

// Priority sets the tool priority (chainable).
func (b *ToolBuilder) Priority(p int) *ToolBuilder { b.meta.Priority = p; return b }

// Description sets the description (chainable).
func (b *ToolBuilder) Description(d string) *ToolBuilder { b.meta.Description = d; return b }

// Triggers sets the trigger keywords (chainable).
func (b *ToolBuilder) Triggers(t ...string) *ToolBuilder { b.meta.Triggers = t; return b }

// Semantic sets the embedded text (chainable).
func (b *ToolBuilder) Semantic(s string) *ToolBuilder { b.meta.Semantic = s; return b }

// SideEffectFree marks the tool as safe for concurrent fan-out (chainable).
func (b *ToolBuilder) SideEffectFree() *ToolBuilder { b.meta.SideEffectFree = true; return b }

// Returns makes the tool return a fixed text result (chainable).
func (b *ToolBuilder) Returns(text string, count int) *ToolBuilder {
	b.fn = func(*core.CallContext, map[string]any) (*core.ToolResult, error) {
		return &core.ToolResult{Text: text, Count: count}, nil
	}
	return b
}

// Func replaces the tool implementation (chainable).
func (b *ToolBuilder) Func(fn tool.Func) *ToolBuilder { b.fn = fn; return b }

// Metadata returns the metadata built so far.
func (b *ToolBuilder) Metadata() core.ToolMetadata { return b.meta }

// Build returns the function tool.
func (b *ToolBuilder) Build() *tool.FunctionTool {
	return tool.NewFunctionTool(b.meta, nil, b.fn)
}

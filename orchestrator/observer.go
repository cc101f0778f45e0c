package orchestrator

import (
	"context"

	"github.com/hupe1980/toolmesh/core"
)

// Observer hooks into step and tool execution. An error from BeforeStep
// fails the step; an error from BeforeTool fails that invocation only.
type Observer interface {
	BeforeStep(ctx context.Context, step *core.ExecutionStep) error
	AfterStep(ctx context.Context, step *core.ExecutionStep)
	BeforeTool(ctx context.Context, stepID, tool string) error
	AfterTool(ctx context.Context, stepID string, outcome core.ToolOutcome)
}

// NoopObserver ignores every hook.
type NoopObserver struct{}

func (NoopObserver) BeforeStep(context.Context, *core.ExecutionStep) error { return nil }
func (NoopObserver) AfterStep(context.Context, *core.ExecutionStep)        {}
func (NoopObserver) BeforeTool(context.Context, string, string) error      { return nil }
func (NoopObserver) AfterTool(context.Context, string, core.ToolOutcome)   {}

package registry

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/tool"
)

type invokeResult struct {
	result *core.ToolResult
	err    error
}

// Invoke runs the named capability under the registry timeout. Panics are
// recovered into a *tool.ToolError with code PANIC; an exceeded budget is
// returned as a core timeout error even if the capability ignores ctx.
func (r *Registry) Invoke(ctx context.Context, name, input string, cc *core.CallContext) (*core.ToolResult, error) {
	c, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("registry.invoke: %w: %s", core.ErrToolNotFound, name)
	}
	if cc == nil {
		cc = core.NewCallContext(ctx, core.CallInfo{}, r.logger)
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.opts.InvokeTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, r.opts.InvokeTimeout)
	}
	defer cancel()

	start := time.Now()
	done := make(chan invokeResult, 1)

	go func() {
		var out invokeResult
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("registry.invoke.panic", "tool", name, "recover", rec, "stack", string(debug.Stack()))
				out = invokeResult{err: &tool.ToolError{Tool: name, Message: fmt.Sprintf("panic: %v", rec), Code: tool.CodePanic}}
			}
			done <- out
		}()
		out.result, out.err = c.Invoke(cc.WithContext(callCtx), input)
	}()

	select {
	case out := <-done:
		logging.LogToolCall(r.logger, name, time.Since(start), out.err)
		return out.result, out.err
	case <-callCtx.Done():
		r.logger.Warn("registry.invoke.timeout", "tool", name, "duration_ms", time.Since(start).Milliseconds())
		return nil, &core.Error{Kind: core.KindTimeout, Op: "registry.invoke", ID: name, Err: callCtx.Err()}
	}
}

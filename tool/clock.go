package tool

import (
	"time"

	"github.com/hupe1980/toolmesh/core"
)

// ClockOptions configure the clock tool.
type ClockOptions struct {
	Name     string
	Location *time.Location
	// Now is the time source; overridable in tests.
	Now func() time.Time
}

// ClockTool reports the current date and time.
type ClockTool struct {
	opts ClockOptions
}

// NewClockTool creates the clock capability.
func NewClockTool(optFns ...func(o *ClockOptions)) *ClockTool {
	opts := ClockOptions{
		Name:     "clock",
		Location: time.UTC,
		Now:      time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ClockTool{opts: opts}
}

// Metadata implements Capability.
func (t *ClockTool) Metadata() core.ToolMetadata {
	return core.ToolMetadata{
		Name:          t.opts.Name,
		Category:      core.CategoryUtility,
		Priority:      90,
		Triggers:      []string{"time", "what time", "time is it", "clock", "date", "today"},
		Description:   "Returns the current date and time",
		UsageExamples: []string{"what time is it", "what is today's date"},
		Semantic:      "current time clock date day of week timezone now today",
		// reading the clock never mutates anything
		SideEffectFree: true,
	}
}

// Kind implements Capability.
func (t *ClockTool) Kind() Kind { return KindClock }

// Invoke implements Capability.
func (t *ClockTool) Invoke(_ *core.CallContext, _ string) (*core.ToolResult, error) {
	now := t.opts.Now().In(t.opts.Location)
	return &core.ToolResult{
		Text: now.Format("Monday, 02 January 2006 15:04:05 MST"),
		Data: map[string]any{
			"rfc3339":  now.Format(time.RFC3339),
			"unix":     now.Unix(),
			"timezone": t.opts.Location.String(),
		},
		Count:      1,
		Confidence: core.Confidence(0.95),
	}, nil
}

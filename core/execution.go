package core

import (
	"errors"
	"fmt"
	"time"
)

// ToolResult is the value returned by a capability invocation.
type ToolResult struct {
	// Text is the human readable rendering of the result.
	Text string `json:"text"`
	// Data carries structured output. Nested "sources" keys are collected
	// into the execution result.
	Data any `json:"data,omitempty"`
	// Sources lists provenance references (URLs, document ids).
	Sources []string `json:"sources,omitempty"`
	// Count is the result cardinality (hits, rows, items). Used by the
	// confidence heuristic when Confidence is nil.
	Count int `json:"count"`
	// Confidence overrides the cardinality heuristic when set.
	Confidence *float64 `json:"confidence,omitempty"`
}

// String renders the result as text, falling back to Data.
func (r *ToolResult) String() string {
	if r == nil {
		return ""
	}
	if r.Text != "" {
		return r.Text
	}
	if r.Data != nil {
		return fmt.Sprintf("%v", r.Data)
	}
	return ""
}

// Confidence returns a pointer to c, for ToolResult.Confidence literals.
func Confidence(c float64) *float64 { return &c }

// StepStatus is the lifecycle state of an execution step.
type StepStatus string

const (
	StatusPending   StepStatus = "pending"
	StatusExecuting StepStatus = "executing"
	StatusCompleted StepStatus = "completed"
	StatusFailed    StepStatus = "failed"
)

// Terminal reports whether s is completed or failed.
func (s StepStatus) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// ToolOutcome records one tool invocation inside a step.
type ToolOutcome struct {
	Tool       string      `json:"tool"`
	Result     *ToolResult `json:"result,omitempty"`
	Confidence float64     `json:"confidence"`
	Error      string      `json:"error,omitempty"`
	DurationMs int64       `json:"duration_ms"`
}

// Succeeded reports whether the invocation returned without error.
func (o ToolOutcome) Succeeded() bool { return o.Error == "" }

// ExecutionStep is the runtime unit executing one sub-question's tools.
// Status only moves pending -> executing -> completed|failed.
type ExecutionStep struct {
	ID            string        `json:"id"`
	SubQuestionID string        `json:"sub_question_id"`
	Question      string        `json:"question"`
	Tools         []string      `json:"tools"`
	Status        StepStatus    `json:"status"`
	Result        string        `json:"result,omitempty"`
	Outcomes      []ToolOutcome `json:"outcomes,omitempty"`
	Confidence    float64       `json:"confidence"`
	Error         string        `json:"error,omitempty"`
	DurationMs    int64         `json:"duration_ms"`
}

// ErrStepTransition is returned for an illegal status change.
var ErrStepTransition = errors.New("illegal step transition")

// Start moves the step from pending to executing.
func (s *ExecutionStep) Start() error {
	if s.Status != StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrStepTransition, s.Status, StatusExecuting)
	}
	s.Status = StatusExecuting
	return nil
}

// Complete marks an executing step completed.
func (s *ExecutionStep) Complete(result string, confidence float64, dur time.Duration) error {
	if s.Status != StatusExecuting {
		return fmt.Errorf("%w: %s -> %s", ErrStepTransition, s.Status, StatusCompleted)
	}
	s.Status = StatusCompleted
	s.Result = result
	s.Confidence = confidence
	s.DurationMs = dur.Milliseconds()
	return nil
}

// Fail marks a non-terminal step failed with the captured error.
func (s *ExecutionStep) Fail(err error, dur time.Duration) error {
	if s.Status.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrStepTransition, s.Status, StatusFailed)
	}
	s.Status = StatusFailed
	if err != nil {
		s.Error = err.Error()
	}
	s.Confidence = 0
	s.DurationMs = dur.Milliseconds()
	return nil
}

// SynthesisMethod records how the final response was produced.
type SynthesisMethod string

const (
	SynthesisGenerated SynthesisMethod = "generated"
	SynthesisTemplate  SynthesisMethod = "template"
)

// ExecutionResult aggregates every step of one request.
type ExecutionResult struct {
	RequestID         string          `json:"request_id"`
	Query             string          `json:"query"`
	Steps             []ExecutionStep `json:"steps"`
	FinalResponse     string          `json:"final_response"`
	OverallConfidence float64         `json:"overall_confidence"`
	Sources           []string        `json:"sources"`
	TotalTimeMs       int64           `json:"total_time_ms"`
	Synthesis         SynthesisMethod `json:"synthesis"`
}

// CompletedSteps returns the steps whose status is completed.
func (r *ExecutionResult) CompletedSteps() []ExecutionStep {
	var out []ExecutionStep
	for _, s := range r.Steps {
		if s.Status == StatusCompleted {
			out = append(out, s)
		}
	}
	return out
}

// MeanConfidence is the arithmetic mean of completed steps' confidences,
// 0 when none completed.
func MeanConfidence(steps []ExecutionStep) float64 {
	var sum float64
	n := 0
	for _, s := range steps {
		if s.Status != StatusCompleted {
			continue
		}
		sum += s.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Package tool implements the capabilities toolmesh selects and invokes. Every
// variant satisfies the single Capability interface and declares its metadata
// (triggers, semantic text, side-effect freedom) so the selector and the
// orchestrator never need to know concrete types.
package tool

import (
	"fmt"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/util"
)

// Kind tags the concrete variant behind a Capability.
type Kind string

const (
	KindFunction Kind = "function"
	KindClock    Kind = "clock"
	KindDocument Kind = "document"
	KindHTTP     Kind = "http"
)

// Capability is a named, invokable unit of functionality.
//
// Implementations must be safe for concurrent use: the orchestrator fans out
// invocations of side-effect-free capabilities within one step.
type Capability interface {
	// Metadata returns the declared metadata used for registration, lexical
	// and semantic scoring, and scheduling.
	Metadata() core.ToolMetadata

	// Kind reports the variant tag.
	Kind() Kind

	// Invoke executes the capability. input is the sub-question (or raw
	// query) text, or a JSON object for schema-driven tools. Prior tool
	// output in a sequential step is available through cc.Prior().
	Invoke(cc *core.CallContext, input string) (*core.ToolResult, error)
}

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeTimeout    = "TIMEOUT"
	CodeNotFound   = "NOT_FOUND"
	CodePanic      = "PANIC"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// wrapError normalises err into a *ToolError, keeping existing codes.
func wrapError(tool string, err error) *ToolError {
	if toolErr, ok := err.(*ToolError); ok {
		return toolErr
	}
	return &ToolError{Tool: tool, Message: err.Error(), Code: CodeExecution}
}

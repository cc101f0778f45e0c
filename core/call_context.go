package core

import (
	"context"

	"github.com/hupe1980/toolmesh/logging"
)

// CallContext is the scoped surface handed to a capability on invocation. It
// carries the originating request, the step being executed and any context
// accumulated from earlier tools in the same step.
type CallContext struct {
	ctx           context.Context
	requestID     string
	query         string
	stepID        string
	subQuestionID string
	prior         string
	logger        logging.Logger
}

// CallInfo identifies the request and step a call belongs to.
type CallInfo struct {
	RequestID     string
	Query         string
	StepID        string
	SubQuestionID string
}

// NewCallContext constructs a call context bound to ctx.
func NewCallContext(ctx context.Context, info CallInfo, logger logging.Logger) *CallContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &CallContext{
		ctx:           ctx,
		requestID:     info.RequestID,
		query:         info.Query,
		stepID:        info.StepID,
		subQuestionID: info.SubQuestionID,
		logger:        logging.OrNoOp(logger),
	}
}

// Logger returns the logger scoped to the invocation. It is never nil.
func (cc *CallContext) Logger() logging.Logger { return cc.logger }

// Context returns the context associated with the invocation.
func (cc *CallContext) Context() context.Context { return cc.ctx }

// RequestID returns the request the invocation belongs to.
func (cc *CallContext) RequestID() string { return cc.requestID }

// Query returns the original user query.
func (cc *CallContext) Query() string { return cc.query }

// StepID returns the execution step id.
func (cc *CallContext) StepID() string { return cc.stepID }

// SubQuestionID returns the sub-question the step executes.
func (cc *CallContext) SubQuestionID() string { return cc.subQuestionID }

// Prior returns the (truncated) result of the preceding tool in a sequential
// step, or "" for the first tool and for concurrent fan-out.
func (cc *CallContext) Prior() string { return cc.prior }

// WithContext returns a copy bound to ctx.
func (cc *CallContext) WithContext(ctx context.Context) *CallContext {
	clone := *cc
	clone.ctx = ctx
	return &clone
}

// WithPrior returns a copy carrying prior as context from the previous tool.
func (cc *CallContext) WithPrior(prior string) *CallContext {
	clone := *cc
	clone.prior = prior
	return &clone
}

package core

import (
	"errors"
	"fmt"
	"sync"
)

// ErrCallBudgetExhausted is returned once a request has used its tool call budget.
var ErrCallBudgetExhausted = errors.New("tool call budget exhausted")

// CallLimiter enforces a maximum number of tool invocations per request.
type CallLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewCallLimiter creates a new limiter with a max number of calls.
// If max == 0, unlimited calls are allowed.
func NewCallLimiter(max int) *CallLimiter {
	return &CallLimiter{max: max}
}

// Acquire reserves one call. The reservation is not consumed when the
// budget is already exhausted.
func (cl *CallLimiter) Acquire(tool string) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.max > 0 && cl.count >= cl.max {
		return fmt.Errorf("%w: %s denied after %d calls", ErrCallBudgetExhausted, tool, cl.max)
	}
	cl.count++

	return nil
}

// Count returns the current number of calls made.
func (cl *CallLimiter) Count() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	return cl.count
}

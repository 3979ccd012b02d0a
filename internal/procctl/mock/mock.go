// Package mock provides a mock Controller for testing.
package mock

import (
	"sync"

	"github.com/egeaytac-dev/unlock-inspector/internal/procctl"
)

// TerminateCall records one Terminate invocation.
type TerminateCall struct {
	PID    uint32
	Forced bool
}

// Ensure Controller implements procctl.Controller at compile time.
var _ procctl.Controller = (*Controller)(nil)

// Controller is a mock implementation of procctl.Controller. By default every
// termination succeeds; individual PIDs can be configured to fail, and
// TerminateFunc replaces the behavior entirely when set.
type Controller struct {
	mu       sync.Mutex
	failures map[uint32]procctl.Result
	gone     map[uint32]bool

	// TerminateFunc, when set, replaces the default behavior.
	TerminateFunc func(pid uint32, forced bool) procctl.Result

	// TerminateCalls records every call, in order.
	TerminateCalls []TerminateCall
}

// New creates a mock controller where every termination succeeds.
func New() *Controller {
	return &Controller{
		failures: make(map[uint32]procctl.Result),
		gone:     make(map[uint32]bool),
	}
}

// FailPID makes terminations of pid return the given result.
func (c *Controller) FailPID(pid uint32, res procctl.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[pid] = res
}

// MarkGone makes pid report "already ended" (still a success).
func (c *Controller) MarkGone(pid uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gone[pid] = true
}

// Terminate implements procctl.Controller.
func (c *Controller) Terminate(pid uint32, forced bool) procctl.Result {
	c.mu.Lock()
	c.TerminateCalls = append(c.TerminateCalls, TerminateCall{PID: pid, Forced: forced})
	fail, failed := c.failures[pid]
	gone := c.gone[pid]
	c.mu.Unlock()

	if c.TerminateFunc != nil {
		return c.TerminateFunc(pid, forced)
	}
	if failed {
		return fail
	}
	if gone {
		return procctl.Result{OK: true, Message: procctl.MsgAlreadyEnded}
	}
	if forced {
		return procctl.Result{OK: true, Message: procctl.MsgTerminated}
	}
	return procctl.Result{OK: true, Message: procctl.MsgClosed}
}

// Reset clears configuration and call tracking.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = make(map[uint32]procctl.Result)
	c.gone = make(map[uint32]bool)
	c.TerminateCalls = nil
}

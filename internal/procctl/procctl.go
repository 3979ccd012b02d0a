// Package procctl terminates lock-owning processes. The Controller interface
// lets the deletion engine and the shell run against a mock in tests; System
// is the real implementation. Termination is idempotent: a process that is
// already gone counts as success, so concurrent callers targeting the same
// PID never see a spurious failure.
package procctl

import (
	"errors"
	"fmt"
	"os"

	"github.com/egeaytac-dev/unlock-inspector/internal/logsink"
)

// Result is the outcome of one termination request.
type Result struct {
	OK      bool
	Message string
}

// Controller requests process termination by PID.
type Controller interface {
	// Terminate asks the process to exit. Non-forced issues the normal exit
	// request; forced opens the process with termination rights and kills it
	// immediately. Callers must not assume file handles are released the
	// instant this returns: the OS releases them asynchronously.
	Terminate(pid uint32, forced bool) Result
}

// Canonical result messages.
const (
	MsgTerminated   = "terminated"
	MsgClosed       = "closed"
	MsgAlreadyEnded = "already ended"
	MsgAccessDenied = "access denied"
)

var _ Controller = (*System)(nil)

// System is the OS-backed Controller.
type System struct {
	sink logsink.Sink
}

// NewSystem creates a Controller backed by the operating system.
func NewSystem(sink logsink.Sink) *System {
	return &System{sink: logsink.OrNop(sink)}
}

// Terminate implements Controller.
func (s *System) Terminate(pid uint32, forced bool) Result {
	var res Result
	if forced {
		res = s.forceTerminate(pid)
	} else {
		res = s.gracefulTerminate(pid)
	}

	level := logsink.LevelSuccess
	if !res.OK {
		level = logsink.LevelError
	}
	s.sink.Record(fmt.Sprintf("terminate pid %d (forced=%t): %s", pid, forced, res.Message), level)
	return res
}

// gracefulTerminate requests a normal exit through the os package.
func (s *System) gracefulTerminate(pid uint32) Result {
	proc, err := os.FindProcess(int(pid))
	if err != nil {
		// Only Windows can fail here, and only for a PID that no longer maps
		// to a process.
		return Result{OK: true, Message: MsgAlreadyEnded}
	}

	if err := proc.Kill(); err != nil {
		return classifyKillError(err)
	}
	return Result{OK: true, Message: MsgClosed}
}

// classifyKillError maps a kill failure onto the controller's taxonomy.
func classifyKillError(err error) Result {
	switch {
	case errors.Is(err, os.ErrProcessDone):
		return Result{OK: true, Message: MsgAlreadyEnded}
	case os.IsPermission(err):
		return Result{OK: false, Message: MsgAccessDenied}
	default:
		return Result{OK: false, Message: err.Error()}
	}
}

//go:build windows

package procctl

import (
	"errors"

	"golang.org/x/sys/windows"
)

// forceTerminate opens the process with termination rights and kills it
// immediately. The handle is closed on every exit path.
func (s *System) forceTerminate(pid uint32) Result {
	handle, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, pid)
	if err != nil {
		switch {
		case errors.Is(err, windows.ERROR_ACCESS_DENIED):
			return Result{OK: false, Message: MsgAccessDenied}
		case errors.Is(err, windows.ERROR_INVALID_PARAMETER):
			// No process with this PID anymore.
			return Result{OK: true, Message: MsgAlreadyEnded}
		default:
			return Result{OK: false, Message: err.Error()}
		}
	}
	defer windows.CloseHandle(handle) //nolint:errcheck // Best effort close

	if err := windows.TerminateProcess(handle, 1); err != nil {
		return Result{OK: false, Message: err.Error()}
	}
	return Result{OK: true, Message: MsgTerminated}
}

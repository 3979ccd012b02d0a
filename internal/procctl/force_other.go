//go:build !windows

package procctl

import "os"

// forceTerminate falls back to a plain kill where process handles with
// termination rights do not exist as a concept.
func (s *System) forceTerminate(pid uint32) Result {
	proc, err := os.FindProcess(int(pid))
	if err != nil {
		return Result{OK: true, Message: MsgAlreadyEnded}
	}
	if err := proc.Kill(); err != nil {
		return classifyKillError(err)
	}
	return Result{OK: true, Message: MsgTerminated}
}

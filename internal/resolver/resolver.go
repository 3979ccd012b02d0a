// Package resolver defines the Resolver interface for discovering which
// processes hold an open handle on a file. The Windows implementation lives
// in the restartmgr subpackage; the mock subpackage provides an in-memory
// implementation for tests and demo mode. All consumers go through this
// interface so they never know which one they are talking to.
package resolver

import (
	"errors"
	"fmt"

	"github.com/egeaytac-dev/unlock-inspector/internal/logsink"
)

// AppClass categorizes a lock-owning process, derived from the facility's
// numeric application type.
type AppClass int

// Application classes reported for lock owners.
const (
	ClassUnknown AppClass = iota
	ClassApplication
	ClassService
	ClassShellExtension
	ClassConsoleSession
	ClassCriticalSystem
)

// String returns the short display name used by the CLI and TUI.
func (c AppClass) String() string {
	switch c {
	case ClassApplication:
		return "App"
	case ClassService:
		return "Service"
	case ClassShellExtension:
		return "Explorer"
	case ClassConsoleSession:
		return "Console"
	case ClassCriticalSystem:
		return "Critical"
	default:
		return "Unknown"
	}
}

// MarshalText renders the class by its display name, so JSON output carries
// "Service" rather than an opaque number.
func (c AppClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts the display names emitted by MarshalText. Anything
// unrecognized decodes as Unknown.
func (c *AppClass) UnmarshalText(text []byte) error {
	switch string(text) {
	case "App":
		*c = ClassApplication
	case "Service":
		*c = ClassService
	case "Explorer":
		*c = ClassShellExtension
	case "Console":
		*c = ClassConsoleSession
	case "Critical":
		*c = ClassCriticalSystem
	default:
		*c = ClassUnknown
	}
	return nil
}

// LockOwner is one process holding an open handle on a file. Owners are
// produced fresh on every query and never mutated afterwards.
type LockOwner struct {
	PID         uint32   `json:"pid"`
	DisplayName string   `json:"name"`
	Class       AppClass `json:"class"`
}

// Label renders the owner as the human-readable "name (PID: n)" form used
// in outcome records and diagnosis strings.
func (o LockOwner) Label() string {
	return fmt.Sprintf("%s (PID: %d)", o.DisplayName, o.PID)
}

// Finding pairs a path with the owners that held it open at resolution time.
// It owns its Owners slice; a consumer wanting fresh data re-resolves the path.
type Finding struct {
	Path   string      `json:"path"`
	Owners []LockOwner `json:"owners"`
}

// Resolver reports the processes currently holding a file open.
type Resolver interface {
	// Resolve returns the owners of path. A path with zero owners yields an
	// empty slice and a nil error. ErrUnsupported means the platform has no
	// lock-owner facility at all.
	Resolve(path string) ([]LockOwner, error)
}

// Resolver errors.
var (
	// ErrUnsupported is returned when the OS facility does not exist on this
	// platform.
	ErrUnsupported = errors.New("lock resolution not supported on this platform")
)

// ResolveQuiet resolves path, degrading every failure to "no owners known".
// Session failures, missing paths and unsupported platforms all come back as
// an empty list; the error is only surfaced to the sink. This is the form the
// scanner and deleter consume, since per-file resolution failure must never
// abort their protocols.
func ResolveQuiet(r Resolver, path string, sink logsink.Sink) []LockOwner {
	owners, err := r.Resolve(path)
	if err != nil {
		logsink.OrNop(sink).Record(fmt.Sprintf("resolve %s: %v", path, err), logsink.LevelDebug)
		return nil
	}
	return owners
}

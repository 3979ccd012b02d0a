//go:build !windows

package restartmgr

import (
	"github.com/egeaytac-dev/unlock-inspector/internal/logsink"
	"github.com/egeaytac-dev/unlock-inspector/internal/resolver"
)

var _ resolver.Resolver = (*Resolver)(nil)

// Resolver is the non-Windows stand-in. The Restart Manager does not exist
// here, so every query reports ErrUnsupported and callers going through
// resolver.ResolveQuiet see an empty owner list.
type Resolver struct{}

// New creates the unsupported-platform resolver. The sink is accepted for
// signature parity with the Windows constructor.
func New(_ logsink.Sink) *Resolver {
	return &Resolver{}
}

// Resolve always fails with ErrUnsupported.
func (r *Resolver) Resolve(string) ([]resolver.LockOwner, error) {
	return nil, resolver.ErrUnsupported
}

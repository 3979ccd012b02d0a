// Package mock provides an in-memory Resolver for testing and demo mode.
package mock

import (
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/egeaytac-dev/unlock-inspector/internal/resolver"
)

// Ensure both resolvers implement resolver.Resolver at compile time.
var (
	_ resolver.Resolver = (*Resolver)(nil)
	_ resolver.Resolver = (*Demo)(nil)
)

// Resolver is a mock implementation of resolver.Resolver. It maps paths to
// owner lists and provides hooks for injecting errors or custom behavior.
type Resolver struct {
	mu     sync.RWMutex
	owners map[string][]resolver.LockOwner

	// ResolveFunc, when set, replaces the default lookup entirely.
	ResolveFunc func(path string) ([]resolver.LockOwner, error)

	// ResolveCalls records every path passed to Resolve, in order.
	ResolveCalls []string
}

// New creates an empty mock resolver.
func New() *Resolver {
	return &Resolver{owners: make(map[string][]resolver.LockOwner)}
}

// SetOwners replaces the owner list reported for path.
func (r *Resolver) SetOwners(path string, owners []resolver.LockOwner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[path] = owners
}

// ClearOwners removes all owners for path, simulating a released lock.
func (r *Resolver) ClearOwners(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owners, path)
}

// Resolve returns the configured owners for path. Callers get a fresh slice
// on every query, never a shared one.
func (r *Resolver) Resolve(path string) ([]resolver.LockOwner, error) {
	r.mu.Lock()
	r.ResolveCalls = append(r.ResolveCalls, path)
	r.mu.Unlock()

	if r.ResolveFunc != nil {
		return r.ResolveFunc(path)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	owners := r.owners[path]
	out := make([]resolver.LockOwner, len(owners))
	copy(out, owners)
	return out, nil
}

// Reset clears all owners and call tracking.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners = make(map[string][]resolver.LockOwner)
	r.ResolveCalls = nil
}

// SeedOwners assigns count fake owners to path for demo output. Names and
// classes come from gofakeit so the shell has plausible data to render on
// hosts without the real facility.
func (r *Resolver) SeedOwners(path string, count int) {
	gofakeit.Seed(time.Now().UnixNano())

	classes := []resolver.AppClass{
		resolver.ClassApplication,
		resolver.ClassApplication,
		resolver.ClassService,
		resolver.ClassShellExtension,
		resolver.ClassConsoleSession,
	}

	owners := make([]resolver.LockOwner, 0, count)
	for i := 0; i < count; i++ {
		owners = append(owners, resolver.LockOwner{
			PID:         uint32(gofakeit.Number(100, 65000)),
			DisplayName: gofakeit.AppName(),
			Class:       classes[gofakeit.Number(0, len(classes)-1)],
		})
	}
	r.SetOwners(path, owners)
}

// Demo lazily fabricates owners for every rate-th path it is asked about,
// so demo scans show a plausible mix of locked and free files.
type Demo struct {
	inner *Resolver
	rate  int
}

// NewDemo creates a demo resolver. rate 1 locks every path, rate 3 roughly
// every third.
func NewDemo(rate int) *Demo {
	if rate < 1 {
		rate = 1
	}
	return &Demo{inner: New(), rate: rate}
}

// Resolve seeds owners on first sight of a selected path, then behaves like
// the plain mock.
func (d *Demo) Resolve(path string) ([]resolver.LockOwner, error) {
	owners, err := d.inner.Resolve(path)
	if err != nil || len(owners) > 0 {
		return owners, err
	}
	if pathHash(path)%d.rate != 0 {
		return nil, nil
	}
	d.inner.SeedOwners(path, 1+pathHash(path)%2)
	return d.inner.Resolve(path)
}

func pathHash(path string) int {
	h := 0
	for _, c := range path {
		h = h*31 + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}

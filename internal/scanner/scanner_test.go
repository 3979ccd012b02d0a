package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egeaytac-dev/unlock-inspector/internal/logsink"
	"github.com/egeaytac-dev/unlock-inspector/internal/resolver"
	resmock "github.com/egeaytac-dev/unlock-inspector/internal/resolver/mock"
)

// collect drains a scan's event channel into typed slices.
func collect(t *testing.T, sc *Scan) (progress []Progress, found []Found, done Done) {
	t.Helper()
	var sawDone bool
	for ev := range sc.Events() {
		switch e := ev.(type) {
		case Progress:
			progress = append(progress, e)
		case Found:
			found = append(found, e)
		case Done:
			done = e
			sawDone = true
		}
	}
	require.True(t, sawDone, "scan must emit Done before closing")
	return progress, found, done
}

func writeFiles(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	paths := make([]string, 0, len(names))
	for _, name := range names {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
		paths = append(paths, p)
	}
	return paths
}

func TestScan_SingleLockedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFiles(t, dir, "locked.txt")[0]

	res := resmock.New()
	res.SetOwners(path, []resolver.LockOwner{
		{PID: 100, DisplayName: "word.exe", Class: resolver.ClassApplication},
	})

	s := New(res, logsink.Nop())
	sc := s.Scan(path)
	progress, found, done := collect(t, sc)

	require.Len(t, progress, 1)
	assert.Equal(t, Progress{Processed: 1, Total: 1, Path: path}, progress[0])

	require.Len(t, found, 1)
	assert.Equal(t, path, found[0].Finding.Path)
	require.Len(t, found[0].Finding.Owners, 1)
	assert.Equal(t, "word.exe", found[0].Finding.Owners[0].DisplayName)

	assert.Equal(t, Done{Processed: 1, Locked: 1, Cancelled: false}, done)
	assert.Equal(t, StateCompleted, sc.State())
}

func TestScan_DirectoryEnumerationOrder(t *testing.T) {
	dir := t.TempDir()
	paths := writeFiles(t, dir, "a.txt", "b.txt", "c.txt")

	res := resmock.New()
	res.SetOwners(paths[1], []resolver.LockOwner{{PID: 1, DisplayName: "p", Class: resolver.ClassUnknown}})

	s := New(res, logsink.Nop())
	progress, found, done := collect(t, s.Scan(dir))

	require.Len(t, progress, 3)
	for i, p := range progress {
		assert.Equal(t, i+1, p.Processed, "processed must be strictly increasing")
		assert.Equal(t, 3, p.Total)
	}
	assert.LessOrEqual(t, done.Processed, 3)

	require.Len(t, found, 1)
	assert.Equal(t, paths[1], found[0].Finding.Path)
	assert.Equal(t, 1, done.Locked)

	// Walk order is deterministic, so findings follow enumeration order.
	assert.Equal(t, []string{paths[0], paths[1], paths[2]},
		[]string{progress[0].Path, progress[1].Path, progress[2].Path})
}

func TestScan_Cancellation(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.txt", "b.txt", "c.txt", "d.txt")

	release := make(chan struct{})
	res := resmock.New()
	res.ResolveFunc = func(string) ([]resolver.LockOwner, error) {
		<-release
		return nil, nil
	}

	s := New(res, logsink.Nop())
	sc := s.Scan(dir)

	// Wait until the first file is in flight, then cancel.
	ev := <-sc.Events()
	first, ok := ev.(Progress)
	require.True(t, ok)
	assert.Equal(t, 1, first.Processed)

	sc.Stop()
	close(release)

	_, found, done := collect(t, sc)
	assert.True(t, done.Cancelled)
	assert.Equal(t, 1, done.Processed, "no file beyond the cancellation point is processed")
	assert.Empty(t, found)
	assert.Equal(t, StateCancelled, sc.State())
}

func TestScan_ResolverErrorIsNoLock(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.txt", "b.txt")

	rec := &logsink.Recorder{}
	res := resmock.New()
	res.ResolveFunc = func(string) ([]resolver.LockOwner, error) {
		return nil, resolver.ErrUnsupported
	}

	s := New(res, rec)
	_, found, done := collect(t, s.Scan(dir))

	assert.Empty(t, found)
	assert.Equal(t, 2, done.Processed)
	assert.Equal(t, 0, done.Locked)
	assert.False(t, done.Cancelled)
}

func TestScan_MissingRoot(t *testing.T) {
	rec := &logsink.Recorder{}
	s := New(resmock.New(), rec)

	progress, found, done := collect(t, s.Scan(filepath.Join(t.TempDir(), "nope")))

	assert.Empty(t, progress)
	assert.Empty(t, found)
	assert.Equal(t, Done{Processed: 0, Locked: 0, Cancelled: false}, done)
	assert.NotEmpty(t, rec.Entries())
}

func TestScan_ProcessedNeverExceedsTotal(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a", "b", "c", "d", "e")

	s := New(resmock.New(), logsink.Nop())
	progress, _, done := collect(t, s.Scan(dir))

	for _, p := range progress {
		assert.LessOrEqual(t, p.Processed, p.Total)
	}
	assert.LessOrEqual(t, done.Processed, 5)
}

func TestScan_ExcludeGlobs(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "keep.txt", "skip.tmp", "also.tmp")

	s := New(resmock.New(), logsink.Nop())
	s.Exclude = []string{"*.tmp"}

	progress, _, done := collect(t, s.Scan(dir))

	require.Len(t, progress, 1)
	assert.Equal(t, filepath.Join(dir, "keep.txt"), progress[0].Path)
	assert.Equal(t, 1, done.Processed)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "completed", StateCompleted.String())
	assert.Equal(t, "cancelled", StateCancelled.String())
}

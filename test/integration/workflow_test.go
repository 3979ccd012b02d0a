//go:build integration

package integration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egeaytac-dev/unlock-inspector/internal/deleter"
	"github.com/egeaytac-dev/unlock-inspector/internal/logsink"
	procmock "github.com/egeaytac-dev/unlock-inspector/internal/procctl/mock"
	"github.com/egeaytac-dev/unlock-inspector/internal/report"
	"github.com/egeaytac-dev/unlock-inspector/internal/resolver"
	resmock "github.com/egeaytac-dev/unlock-inspector/internal/resolver/mock"
	"github.com/egeaytac-dev/unlock-inspector/internal/scanner"
)

// TestWorkflow_ScanKillDeleteReport drives the full pipeline end to end:
// scan a directory, terminate the holders of a locked file, delete it, and
// export a session report that records all of it.
func TestWorkflow_ScanKillDeleteReport(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dir := t.TempDir()
	locked := filepath.Join(dir, "locked.db")
	free := filepath.Join(dir, "free.txt")
	require.NoError(t, os.WriteFile(locked, []byte("data"), 0o600))
	require.NoError(t, os.WriteFile(free, []byte("data"), 0o600))

	res := resmock.New()
	res.SetOwners(locked, []resolver.LockOwner{
		{PID: 4100, DisplayName: "holder", Class: resolver.ClassApplication},
	})
	ctl := procmock.New()
	logs := &logsink.Recorder{}

	// Scan
	sc := scanner.New(res, logs)
	rec := report.NewRecorder(dir)

	var findings []resolver.Finding
	for ev := range sc.Scan(dir).Events() {
		switch ev := ev.(type) {
		case scanner.Found:
			findings = append(findings, ev.Finding)
			rec.AddFinding(ev.Finding)
		case scanner.Done:
			rec.FinishScan(ev.Processed, ev.Cancelled)
		}
	}

	require.Len(t, findings, 1)
	assert.Equal(t, locked, findings[0].Path)

	// Kill the holders
	for _, owner := range findings[0].Owners {
		result := ctl.Terminate(owner.PID, false)
		rec.AddKill(findings[0].Path, owner, false, result.OK, result.Message)
		assert.True(t, result.OK)
	}
	require.Len(t, ctl.TerminateCalls, 1)
	assert.Equal(t, uint32(4100), ctl.TerminateCalls[0].PID)

	// Holder gone, lock released
	res.ClearOwners(locked)

	// Delete
	del := deleter.New(res, ctl, logs)
	out := del.Delete(locked, true)
	rec.AddDelete(out)

	require.True(t, out.OK)
	assert.False(t, out.StillExists)
	_, statErr := os.Stat(locked)
	assert.True(t, os.IsNotExist(statErr), "file must actually be gone")

	// The unlocked file is untouched
	_, statErr = os.Stat(free)
	assert.NoError(t, statErr)

	// Export and reload the report
	reportDir := filepath.Join(dir, "reports")
	path, err := report.Save(rec.Session(), reportDir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var session report.Session
	require.NoError(t, json.Unmarshal(data, &session))

	assert.Equal(t, dir, session.Root)
	assert.Equal(t, 2, session.Scanned)
	require.Len(t, session.Locked, 1)
	require.Len(t, session.Actions, 2)
	assert.Equal(t, report.ActionClose, session.Actions[0].Kind)
	assert.Equal(t, report.ActionDelete, session.Actions[1].Kind)
	assert.True(t, session.Actions[1].OK)
}

// TestWorkflow_DeleteVerifiesSuccess checks the outcome contract on a real
// file system: a reported success means the file is actually gone, and a
// failure always carries a diagnosis.
func TestWorkflow_DeleteVerifiesSuccess(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dir := t.TempDir()
	stuck := filepath.Join(dir, "stuck.bin")
	require.NoError(t, os.WriteFile(stuck, []byte("x"), 0o600))

	res := resmock.New()
	res.ResolveFunc = func(string) ([]resolver.LockOwner, error) {
		return []resolver.LockOwner{{PID: 9, DisplayName: "ghost"}}, nil
	}

	del := deleter.New(res, procmock.New(), &logsink.Recorder{})
	out := del.Delete(stuck, true)

	if out.OK {
		assert.False(t, out.StillExists)
		_, statErr := os.Stat(stuck)
		assert.True(t, os.IsNotExist(statErr))
	} else {
		assert.True(t, out.StillExists)
		assert.NotEmpty(t, out.Diagnosis)
	}
	assert.NotEmpty(t, out.Terminated, "ghost holder was reported terminated")
}

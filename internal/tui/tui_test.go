package tui

import (
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egeaytac-dev/unlock-inspector/internal/deleter"
	"github.com/egeaytac-dev/unlock-inspector/internal/procctl"
	procmock "github.com/egeaytac-dev/unlock-inspector/internal/procctl/mock"
	"github.com/egeaytac-dev/unlock-inspector/internal/report"
	"github.com/egeaytac-dev/unlock-inspector/internal/resolver"
	resmock "github.com/egeaytac-dev/unlock-inspector/internal/resolver/mock"
	"github.com/egeaytac-dev/unlock-inspector/internal/scanner"
)

// updateModel is a helper that handles the Update return type.
func updateModel(m Model, msg tea.Msg) (Model, tea.Cmd) {
	newModel, cmd := m.Update(msg)
	return newModel.(Model), cmd
}

// keyPress builds a plain rune key message.
func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// withFindings puts a model straight into the results state.
func withFindings(m Model, findings ...resolver.Finding) Model {
	m.state = StateResults
	m.findings = findings
	m.recorder = report.NewRecorder(".")
	return m
}

func lockedBy(path string, pid uint32, name string) resolver.Finding {
	return resolver.Finding{
		Path:   path,
		Owners: []resolver.LockOwner{{PID: pid, DisplayName: name, Class: resolver.ClassApplication}},
	}
}

func TestModel_InitialState(t *testing.T) {
	m := New(resmock.New(), procmock.New(), Options{InitialPath: "/tmp/target"})

	assert.Equal(t, StateInput, m.state)
	assert.Equal(t, "/tmp/target", m.pathInput.Value())
}

func TestModel_EnterEmptyPath(t *testing.T) {
	m := New(resmock.New(), procmock.New(), Options{})

	m, _ = updateModel(m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, StateInput, m.state)
	assert.Error(t, m.err)
}

// TestModel_ScanToResults drives a full scan via the event pump commands.
func TestModel_ScanToResults(t *testing.T) {
	dir := t.TempDir()
	locked := filepath.Join(dir, "locked.db")
	free := filepath.Join(dir, "free.txt")
	require.NoError(t, os.WriteFile(locked, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(free, []byte("x"), 0o600))

	res := resmock.New()
	res.SetOwners(locked, []resolver.LockOwner{{PID: 99, DisplayName: "holder"}})

	m := New(res, procmock.New(), Options{InitialPath: dir})
	m, cmd := updateModel(m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, StateScanning, m.state)
	require.NotNil(t, cmd)

	// Pump scan events until the scan completes.
	for i := 0; i < 50 && m.state == StateScanning; i++ {
		require.NotNil(t, cmd, "pump stalled before Done")
		m, cmd = updateModel(m, cmd())
	}

	require.Equal(t, StateResults, m.state)
	assert.Equal(t, 2, m.processed)
	require.Len(t, m.findings, 1)
	assert.Equal(t, locked, m.findings[0].Path)
	assert.Equal(t, "1 locked file found", m.status)
}

func TestModel_ScanEventsUpdateProgress(t *testing.T) {
	m := New(resmock.New(), procmock.New(), Options{})
	m.state = StateScanning
	m.recorder = report.NewRecorder(".")
	m.scan = scanner.New(resmock.New(), nil).Scan(filepath.Join(t.TempDir(), "missing"))

	m, _ = updateModel(m, scanEventMsg{event: scanner.Progress{Processed: 3, Total: 9, Path: "a.txt"}})
	assert.Equal(t, 3, m.processed)
	assert.Equal(t, 9, m.total)

	m, _ = updateModel(m, scanEventMsg{event: scanner.Found{Finding: lockedBy("a.txt", 1, "app")}})
	assert.Len(t, m.findings, 1)

	m, _ = updateModel(m, scanEventMsg{event: scanner.Done{Processed: 9, Cancelled: true}})
	assert.Equal(t, StateResults, m.state)
	assert.True(t, m.cancelled)
}

func TestModel_ResultsNavigation(t *testing.T) {
	m := withFindings(New(resmock.New(), procmock.New(), Options{}),
		lockedBy("a", 1, "x"), lockedBy("b", 2, "y"), lockedBy("c", 3, "z"))

	assert.Equal(t, 0, m.cursor)

	m, _ = updateModel(m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.cursor)

	m, _ = updateModel(m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = updateModel(m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 2, m.cursor, "cursor must stop at the last finding")

	m, _ = updateModel(m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 1, m.cursor)
}

func TestModel_DeleteConfirmFlow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.txt")
	m := withFindings(New(resmock.New(), procmock.New(), Options{}), lockedBy(path, 1, "app"))

	// 'd' opens the confirmation dialog.
	m, _ = updateModel(m, keyPress("d"))
	require.Equal(t, StateConfirmDelete, m.state)

	// 'n' backs out without deleting.
	m, _ = updateModel(m, keyPress("n"))
	require.Equal(t, StateResults, m.state)
	assert.Len(t, m.findings, 1)

	// 'd' then 'y' runs the deletion.
	m, _ = updateModel(m, keyPress("d"))
	m, cmd := updateModel(m, keyPress("y"))
	require.Equal(t, StateResults, m.state)
	require.NotNil(t, cmd)

	msg := cmd()
	done, ok := msg.(deleteDoneMsg)
	require.True(t, ok)
	assert.True(t, done.outcome.OK, "deleting an absent file succeeds")

	m, _ = updateModel(m, msg)
	assert.Empty(t, m.findings, "deleted finding is removed from the list")
	assert.False(t, m.busy)
}

func TestModel_DeleteFailureKeepsFinding(t *testing.T) {
	m := withFindings(New(resmock.New(), procmock.New(), Options{}), lockedBy("stuck.txt", 1, "app"))

	m, _ = updateModel(m, deleteDoneMsg{outcome: deleterFailure("stuck.txt")})

	assert.Len(t, m.findings, 1)
	assert.Contains(t, m.status, "delete failed")
}

func TestModel_CloseOwnersRemovesCleanFinding(t *testing.T) {
	res := resmock.New()
	ctl := procmock.New()
	m := withFindings(New(res, ctl, Options{}), lockedBy("busy.txt", 42, "editor"))

	m, cmd := updateModel(m, keyPress("c"))
	require.NotNil(t, cmd)
	require.True(t, m.busy)

	msg := cmd()
	done, ok := msg.(killDoneMsg)
	require.True(t, ok)
	assert.False(t, done.forced)
	require.Len(t, ctl.TerminateCalls, 1)
	assert.Equal(t, uint32(42), ctl.TerminateCalls[0].PID)
	assert.False(t, ctl.TerminateCalls[0].Forced)

	// Mock resolver reports no owners after the kill, so the finding clears.
	m, _ = updateModel(m, msg)
	assert.Empty(t, m.findings)
	assert.False(t, m.busy)
}

func TestModel_ForceKillKeepsStubbornFinding(t *testing.T) {
	res := resmock.New()
	res.SetOwners("busy.txt", []resolver.LockOwner{{PID: 42, DisplayName: "editor"}})
	ctl := procmock.New()
	ctl.FailPID(42, procctl.Result{OK: false, Message: procctl.MsgAccessDenied})

	m := withFindings(New(res, ctl, Options{}), lockedBy("busy.txt", 42, "editor"))

	m, cmd := updateModel(m, keyPress("k"))
	require.NotNil(t, cmd)
	msg := cmd()
	done := msg.(killDoneMsg)
	assert.True(t, done.forced)

	m, _ = updateModel(m, msg)
	require.Len(t, m.findings, 1, "still-locked finding stays listed")
	assert.Contains(t, m.status, "failed")
}

func TestModel_ExportReport(t *testing.T) {
	dir := t.TempDir()
	m := withFindings(New(resmock.New(), procmock.New(), Options{ReportDir: dir}),
		lockedBy("a.txt", 1, "app"))

	m, cmd := updateModel(m, keyPress("e"))
	require.NotNil(t, cmd)

	msg := cmd()
	m, _ = updateModel(m, msg)

	require.NotEmpty(t, m.exportPath)
	assert.Equal(t, dir, filepath.Dir(m.exportPath))
	_, err := os.Stat(m.exportPath)
	assert.NoError(t, err)
}

func TestModel_QuitKeys(t *testing.T) {
	m := New(resmock.New(), procmock.New(), Options{})

	m, cmd := updateModel(m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, StateQuitting, m.state)
	assert.NotNil(t, cmd)
	assert.Empty(t, m.View())
}

func TestModel_ViewsRender(t *testing.T) {
	m := New(resmock.New(), procmock.New(), Options{KillLockers: true})
	assert.Contains(t, m.View(), "Unlock Inspector")

	m = withFindings(m, lockedBy("C:\\data\\report.xlsx", 4321, "Excel"))
	m.processed = 7
	view := m.View()
	assert.Contains(t, view, "7 files checked")
	assert.Contains(t, view, "report.xlsx")
	assert.Contains(t, view, "Excel (PID: 4321)")

	m.state = StateConfirmDelete
	confirm := m.View()
	assert.Contains(t, confirm, "Delete this file?")
	assert.Contains(t, confirm, "1 locking process will be terminated")
}

func TestDisplayPath_TruncatesLongPaths(t *testing.T) {
	long := "/very/long" + string(make([]byte, 100))
	assert.LessOrEqual(t, len(displayPath(long)), maxPathDisplay)
	assert.Equal(t, "/short", displayPath("/short"))
}

// deleterFailure builds a failed outcome for message-level tests.
func deleterFailure(path string) deleter.Outcome {
	return deleter.Outcome{
		Path:        path,
		Diagnosis:   "still locked by: app (PID: 1)",
		StillExists: true,
	}
}

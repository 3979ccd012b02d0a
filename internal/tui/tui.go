// Package tui provides the interactive unlock inspector using Bubble Tea.
package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/egeaytac-dev/unlock-inspector/internal/deleter"
	"github.com/egeaytac-dev/unlock-inspector/internal/logsink"
	"github.com/egeaytac-dev/unlock-inspector/internal/procctl"
	"github.com/egeaytac-dev/unlock-inspector/internal/report"
	"github.com/egeaytac-dev/unlock-inspector/internal/resolver"
	"github.com/egeaytac-dev/unlock-inspector/internal/scanner"
	"github.com/egeaytac-dev/unlock-inspector/internal/stringutil"
)

const (
	keyEsc   = "esc"
	keyCtrlC = "ctrl+c"

	visibleFindings = 10
	visibleLogLines = 8
	maxPathDisplay  = 60
)

// Color constants to avoid duplication (DRY).
const (
	colorPrimary = "#7D56F4"
	colorDim     = "#666666"
	colorError   = "#FF5F87"
	colorHelp    = "#626262"
	colorWhite   = "#FFFFFF"
	colorGreen   = "#87D787"
	colorBlue    = "#87CEEB"
	colorYellow  = "#FFD787"
)

// Styles for the TUI (SST - single source of truth for styling).
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorPrimary)).
			MarginBottom(1)

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorPrimary)).
			Bold(true)

	itemNormalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorWhite))

	itemDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorDim))

	ownerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorBlue)).
			PaddingLeft(4)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorError)).
			MarginTop(1)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorGreen))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorYellow))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorHelp)).
			MarginTop(1)

	confirmBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorPrimary)).
			Padding(1, 2)

	confirmTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color(colorPrimary)).
				MarginBottom(1)

	logPaneStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color(colorDim)).
			Padding(0, 1)
)

// State represents the current UI state.
type State int

// State constants for the TUI lifecycle.
const (
	StateInput State = iota
	StateScanning
	StateResults
	StateConfirmDelete
	StateQuitting
)

// ErrTUIUnexpectedModel is returned when the TUI returns an unexpected model type.
var ErrTUIUnexpectedModel = errors.New("unexpected TUI model type")

// Options configures the TUI behavior.
type Options struct {
	// InitialPath pre-fills the path input (from CLI args).
	InitialPath string
	// KillLockers enables clearing lock holders before deletion.
	KillLockers bool
	// Exclude lists glob patterns to skip during scans.
	Exclude []string
	// ReportDir is where exported session reports are written.
	ReportDir string
}

// Model is the Bubble Tea model for the unlock inspector.
type Model struct {
	res resolver.Resolver
	ctl procctl.Controller
	del *deleter.Deleter

	pathInput textinput.Model
	bar       progress.Model
	logs      *logsink.Recorder
	recorder  *report.Recorder

	state    State
	scan     *scanner.Scan
	findings []resolver.Finding
	cursor   int

	processed int
	total     int
	current   string
	cancelled bool

	opts       Options
	err        error
	status     string
	exportPath string
	width      int
	height     int
	busy       bool // An action command is in flight
}

// scanEventMsg carries one event from the scan goroutine.
type scanEventMsg struct{ event scanner.Event }

// killDoneMsg reports the outcome of clearing one finding's lock holders.
type killDoneMsg struct {
	path    string
	forced  bool
	results []procctl.Result
}

// deleteDoneMsg reports a completed deletion.
type deleteDoneMsg struct{ outcome deleter.Outcome }

// exportDoneMsg reports a report export.
type exportDoneMsg struct {
	path string
	err  error
}

// New creates a new TUI model.
func New(res resolver.Resolver, ctl procctl.Controller, opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = "Path to file or folder..."
	ti.Focus()
	ti.CharLimit = 512
	ti.Width = 60
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorPrimary))
	ti.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorWhite))
	if opts.InitialPath != "" {
		ti.SetValue(opts.InitialPath)
	}

	logs := &logsink.Recorder{}

	return Model{
		res:       res,
		ctl:       ctl,
		del:       deleter.New(res, ctl, logs),
		pathInput: ti,
		bar:       progress.New(progress.WithDefaultGradient()),
		logs:      logs,
		state:     StateInput,
		opts:      opts,
		width:     80,
		height:    24,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = min(msg.Width-10, 60)
		return m, nil

	case scanEventMsg:
		return m.handleScanEvent(msg.event)

	case killDoneMsg:
		m.busy = false
		return m.handleKillDone(msg)

	case deleteDoneMsg:
		m.busy = false
		return m.handleDeleteDone(msg.outcome)

	case exportDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.exportPath = msg.path
		m.logs.Record("report saved to "+msg.path, logsink.LevelSuccess)
		return m, nil
	}

	return m, nil
}

// handleScanEvent folds a scanner event into the model.
func (m Model) handleScanEvent(ev scanner.Event) (tea.Model, tea.Cmd) {
	switch ev := ev.(type) {
	case scanner.Progress:
		m.processed = ev.Processed
		m.total = ev.Total
		m.current = ev.Path
		return m, m.waitForEvent()

	case scanner.Found:
		m.findings = append(m.findings, ev.Finding)
		if m.recorder != nil {
			m.recorder.AddFinding(ev.Finding)
		}
		return m, m.waitForEvent()

	case scanner.Done:
		m.processed = ev.Processed
		m.cancelled = ev.Cancelled
		if m.recorder != nil {
			m.recorder.FinishScan(ev.Processed, ev.Cancelled)
		}
		m.state = StateResults
		m.cursor = 0
		if len(m.findings) == 0 {
			m.status = "no locked files found"
		} else {
			m.status = stringutil.Pluralize(len(m.findings), "locked file") + " found"
		}
		return m, nil
	}

	return m, m.waitForEvent()
}

// handleKeyMsg processes keyboard input based on current state.
func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == keyCtrlC {
		if m.scan != nil {
			m.scan.Stop()
		}
		m.state = StateQuitting
		return m, tea.Quit
	}

	switch m.state {
	case StateInput:
		return m.handleInputKeys(msg)
	case StateScanning:
		return m.handleScanningKeys(msg)
	case StateResults:
		return m.handleResultsKeys(msg)
	case StateConfirmDelete:
		return m.handleConfirmKeys(msg)
	case StateQuitting:
		return m, nil
	}
	return m, nil
}

// handleInputKeys handles the path entry screen.
func (m Model) handleInputKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case keyEsc:
		m.state = StateQuitting
		return m, tea.Quit

	case "enter":
		path := strings.TrimSpace(m.pathInput.Value())
		if path == "" {
			m.err = errors.New("enter a path to scan")
			return m, nil
		}
		return m.startScan(path)
	}

	var cmd tea.Cmd
	m.pathInput, cmd = m.pathInput.Update(msg)
	m.err = nil
	return m, cmd
}

// startScan resets scan state and launches the scanner.
func (m Model) startScan(path string) (tea.Model, tea.Cmd) {
	m.findings = nil
	m.processed = 0
	m.total = 0
	m.current = ""
	m.cancelled = false
	m.err = nil
	m.status = ""
	m.exportPath = ""
	m.logs.Reset()
	m.recorder = report.NewRecorder(path)

	sc := scanner.New(m.res, m.logs)
	sc.Exclude = m.opts.Exclude
	m.scan = sc.Scan(path)
	m.state = StateScanning

	return m, m.waitForEvent()
}

// handleScanningKeys allows cancelling a running scan.
func (m Model) handleScanningKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case keyEsc, "q", "s":
		if m.scan != nil {
			m.scan.Stop()
		}
		// Stay in scanning state; Done event moves us to results.
		return m, nil
	}
	return m, nil
}

// handleResultsKeys drives the findings list.
func (m Model) handleResultsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	//nolint:exhaustive // Only arrows handled by type, rest by string below
	switch msg.Type {
	case tea.KeyUp:
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case tea.KeyDown:
		if m.cursor < len(m.findings)-1 {
			m.cursor++
		}
		return m, nil
	default:
	}

	switch msg.String() {
	case keyEsc, "q":
		m.state = StateQuitting
		return m, tea.Quit

	case "n": // New scan
		m.state = StateInput
		m.pathInput.Focus()
		return m, textinput.Blink

	case "c": // Close processes gracefully
		return m.startKill(false)

	case "k": // Force kill processes
		return m.startKill(true)

	case "d": // Delete with confirmation
		if m.busy || m.cursor >= len(m.findings) {
			return m, nil
		}
		m.state = StateConfirmDelete
		return m, nil

	case "e": // Export session report
		if m.busy || m.recorder == nil {
			return m, nil
		}
		m.busy = true
		return m, m.exportReport()
	}

	return m, nil
}

// handleConfirmKeys handles the delete confirmation dialog.
func (m Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.state = StateResults
		return m.startDelete()
	case "n", "N", keyEsc, "q":
		m.state = StateResults
		return m, nil
	}
	return m, nil
}

// startKill launches termination of the selected finding's lock holders.
func (m Model) startKill(forced bool) (tea.Model, tea.Cmd) {
	if m.busy || m.cursor >= len(m.findings) {
		return m, nil
	}
	f := m.findings[m.cursor]
	if len(f.Owners) == 0 {
		return m, nil
	}

	m.busy = true
	ctl := m.ctl
	rec := m.recorder
	return m, func() tea.Msg {
		results := make([]procctl.Result, 0, len(f.Owners))
		for _, owner := range f.Owners {
			res := ctl.Terminate(owner.PID, forced)
			results = append(results, res)
			if rec != nil {
				rec.AddKill(f.Path, owner, forced, res.OK, res.Message)
			}
		}
		return killDoneMsg{path: f.Path, forced: forced, results: results}
	}
}

// handleKillDone refreshes the finding after a kill pass.
func (m Model) handleKillDone(msg killDoneMsg) (tea.Model, tea.Cmd) {
	failed := 0
	for _, r := range msg.results {
		if !r.OK {
			failed++
		}
	}

	verb := "closed"
	if msg.forced {
		verb = "killed"
	}
	if failed == 0 {
		m.status = fmt.Sprintf("%s %s", verb, stringutil.Pluralize(len(msg.results), "process"))
	} else {
		m.status = fmt.Sprintf("%s failed for %s", verb, stringutil.Pluralize(failed, "process"))
	}

	// Re-resolve: holders may have respawned or lingered.
	owners := resolver.ResolveQuiet(m.res, msg.path, m.logs)
	for i := range m.findings {
		if m.findings[i].Path != msg.path {
			continue
		}
		if len(owners) == 0 {
			m.findings = append(m.findings[:i], m.findings[i+1:]...)
			if m.cursor >= len(m.findings) && m.cursor > 0 {
				m.cursor--
			}
		} else {
			m.findings[i].Owners = owners
		}
		break
	}

	return m, nil
}

// startDelete launches deletion of the selected finding's path.
func (m Model) startDelete() (tea.Model, tea.Cmd) {
	if m.busy || m.cursor >= len(m.findings) {
		return m, nil
	}
	path := m.findings[m.cursor].Path

	m.busy = true
	del := m.del
	killLockers := m.opts.KillLockers
	rec := m.recorder
	return m, func() tea.Msg {
		out := del.Delete(path, killLockers)
		if rec != nil {
			rec.AddDelete(out)
		}
		return deleteDoneMsg{outcome: out}
	}
}

// handleDeleteDone folds a deletion outcome into the findings list.
func (m Model) handleDeleteDone(out deleter.Outcome) (tea.Model, tea.Cmd) {
	if out.OK {
		m.status = "deleted " + displayPath(out.Path)
		for i := range m.findings {
			if m.findings[i].Path == out.Path {
				m.findings = append(m.findings[:i], m.findings[i+1:]...)
				break
			}
		}
		if m.cursor >= len(m.findings) && m.cursor > 0 {
			m.cursor--
		}
	} else {
		m.status = "delete failed: " + out.Diagnosis
	}
	return m, nil
}

// exportReport writes the session report to the configured directory.
func (m Model) exportReport() tea.Cmd {
	rec := m.recorder
	dir := m.opts.ReportDir
	return func() tea.Msg {
		path, err := report.Save(rec.Session(), dir)
		return exportDoneMsg{path: path, err: err}
	}
}

// waitForEvent blocks on the scan event channel and wraps the next event.
func (m Model) waitForEvent() tea.Cmd {
	scan := m.scan
	return func() tea.Msg {
		ev, ok := <-scan.Events()
		if !ok {
			return scanEventMsg{event: scanner.Done{Processed: m.processed}}
		}
		return scanEventMsg{event: ev}
	}
}

// View renders the UI.
func (m Model) View() string {
	switch m.state {
	case StateQuitting:
		return ""
	case StateInput:
		return m.viewInput()
	case StateScanning:
		return m.viewScanning()
	case StateConfirmDelete:
		return m.viewConfirmDelete()
	case StateResults:
		return m.viewResults()
	}
	return ""
}

// viewInput renders the path entry screen.
func (m Model) viewInput() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Unlock Inspector"))
	b.WriteString("\n\n")
	b.WriteString(m.pathInput.View())
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("Enter: scan • Esc: quit"))
	return b.String()
}

// viewScanning renders the progress screen.
func (m Model) viewScanning() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Scanning..."))
	b.WriteString("\n\n")

	if m.total > 0 {
		b.WriteString(m.bar.ViewAs(float64(m.processed) / float64(m.total)))
		b.WriteString("\n")
		b.WriteString(itemDimStyle.Render(fmt.Sprintf("%d / %d  %s",
			m.processed, m.total, displayPath(m.current))))
	} else {
		b.WriteString(itemDimStyle.Render("gathering files..."))
	}
	b.WriteString("\n")

	if len(m.findings) > 0 {
		b.WriteString("\n")
		b.WriteString(warnStyle.Render(stringutil.Pluralize(len(m.findings), "locked file") + " so far"))
		b.WriteString("\n")
	}

	b.WriteString(m.viewLogPane())
	b.WriteString(helpStyle.Render("Esc: stop scan • Ctrl+C: quit"))
	return b.String()
}

// viewResults renders the findings list.
func (m Model) viewResults() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Scan Results"))
	b.WriteString("\n")

	summary := fmt.Sprintf("%s checked", stringutil.Pluralize(m.processed, "file"))
	if m.cancelled {
		summary += " (cancelled)"
	}
	b.WriteString(itemDimStyle.Render(summary))
	b.WriteString("\n\n")

	if len(m.findings) == 0 {
		b.WriteString(successStyle.Render("No locked files."))
		b.WriteString("\n")
	} else {
		b.WriteString(m.renderFindings())
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(successStyle.Render(m.status))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString(m.viewLogPane())
	b.WriteString(helpStyle.Render(
		"↑/↓: navigate • c: close • k: force kill • d: delete • e: export • n: new scan • q: quit"))
	return b.String()
}

// renderFindings renders the locked file list with their owners.
func (m Model) renderFindings() string {
	var b strings.Builder

	start, end := m.visibleRange()
	if start > 0 {
		b.WriteString(itemDimStyle.Render(fmt.Sprintf("  ↑ %d more above", start)))
		b.WriteString("\n")
	}

	for i := start; i < end; i++ {
		f := m.findings[i]
		line := displayPath(f.Path)
		if i == m.cursor {
			b.WriteString(cursorStyle.Render("> " + line))
		} else {
			b.WriteString(itemNormalStyle.Render("  " + line))
		}
		b.WriteString("\n")

		for _, owner := range f.Owners {
			b.WriteString(ownerStyle.Render(
				fmt.Sprintf("%s [%s]", owner.Label(), owner.Class)))
			b.WriteString("\n")
		}
	}

	if remaining := len(m.findings) - end; remaining > 0 {
		b.WriteString(itemDimStyle.Render(fmt.Sprintf("  ↓ %d more below", remaining)))
		b.WriteString("\n")
	}

	return b.String()
}

// visibleRange returns the window of findings to render around the cursor.
func (m Model) visibleRange() (start, end int) {
	total := len(m.findings)
	if total <= visibleFindings {
		return 0, total
	}

	half := visibleFindings / 2
	start = m.cursor - half
	if start < 0 {
		start = 0
	}
	end = start + visibleFindings
	if end > total {
		end = total
		start = end - visibleFindings
	}
	return start, end
}

// viewConfirmDelete renders the delete confirmation dialog.
func (m Model) viewConfirmDelete() string {
	if m.cursor >= len(m.findings) {
		return m.viewResults()
	}
	f := m.findings[m.cursor]

	var b strings.Builder
	b.WriteString(confirmTitleStyle.Render("Delete this file?"))
	b.WriteString("\n\n")
	b.WriteString(itemNormalStyle.Render(displayPath(f.Path)))
	b.WriteString("\n")
	if len(f.Owners) > 0 && m.opts.KillLockers {
		b.WriteString(warnStyle.Render(
			stringutil.Pluralize(len(f.Owners), "locking process") + " will be terminated"))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("[Y]es  [N]o"))

	return confirmBoxStyle.Render(b.String())
}

// viewLogPane renders the most recent log lines.
func (m Model) viewLogPane() string {
	entries := m.logs.Entries()
	if len(entries) == 0 {
		return "\n"
	}
	if len(entries) > visibleLogLines {
		entries = entries[len(entries)-visibleLogLines:]
	}

	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(styleFor(e.Level).Render(e.Message))
	}
	return "\n" + logPaneStyle.Render(b.String()) + "\n"
}

// styleFor maps a log level to its display style.
func styleFor(level logsink.Level) lipgloss.Style {
	switch level {
	case logsink.LevelError:
		return errorStyle
	case logsink.LevelWarn:
		return warnStyle
	case logsink.LevelSuccess:
		return successStyle
	case logsink.LevelDebug:
		return itemDimStyle
	default:
		return itemNormalStyle
	}
}

// displayPath shortens long paths for single-line display.
func displayPath(path string) string {
	return stringutil.Truncate(path, maxPathDisplay)
}

// Run starts the TUI and blocks until the user quits.
func Run(res resolver.Resolver, ctl procctl.Controller, opts Options) error {
	model := New(res, ctl, opts)
	p := tea.NewProgram(model, tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	if _, ok := finalModel.(Model); !ok {
		return ErrTUIUnexpectedModel
	}
	return nil
}

// Package report records what a scan and its follow-up actions did, and
// renders the record as text, JSON or YAML.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/egeaytac-dev/unlock-inspector/internal/deleter"
	"github.com/egeaytac-dev/unlock-inspector/internal/resolver"
	"github.com/egeaytac-dev/unlock-inspector/internal/stringutil"
)

// Action kinds.
const (
	ActionClose  = "close"
	ActionKill   = "force_kill"
	ActionDelete = "delete"
)

// Schema version written into every report.
const Version = "1"

// LockedFile is one finding: a path plus the processes holding it.
type LockedFile struct {
	Path   string   `json:"path" yaml:"path"`
	Owners []string `json:"owners" yaml:"owners"`
}

// Action records one operation the user performed on a finding.
type Action struct {
	Kind      string    `json:"kind" yaml:"kind"`
	Path      string    `json:"path,omitempty" yaml:"path,omitempty"`
	PID       uint32    `json:"pid,omitempty" yaml:"pid,omitempty"`
	Target    string    `json:"target,omitempty" yaml:"target,omitempty"`
	OK        bool      `json:"ok" yaml:"ok"`
	Detail    string    `json:"detail,omitempty" yaml:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	// Delete actions carry the full attempt trail.
	Attempts   []deleter.Attempt `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	Terminated []string          `json:"terminated,omitempty" yaml:"terminated,omitempty"`
	Diagnosis  string            `json:"diagnosis,omitempty" yaml:"diagnosis,omitempty"`
}

// Session is one scan plus everything done with its results.
type Session struct {
	Version   string        `json:"version" yaml:"version"`
	Root      string        `json:"root" yaml:"root"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	EndedAt   time.Time     `json:"ended_at" yaml:"ended_at"`
	Duration  time.Duration `json:"duration_ns" yaml:"duration_ns"`
	Scanned   int           `json:"scanned" yaml:"scanned"`
	Cancelled bool          `json:"cancelled" yaml:"cancelled"`
	Locked    []LockedFile  `json:"locked" yaml:"locked"`
	Actions   []Action      `json:"actions" yaml:"actions"`
}

// Recorder accumulates a Session as the scan and actions happen. Thread-safe.
type Recorder struct {
	mu      sync.Mutex
	session Session
}

// NewRecorder starts a session record for a scan rooted at root.
func NewRecorder(root string) *Recorder {
	return &Recorder{session: Session{
		Version:   Version,
		Root:      root,
		StartedAt: time.Now(),
	}}
}

// AddFinding records a locked file found by the scan.
func (r *Recorder) AddFinding(f resolver.Finding) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owners := make([]string, 0, len(f.Owners))
	for _, o := range f.Owners {
		owners = append(owners, o.Label())
	}
	r.session.Locked = append(r.session.Locked, LockedFile{Path: f.Path, Owners: owners})
}

// FinishScan records the scan totals.
func (r *Recorder) FinishScan(scanned int, cancelled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.session.Scanned = scanned
	r.session.Cancelled = cancelled
}

// AddKill records a process termination attempt against a lock owner.
func (r *Recorder) AddKill(path string, owner resolver.LockOwner, forced, ok bool, detail string) {
	kind := ActionClose
	if forced {
		kind = ActionKill
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.Actions = append(r.session.Actions, Action{
		Kind:      kind,
		Path:      path,
		PID:       owner.PID,
		Target:    owner.DisplayName,
		OK:        ok,
		Detail:    detail,
		Timestamp: time.Now(),
	})
}

// AddDelete records a deletion outcome including its attempt trail.
func (r *Recorder) AddDelete(out deleter.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.Actions = append(r.session.Actions, Action{
		Kind:       ActionDelete,
		Path:       out.Path,
		OK:         out.OK,
		Timestamp:  time.Now(),
		Attempts:   out.Attempts,
		Terminated: out.Terminated,
		Diagnosis:  out.Diagnosis,
	})
}

// Session closes the record and returns a copy.
func (r *Recorder) Session() Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.session
	s.EndedAt = time.Now()
	s.Duration = s.EndedAt.Sub(s.StartedAt)
	s.Locked = append([]LockedFile(nil), r.session.Locked...)
	s.Actions = append([]Action(nil), r.session.Actions...)
	return s
}

// Render returns the session in the requested format: "text", "json" or "yaml".
func Render(s Session, format string) (string, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal report: %w", err)
		}
		return string(data), nil
	case "yaml":
		data, err := yaml.Marshal(s)
		if err != nil {
			return "", fmt.Errorf("marshal report: %w", err)
		}
		return string(data), nil
	case "text", "":
		return renderText(s), nil
	default:
		return "", fmt.Errorf("unknown report format %q", format)
	}
}

func renderText(s Session) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Scan of %s\n", s.Root)
	fmt.Fprintf(&b, "Started:  %s\n", s.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration: %s\n", s.Duration.Round(time.Millisecond))

	status := "completed"
	if s.Cancelled {
		status = "cancelled"
	}
	fmt.Fprintf(&b, "Status:   %s, %s checked, %s locked\n",
		status,
		stringutil.Pluralize(s.Scanned, "file"),
		stringutil.Pluralize(len(s.Locked), "file"))

	if len(s.Locked) > 0 {
		b.WriteString("\nLocked files:\n")
		for _, lf := range s.Locked {
			fmt.Fprintf(&b, "  %s\n", lf.Path)
			for _, owner := range lf.Owners {
				fmt.Fprintf(&b, "    locked by %s\n", owner)
			}
		}
	}

	if len(s.Actions) > 0 {
		b.WriteString("\nActions:\n")
		for _, a := range s.Actions {
			b.WriteString("  " + describeAction(a) + "\n")
		}
	}

	return b.String()
}

func describeAction(a Action) string {
	outcome := "failed"
	if a.OK {
		outcome = "ok"
	}

	switch a.Kind {
	case ActionDelete:
		line := fmt.Sprintf("delete %s: %s (%s)",
			a.Path, outcome, stringutil.Pluralize(len(a.Attempts), "attempt"))
		if a.Diagnosis != "" {
			line += " - " + a.Diagnosis
		}
		return line
	case ActionKill:
		return fmt.Sprintf("force kill %s (PID: %d): %s - %s", a.Target, a.PID, outcome, a.Detail)
	default:
		return fmt.Sprintf("close %s (PID: %d): %s - %s", a.Target, a.PID, outcome, a.Detail)
	}
}

// Save writes the session as JSON into dir with a timestamped name and
// returns the written path. Creates dir if needed.
func Save(s Session, dir string) (string, error) {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get cwd: %w", err)
		}
		dir = cwd
	}

	//nolint:gosec // Report dir chosen by the user, 0755 allows other tools to read
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	name := "unlock-report-" + s.StartedAt.Format("20060102-150405") + ".json"
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	//nolint:gosec // Report file, not sensitive, 0644 allows read by other tools
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	return path, nil
}

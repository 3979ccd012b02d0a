// Package deleter implements the smart deletion engine: a bounded-retry,
// multi-strategy protocol for removing files that ordinary removal cannot
// touch. A Delete call optionally clears lock-holding processes first, then
// works through a fixed, ordered strategy list for up to MaxRounds rounds,
// re-verifying every reported success and recording an audit trail of every
// attempt. It never returns an error: all failure is expressed in the
// returned Outcome, including a human-readable diagnosis.
package deleter

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/egeaytac-dev/unlock-inspector/internal/logsink"
	"github.com/egeaytac-dev/unlock-inspector/internal/procctl"
	"github.com/egeaytac-dev/unlock-inspector/internal/resolver"
)

// Protocol constants. The delays are fixed by design: they exist to let the
// OS release handles asynchronously, not to be tuned per call.
const (
	// MaxRounds bounds the number of strategy rounds.
	MaxRounds = 3
	// DefaultRetryDelay separates strategy rounds.
	DefaultRetryDelay = 500 * time.Millisecond
	// DefaultSettleDelay follows process termination before re-resolving.
	DefaultSettleDelay = 300 * time.Millisecond
	// DefaultVerifyDelay precedes the post-success existence check.
	DefaultVerifyDelay = 100 * time.Millisecond
)

// Strategy names, in protocol order.
const (
	StrategyCheckExists    = "check_exists"
	StrategyDirect         = "direct_delete"
	StrategyRemoveReadOnly = "remove_readonly"
	StrategyFixPermissions = "fix_permissions"
	StrategyForceDelete    = "force_delete_api"
	StrategyRenameDelete   = "rename_and_delete"
)

// Attempt is one recorded strategy attempt. Seq is 1-based within its round.
type Attempt struct {
	Round    int    `json:"round"`
	Seq      int    `json:"seq"`
	Strategy string `json:"strategy"`
	OK       bool   `json:"ok"`
	Err      string `json:"error,omitempty"`
}

// Outcome is the complete record of one Delete call. Attempts is an ordered
// audit trail of every strategy tried across every round, sufficient to
// explain a failure without re-running anything.
type Outcome struct {
	OK          bool      `json:"ok"`
	Path        string    `json:"path"`
	Attempts    []Attempt `json:"attempts"`
	Terminated  []string  `json:"terminated,omitempty"`
	Diagnosis   string    `json:"diagnosis,omitempty"`
	StillExists bool      `json:"file_still_exists"`
}

// Deleter drives the deletion protocol. The delay fields carry the fixed
// defaults; tests zero them to run the protocol without real sleeps.
type Deleter struct {
	res  resolver.Resolver
	ctl  procctl.Controller
	sink logsink.Sink
	ops  fileOps

	MaxRounds   int
	RetryDelay  time.Duration
	SettleDelay time.Duration
	VerifyDelay time.Duration
}

// New creates a Deleter using the platform's file operations.
func New(res resolver.Resolver, ctl procctl.Controller, sink logsink.Sink) *Deleter {
	return newWithOps(res, ctl, sink, newSystemOps())
}

func newWithOps(res resolver.Resolver, ctl procctl.Controller, sink logsink.Sink, ops fileOps) *Deleter {
	return &Deleter{
		res:         res,
		ctl:         ctl,
		sink:        logsink.OrNop(sink),
		ops:         ops,
		MaxRounds:   MaxRounds,
		RetryDelay:  DefaultRetryDelay,
		SettleDelay: DefaultSettleDelay,
		VerifyDelay: DefaultVerifyDelay,
	}
}

// strategy is one deletion technique. A nil error is a success report, which
// the protocol re-verifies before trusting.
type strategy struct {
	name string
	fn   func(path string) error
}

// strategies returns the fixed strategy order. The order is part of the
// protocol contract.
func (d *Deleter) strategies() []strategy {
	return []strategy{
		{StrategyDirect, d.tryDirect},
		{StrategyRemoveReadOnly, d.tryRemoveReadOnly},
		{StrategyFixPermissions, d.tryFixPermissions},
		{StrategyForceDelete, d.ops.NativeDelete},
		{StrategyRenameDelete, d.tryRenameDelete},
	}
}

// Delete attempts to remove path, clearing lock owners first when killLockers
// is set. It runs to completion or exhaustion of its bounded retries; there
// is no mid-flight cancellation because partial attempts are not safely
// abortable.
func (d *Deleter) Delete(path string, killLockers bool) Outcome {
	out := Outcome{Path: path, StillExists: true}

	if !d.ops.Exists(path) {
		out.OK = true
		out.StillExists = false
		out.Attempts = append(out.Attempts, Attempt{Round: 0, Seq: 1, Strategy: StrategyCheckExists, OK: true})
		d.sink.Record("file does not exist - nothing to delete", logsink.LevelInfo)
		return out
	}

	if killLockers {
		d.clearLockers(path, &out)
	}

	for round := 1; round <= d.MaxRounds; round++ {
		d.sink.Record(fmt.Sprintf("deletion attempt %d/%d", round, d.MaxRounds), logsink.LevelInfo)

		seq := 0
		for _, st := range d.strategies() {
			seq++
			err := st.fn(path)
			attempt := Attempt{Round: round, Seq: seq, Strategy: st.name, OK: err == nil}
			if err != nil {
				attempt.Err = err.Error()
			}
			out.Attempts = append(out.Attempts, attempt)

			if err != nil {
				d.sink.Record(fmt.Sprintf("%s: %v", st.name, err), logsink.LevelDebug)
				continue
			}

			// A reported success is not trusted until the file is verified
			// gone; some strategies succeed at the call level while the
			// filesystem keeps the entry alive behind an open handle.
			d.sleep(d.VerifyDelay)
			if !d.ops.Exists(path) {
				out.OK = true
				out.StillExists = false
				d.sink.Record(fmt.Sprintf("success with strategy: %s", st.name), logsink.LevelSuccess)
				return out
			}
			d.sink.Record(fmt.Sprintf("%s: reported success but file still exists", st.name), logsink.LevelWarn)
		}

		if round < d.MaxRounds {
			d.sink.Record(fmt.Sprintf("waiting %s before next attempt", d.RetryDelay), logsink.LevelInfo)
			d.sleep(d.RetryDelay)
			if killLockers {
				d.killRespawned(path, &out)
			}
		}
	}

	out.StillExists = d.ops.Exists(path)
	if !out.StillExists {
		out.OK = true
		d.sink.Record("file deleted (verified)", logsink.LevelSuccess)
		return out
	}

	out.Diagnosis = d.diagnose(path)
	d.sink.Record(fmt.Sprintf("all attempts failed: %s", out.Diagnosis), logsink.LevelError)
	return out
}

// clearLockers terminates every current lock owner, graceful first with a
// forced fallback, waits for handles to settle, then force-kills any owner
// that respawned. Failures are logged but never abort the protocol.
func (d *Deleter) clearLockers(path string, out *Outcome) {
	d.sink.Record("checking for locking processes", logsink.LevelInfo)
	owners := resolver.ResolveQuiet(d.res, path, d.sink)
	if len(owners) == 0 {
		d.sink.Record("no locking processes found", logsink.LevelInfo)
		return
	}

	d.sink.Record(fmt.Sprintf("found %d locking process(es)", len(owners)), logsink.LevelWarn)
	for _, owner := range owners {
		res := d.ctl.Terminate(owner.PID, false)
		if !res.OK {
			res = d.ctl.Terminate(owner.PID, true)
		}
		if res.OK {
			out.Terminated = append(out.Terminated, owner.Label())
			d.sink.Record(fmt.Sprintf("killed: %s", owner.Label()), logsink.LevelSuccess)
		} else {
			d.sink.Record(fmt.Sprintf("failed to kill %s: %s", owner.DisplayName, res.Message), logsink.LevelWarn)
		}
	}

	// Handle release is asynchronous; give the OS a moment before deciding
	// whether anything respawned.
	d.sleep(d.SettleDelay)

	respawned := resolver.ResolveQuiet(d.res, path, d.sink)
	if len(respawned) == 0 {
		return
	}
	d.sink.Record(fmt.Sprintf("warning: %d process(es) respawned", len(respawned)), logsink.LevelWarn)
	for _, owner := range respawned {
		d.ctl.Terminate(owner.PID, true)
	}
	d.sleep(d.SettleDelay)
}

// killRespawned force-terminates owners discovered between rounds.
func (d *Deleter) killRespawned(path string, out *Outcome) {
	owners := resolver.ResolveQuiet(d.res, path, d.sink)
	for _, owner := range owners {
		d.ctl.Terminate(owner.PID, true)
		out.Terminated = append(out.Terminated, owner.Label()+" [retry]")
	}
	if len(owners) > 0 {
		d.sleep(d.SettleDelay)
	}
}

// diagnose collects every determinable reason the file could not be deleted.
func (d *Deleter) diagnose(path string) string {
	if !d.ops.Exists(path) {
		// An unobserved race removed it between verification and diagnosis.
		return "file was deleted"
	}

	var reasons []string
	if owners := resolver.ResolveQuiet(d.res, path, d.sink); len(owners) > 0 {
		names := make([]string, 0, len(owners))
		for _, o := range owners {
			names = append(names, o.DisplayName)
		}
		reasons = append(reasons, "still locked by: "+strings.Join(names, ", "))
	}
	if !d.ops.Writable(path) {
		reasons = append(reasons, "no write permission")
	}
	if readOnly, system, ok := d.ops.Attributes(path); ok {
		if system {
			reasons = append(reasons, "system file")
		}
		if readOnly {
			reasons = append(reasons, "read-only attribute")
		}
	}

	if len(reasons) == 0 {
		return "unknown reason"
	}
	return strings.Join(reasons, "; ")
}

// tryDirect is plain removal.
func (d *Deleter) tryDirect(path string) error {
	if err := d.ops.Remove(path); err != nil {
		if os.IsPermission(err) {
			return errors.New("permission denied")
		}
		return err
	}
	return nil
}

// tryRemoveReadOnly clears the read-only attribute, then removes.
func (d *Deleter) tryRemoveReadOnly(path string) error {
	cleared, err := d.ops.ClearReadOnly(path)
	if err != nil {
		return err
	}
	if cleared {
		d.sink.Record("removed read-only attribute", logsink.LevelInfo)
	}
	return d.ops.Remove(path)
}

// tryFixPermissions grants the owner read/write/execute, then removes.
func (d *Deleter) tryFixPermissions(path string) error {
	if err := d.ops.Chmod(path, 0o700); err != nil {
		return errors.New("permission fix failed")
	}
	return d.ops.Remove(path)
}

// tryRenameDelete renames the file to a unique temp name in the same
// directory, then removes the renamed file. Rename can succeed where direct
// deletion is blocked by open-handle semantics.
func (d *Deleter) tryRenameDelete(path string) error {
	tmp := path + "." + randomSuffix() + ".tmp"
	if err := d.ops.Rename(path, tmp); err != nil {
		if os.IsPermission(err) {
			return errors.New("cannot rename - permission denied")
		}
		return fmt.Errorf("rename failed: %w", err)
	}
	d.sink.Record("renamed to temp file", logsink.LevelInfo)
	return d.ops.Remove(tmp)
}

func (d *Deleter) sleep(dur time.Duration) {
	if dur > 0 {
		time.Sleep(dur)
	}
}

// randomSuffix returns an 8-hex-char suffix for rename targets.
func randomSuffix() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%08x", time.Now().UnixNano()&0xffffffff)
	}
	return hex.EncodeToString(b[:])
}

// Package scanner walks a file or directory tree and reports which files are
// locked. A scan runs on its own goroutine and publishes progress, findings
// and a final summary over a channel, so the caller's control flow is never
// blocked by large directory walks. Cancellation is cooperative and checked
// before every file.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/egeaytac-dev/unlock-inspector/internal/logsink"
	"github.com/egeaytac-dev/unlock-inspector/internal/resolver"
)

// State is the lifecycle state of one scan.
type State int32

// Scan lifecycle: Idle → Running → Completed or Cancelled.
const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// Event is one message published by a running scan. The concrete types are
// Progress, Found and Done.
type Event interface {
	isEvent()
}

// Progress reports that a file is about to be resolved. Processed counts are
// strictly increasing and never exceed Total.
type Progress struct {
	Processed int
	Total     int
	Path      string
}

// Found carries one locked-file finding, emitted in enumeration order.
type Found struct {
	Finding resolver.Finding
}

// Done is the final event of every scan, emitted exactly once before the
// event channel closes.
type Done struct {
	Processed int
	Locked    int
	Cancelled bool
}

func (Progress) isEvent() {}
func (Found) isEvent()    {}
func (Done) isEvent()     {}

// Scanner creates scans against a Resolver.
type Scanner struct {
	res  resolver.Resolver
	sink logsink.Sink

	// Exclude holds glob patterns matched against file base names; matching
	// files are skipped during enumeration. Set before the first Scan call.
	Exclude []string
}

// New creates a Scanner.
func New(res resolver.Resolver, sink logsink.Sink) *Scanner {
	return &Scanner{res: res, sink: logsink.OrNop(sink)}
}

// excluded reports whether path matches any exclude pattern.
func (s *Scanner) excluded(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range s.Exclude {
		if ok, err := filepath.Match(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}

// Scan is one running (or finished) scan.
type Scan struct {
	events chan Event
	cancel context.CancelFunc
	state  atomic.Int32
}

// Events returns the scan's event channel. It is closed after the Done event
// has been delivered; consumers should read until closure even after Stop.
func (sc *Scan) Events() <-chan Event {
	return sc.events
}

// Stop requests cooperative cancellation. The scan finishes the file it is
// on, emits Done with the counts actually completed, and closes the channel.
// Safe to call more than once and from any goroutine.
func (sc *Scan) Stop() {
	sc.cancel()
}

// State returns the scan's current lifecycle state.
func (sc *Scan) State() State {
	return State(sc.state.Load())
}

// Scan starts scanning root on a background goroutine. If root is a single
// file the file set is that one entry; if a directory, every file under it,
// gathered by a full recursive walk before resolution begins so the total is
// known up front. Per-file resolution failures are logged and treated as "no
// lock"; they never abort the scan.
func (s *Scanner) Scan(root string) *Scan {
	ctx, cancel := context.WithCancel(context.Background())
	sc := &Scan{
		events: make(chan Event, 16),
		cancel: cancel,
	}
	sc.state.Store(int32(StateRunning))
	go s.run(ctx, root, sc)
	return sc
}

func (s *Scanner) run(ctx context.Context, root string, sc *Scan) {
	defer close(sc.events)

	files := s.gather(root)
	total := len(files)
	s.sink.Record(fmt.Sprintf("total files to scan: %d", total), logsink.LevelInfo)

	processed, locked := 0, 0
	cancelled := false
	for _, path := range files {
		if ctx.Err() != nil {
			cancelled = true
			s.sink.Record("scan stopped by user", logsink.LevelInfo)
			break
		}
		processed++
		sc.send(ctx, Progress{Processed: processed, Total: total, Path: path})

		owners := resolver.ResolveQuiet(s.res, path, s.sink)
		if len(owners) > 0 {
			locked++
			sc.send(ctx, Found{Finding: resolver.Finding{Path: path, Owners: owners}})
		}
	}

	if cancelled {
		sc.state.Store(int32(StateCancelled))
	} else {
		sc.state.Store(int32(StateCompleted))
	}
	// Done is delivered unconditionally: consumers read until the channel
	// closes, including after Stop.
	sc.events <- Done{Processed: processed, Locked: locked, Cancelled: cancelled}
}

// send delivers ev unless the scan has been cancelled and the consumer is no
// longer draining the channel.
func (sc *Scan) send(ctx context.Context, ev Event) {
	select {
	case sc.events <- ev:
	case <-ctx.Done():
		// Try once more without blocking so consumers that keep reading
		// after Stop still observe in-flight events.
		select {
		case sc.events <- ev:
		default:
		}
	}
}

// gather enumerates the file set for root. Walk errors are logged and the
// affected entries skipped.
func (s *Scanner) gather(root string) []string {
	info, err := os.Stat(root)
	if err != nil {
		s.sink.Record(fmt.Sprintf("scan root %s: %v", root, err), logsink.LevelError)
		return nil
	}
	if !info.IsDir() {
		if s.excluded(root) {
			return nil
		}
		return []string{root}
	}

	var files []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.sink.Record(fmt.Sprintf("walk %s: %v", path, err), logsink.LevelWarn)
			return nil
		}
		if d.IsDir() {
			s.sink.Record(fmt.Sprintf("scanning directory: %s", path), logsink.LevelDebug)
			return nil
		}
		if s.excluded(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if walkErr != nil {
		s.sink.Record(fmt.Sprintf("walk %s: %v", root, walkErr), logsink.LevelError)
	}
	return files
}

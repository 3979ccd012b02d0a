// Package logsink defines the observer sink every component reports through.
// The sink is pure observation: no component's behavior may depend on whether
// one is attached, so a nil-safe Nop sink is the default everywhere.
package logsink

import "sync"

// Level classifies a sink message.
type Level string

// Levels mirror the shell's log pane categories.
const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

// Sink receives log messages from the core components.
type Sink interface {
	Record(message string, level Level)
}

// Func adapts a plain function to a Sink.
type Func func(message string, level Level)

// Record calls the underlying function.
func (f Func) Record(message string, level Level) {
	f(message, level)
}

// Nop returns a sink that discards everything.
func Nop() Sink {
	return nopSink{}
}

type nopSink struct{}

func (nopSink) Record(string, Level) {}

// OrNop returns s, or a Nop sink when s is nil, so components can hold a
// sink field without nil checks at every call site.
func OrNop(s Sink) Sink {
	if s == nil {
		return Nop()
	}
	return s
}

// Entry is a recorded sink message.
type Entry struct {
	Message string
	Level   Level
}

// Recorder is a thread-safe sink that retains every entry, for assertions
// in tests and for the shell's log pane.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// Record appends the entry.
func (r *Recorder) Record(message string, level Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Message: message, Level: level})
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Messages returns just the message strings, in order.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Message)
	}
	return out
}

// Reset clears all recorded entries.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

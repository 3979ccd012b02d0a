package logsink

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	rec := &Recorder{}
	rec.Record("first", LevelInfo)
	rec.Record("second", LevelError)

	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{Message: "first", Level: LevelInfo}, entries[0])
	assert.Equal(t, []string{"first", "second"}, rec.Messages())

	rec.Reset()
	assert.Empty(t, rec.Entries())
}

func TestRecorder_ConcurrentRecord(t *testing.T) {
	rec := &Recorder{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Record("msg", LevelDebug)
		}()
	}
	wg.Wait()
	assert.Len(t, rec.Entries(), 50)
}

func TestFunc(t *testing.T) {
	var got string
	s := Func(func(msg string, _ Level) { got = msg })
	s.Record("hello", LevelWarn)
	assert.Equal(t, "hello", got)
}

func TestOrNop(t *testing.T) {
	assert.NotPanics(t, func() {
		OrNop(nil).Record("dropped", LevelInfo)
	})

	rec := &Recorder{}
	OrNop(rec).Record("kept", LevelInfo)
	assert.Len(t, rec.Entries(), 1)
}

package event

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureStdout(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String()
}

func TestNDJSONEmitter_WritesOneJSONObjectPerLine(t *testing.T) {
	out := captureStdout(func() {
		e := NewNDJSONEmitter()
		e.Emit(Event{Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), RunID: "r1", State: StateStarted})
		e.Emit(Event{Timestamp: time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC), RunID: "r1", State: StateCompleted})
	})

	var got Event
	lines := bytes.Split(bytes.TrimSpace([]byte(out)), []byte("\n"))
	require.Len(t, lines, 2)
	require.NoError(t, json.Unmarshal(lines[0], &got))
	assert.Equal(t, "r1", got.RunID)
	assert.Equal(t, StateStarted, got.State)
}

func TestNDJSONEmitter_HumanReadableDoesNotEmitJSON(t *testing.T) {
	e := NewNDJSONEmitterWithHumanReadable()
	out := captureStdout(func() {
		e.Emit(Event{Timestamp: time.Now(), RunID: "r1", State: StateRunning, Phase: "map", Completed: 1, Total: 2, Percentage: 50})
	})
	var discard any
	assert.Error(t, json.Unmarshal([]byte(out), &discard), "human-readable output should not be valid JSON")
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "map")
}

func TestNopEmitter_DoesNothing(t *testing.T) {
	assert.NotPanics(t, func() { NopEmitter{}.Emit(Event{State: StateFailed}) })
}

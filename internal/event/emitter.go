// Package event carries structured observability out of the pipeline and
// scheduler packages. There is no text logger anywhere in this module:
// every state transition is an Event pushed through an EventEmitter, the
// same dual-mode (NDJSON + optional human-readable) design the wider
// codebase uses for its step lifecycle.
package event

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Event is one structured observation of a pipeline run, map-reduce job,
// or scheduler tick.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	RunID      string    `json:"run_id"`
	PipelineID string    `json:"pipeline_id,omitempty"`
	State      string    `json:"state"`
	Phase      string    `json:"phase,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Message    string    `json:"message,omitempty"`

	Completed  int     `json:"completed,omitempty"`
	Total      int     `json:"total,omitempty"`
	Percentage float64 `json:"percentage,omitempty"`
	LastItem   string  `json:"last_item,omitempty"`

	Error string `json:"error,omitempty"`
}

// Event state constants for run/job lifecycle.
const (
	StateStarted   = "started"
	StateRunning   = "running"
	StateProgress  = "progress"
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
	StateRetrying  = "retrying"
)

// EventEmitter is the one-way sink every component pushes Events through.
// The core never reads back from it and never holds a reference to any UI
// — only this interface.
type EventEmitter interface {
	Emit(event Event)
}

// NDJSONEmitter writes one JSON object per line to stdout, with an
// optional colourised human-readable rendering instead for TTYs.
type NDJSONEmitter struct {
	encoder       *json.Encoder
	humanReadable bool
	mu            sync.Mutex
}

// NewNDJSONEmitter returns a plain NDJSON emitter.
func NewNDJSONEmitter() *NDJSONEmitter {
	return &NDJSONEmitter{encoder: json.NewEncoder(os.Stdout)}
}

// NewNDJSONEmitterWithHumanReadable returns an emitter that renders
// colourised one-line summaries instead of raw JSON.
func NewNDJSONEmitterWithHumanReadable() *NDJSONEmitter {
	return &NDJSONEmitter{encoder: json.NewEncoder(os.Stdout), humanReadable: true}
}

var stateColors = map[string]string{
	StateStarted:   "\033[36m",
	StateRunning:   "\033[33m",
	StateProgress:  "\033[33m",
	StateCompleted: "\033[32m",
	StateFailed:    "\033[31m",
	StateCancelled: "\033[31m",
	StateRetrying:  "\033[33m",
}

// Emit implements EventEmitter.
func (e *NDJSONEmitter) Emit(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.humanReadable {
		_ = e.encoder.Encode(event)
		return
	}

	const dim = "\033[90m"
	const reset = "\033[0m"
	color := stateColors[event.State]
	if color == "" {
		color = reset
	}
	ts := event.Timestamp.Format("15:04:05")
	fmt.Printf("%s[%s]%s %s%-10s%s %-12s", dim, ts, reset, color, event.State, reset, event.Phase)
	if event.Total > 0 {
		fmt.Printf(" %d/%d (%.0f%%)", event.Completed, event.Total, event.Percentage)
	}
	if event.DurationMs > 0 {
		fmt.Printf(" %.1fs", float64(event.DurationMs)/1000.0)
	}
	if event.Message != "" {
		fmt.Printf(" %s", event.Message)
	}
	if event.Error != "" {
		fmt.Printf(" error=%s", event.Error)
	}
	fmt.Println()
}

// NopEmitter discards every event. Useful as a default when a caller
// doesn't care about progress.
type NopEmitter struct{}

// Emit implements EventEmitter by doing nothing.
func (NopEmitter) Emit(Event) {}

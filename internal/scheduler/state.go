package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Schedule status values (spec.md §4.10 state machine).
const (
	StatusIdle     = "idle"
	StatusRunning  = "running"
	StatusPaused   = "paused"
	StatusError    = "error"
	StatusDisabled = "disabled"
)

// RunRecord is one completed (or failed) scheduled execution.
type RunRecord struct {
	StartedAt      time.Time  `json:"startedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	Success        bool       `json:"success"`
	DurationMs     int64      `json:"duration"`
	ItemsProcessed int        `json:"itemsProcessed,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// Stats summarizes a schedule's run history.
type Stats struct {
	TotalRuns       int     `json:"totalRuns"`
	SuccessfulRuns  int     `json:"successfulRuns"`
	FailedRuns      int     `json:"failedRuns"`
	LastFailure     string  `json:"lastFailure,omitempty"`
	AverageDuration float64 `json:"averageDuration,omitempty"`
}

// maxHistory bounds ScheduleState.History; oldest entries are pruned.
const maxHistory = 50

// ScheduleState is the per-pipeline-directory persisted state document
// (spec.md §6.4), written atomically (write-temp-then-rename).
type ScheduleState struct {
	Version    int         `json:"version"`
	ScheduleID string      `json:"scheduleId"`
	PipelineID string      `json:"pipelineId"`
	Status     string      `json:"status"`
	Enabled    bool        `json:"enabled"`
	LastRun    *RunRecord  `json:"lastRun"`
	NextRun    *time.Time  `json:"nextRun"`
	Stats      Stats       `json:"stats"`
	History    []RunRecord `json:"history"`
}

const stateFileName = "state.json"
const stateDir = ".reduceai"

// StatePath returns the path to a pipeline directory's state file.
func StatePath(pipelineDir string) string {
	return filepath.Join(pipelineDir, stateDir, stateFileName)
}

// StateStore guards one pipeline directory's state.json against
// concurrent readers/writers within this process; cross-process
// exclusivity is the job of the lock file (lock.go).
type StateStore struct {
	mu          sync.Mutex
	pipelineDir string
}

// NewStateStore returns a store for pipelineDir, creating its state
// directory if necessary.
func NewStateStore(pipelineDir string) (*StateStore, error) {
	if err := os.MkdirAll(filepath.Join(pipelineDir, stateDir), 0o755); err != nil {
		return nil, fmt.Errorf("scheduler: creating state dir: %w", err)
	}
	return &StateStore{pipelineDir: pipelineDir}, nil
}

// Load reads the current state, returning a fresh idle state if no file
// exists yet.
func (s *StateStore) Load(scheduleID, pipelineID string) (ScheduleState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := StatePath(s.pipelineDir)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ScheduleState{
			Version:    1,
			ScheduleID: scheduleID,
			PipelineID: pipelineID,
			Status:     StatusIdle,
			Enabled:    true,
		}, nil
	}
	if err != nil {
		return ScheduleState{}, fmt.Errorf("scheduler: reading state: %w", err)
	}
	var state ScheduleState
	if err := json.Unmarshal(data, &state); err != nil {
		return ScheduleState{}, fmt.Errorf("scheduler: parsing state: %w", err)
	}
	return state, nil
}

// Save writes state atomically: serialize to a temp file in the same
// directory, then rename over the target, so a reader never observes a
// partially-written document.
func (s *StateStore) Save(state ScheduleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(state.History) > maxHistory {
		state.History = state.History[len(state.History)-maxHistory:]
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("scheduler: encoding state: %w", err)
	}

	path := StatePath(s.pipelineDir)
	tmp, err := os.CreateTemp(filepath.Dir(path), "state-*.json.tmp")
	if err != nil {
		return fmt.Errorf("scheduler: creating temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("scheduler: writing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("scheduler: closing temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("scheduler: renaming state file into place: %w", err)
	}
	return nil
}

// RecordRun appends a RunRecord to history, updates lastRun/stats, and
// persists the result.
func (s *StateStore) RecordRun(scheduleID, pipelineID string, run RunRecord) error {
	state, err := s.Load(scheduleID, pipelineID)
	if err != nil {
		return err
	}
	state.LastRun = &run
	state.History = append(state.History, run)
	state.Stats.TotalRuns++
	if run.Success {
		state.Stats.SuccessfulRuns++
	} else {
		state.Stats.FailedRuns++
		state.Stats.LastFailure = run.Error
	}
	var total int64
	for _, r := range state.History {
		total += r.DurationMs
	}
	if len(state.History) > 0 {
		state.Stats.AverageDuration = float64(total) / float64(len(state.History))
	}
	return s.Save(state)
}

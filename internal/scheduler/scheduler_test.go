package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recinq/reduceai/internal/llm"
)

func writeSchedulablePipeline(t *testing.T, dir string, schedule string) string {
	t.Helper()
	path := filepath.Join(dir, "pipeline.yaml")
	yaml := `
name: digest
input:
  items:
    - title: A
map:
  prompt: "{{title}}"
  output: []
reduce:
  type: text
` + schedule
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

// S10: two concurrent scheduler starts on the same directory — exactly
// one acquires the lock, the other gets a dedicated error.
func TestNew_S10_SecondAcquireFailsWithLockHeld(t *testing.T) {
	dir := t.TempDir()
	writeSchedulablePipeline(t, dir, "schedule:\n  cron: \"*/5 * * * *\"\n")

	s1, err := New(dir, llm.NewMock(), nil)
	require.NoError(t, err)
	defer s1.Stop()

	_, err = New(dir, llm.NewMock(), nil)
	assert.ErrorIs(t, err, ErrLockHeld)
}

func TestScheduler_TriggerRecordsSuccessfulRun(t *testing.T) {
	dir := t.TempDir()
	writeSchedulablePipeline(t, dir, "schedule:\n  cron: \"*/5 * * * *\"\n")

	invoker := llm.NewMock(llm.WithResponse("A", "done"))
	s, err := New(dir, invoker, nil)
	require.NoError(t, err)
	defer s.Stop()

	require.NoError(t, s.Start(context.Background()))
	s.Trigger(context.Background())

	state, err := s.State()
	require.NoError(t, err)
	require.NotNil(t, state.LastRun)
	assert.True(t, state.LastRun.Success)
	assert.Equal(t, StatusIdle, state.Status)
	assert.Equal(t, 1, state.Stats.TotalRuns)
}

func TestScheduler_TriggerRecordsFailureAfterRetries(t *testing.T) {
	dir := t.TempDir()
	writeSchedulablePipeline(t, dir, "schedule:\n  cron: \"*/5 * * * *\"\n  retryPolicy: {maxRetries: 1, delayMs: 1}\n")

	invoker := llm.NewMock(llm.WithFailure("backend down"))
	s, err := New(dir, invoker, nil)
	require.NoError(t, err)
	defer s.Stop()

	require.NoError(t, s.Start(context.Background()))
	s.Trigger(context.Background())

	state, err := s.State()
	require.NoError(t, err)
	require.NotNil(t, state.LastRun)
	assert.False(t, state.LastRun.Success)
	assert.Equal(t, StatusError, state.Status)
	assert.Equal(t, 2, len(invoker.Calls()), "expected initial attempt + one retry")
}

func TestScheduler_PauseSkipsTick(t *testing.T) {
	dir := t.TempDir()
	writeSchedulablePipeline(t, dir, "schedule:\n  cron: \"*/5 * * * *\"\n")

	invoker := llm.NewMock(llm.WithResponse("A", "done"))
	s, err := New(dir, invoker, nil)
	require.NoError(t, err)
	defer s.Stop()

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Pause())
	s.Trigger(context.Background())

	assert.Empty(t, invoker.Calls())
	state, err := s.State()
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, state.Status)
}

func TestLoadSchedule_MissingBlockReturnsNil(t *testing.T) {
	dir := t.TempDir()
	path := writeSchedulablePipeline(t, dir, "")
	cfg, err := LoadSchedule(path)
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadSchedule_RejectsInvalidMissedExecution(t *testing.T) {
	dir := t.TempDir()
	path := writeSchedulablePipeline(t, dir, "schedule:\n  cron: \"* * * * *\"\n  missedExecution: \"later\"\n")
	_, err := LoadSchedule(path)
	assert.Error(t, err)
}

package jobtracker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_StartCompleteTransitions(t *testing.T) {
	tr := New(nil)
	var seen []Transition
	tr.Subscribe(func(t Transition) { seen = append(seen, t) })

	tr.Start("job-1", "pipeline", "analyze: first 50 chars...")
	tr.Complete("job-1", "done: result preview")

	rec, ok := tr.Get("job-1")
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.NotNil(t, rec.EndedAt)
	require.Len(t, seen, 2)
	assert.Equal(t, StatusRunning, seen[0].To)
	assert.Equal(t, StatusCompleted, seen[1].To)
	assert.Equal(t, StatusRunning, seen[1].From)
}

func TestTracker_FailRecordsError(t *testing.T) {
	tr := New(nil)
	tr.Start("job-2", "pipeline", "prompt")
	tr.Fail("job-2", "llm backend unavailable")

	rec, ok := tr.Get("job-2")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, "llm backend unavailable", rec.Error)
}

func TestTracker_AbortInvokesHandleAndCancels(t *testing.T) {
	tr := New(nil)
	called := false
	tr.StartWithAbort("job-3", "pipeline", "prompt", func() { called = true })

	tr.Abort("job-3")

	assert.True(t, called)
	rec, ok := tr.Get("job-3")
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, rec.Status)
}

func TestTracker_WithCancelCancelsDerivedContext(t *testing.T) {
	tr := New(nil)
	child := tr.WithCancel(context.Background(), "job-4", "pipeline", "prompt")

	tr.Abort("job-4")

	select {
	case <-child.Done():
	default:
		t.Fatal("expected derived context to be cancelled")
	}
}

func TestTracker_SnapshotIncludesAllTrackedJobs(t *testing.T) {
	tr := New(nil)
	tr.Start("a", "pipeline", "")
	tr.Start("b", "pipeline", "")
	tr.Complete("a", "")

	snap := tr.Snapshot()
	assert.Len(t, snap, 2)
}

func TestTracker_UnsubscribeStopsNotifications(t *testing.T) {
	tr := New(nil)
	count := 0
	unsubscribe := tr.Subscribe(func(Transition) { count++ })
	tr.Start("job-5", "pipeline", "")
	unsubscribe()
	tr.Complete("job-5", "")

	assert.Equal(t, 1, count)
}

type fakeStore struct{ saved []Record }

func (f *fakeStore) SaveRecord(r Record) error {
	f.saved = append(f.saved, r)
	return nil
}

func TestTracker_PersistsToStoreOnTransition(t *testing.T) {
	store := &fakeStore{}
	tr := New(store)
	tr.Start("job-6", "pipeline", "")
	tr.Complete("job-6", "result")

	require.Len(t, store.saved, 1)
	assert.Equal(t, StatusCompleted, store.saved[0].Status)
}

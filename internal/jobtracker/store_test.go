package jobtracker

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_SaveAndGetRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "jobs.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	started := time.Now().Add(-time.Minute)
	ended := time.Now()
	rec := Record{
		JobID: "run-1", Type: "pipeline", Status: StatusCompleted,
		StartedAt: started, EndedAt: &ended, ResultPreview: "ok",
	}
	require.NoError(t, store.SaveRecord(rec))

	got, err := store.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.JobID)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "ok", got.ResultPreview)
}

func TestSQLiteStore_SaveRecordUpsertsOnConflict(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "jobs.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	rec := Record{JobID: "run-2", Type: "pipeline", Status: StatusRunning, StartedAt: time.Now()}
	require.NoError(t, store.SaveRecord(rec))

	rec.Status = StatusFailed
	rec.Error = "boom"
	require.NoError(t, store.SaveRecord(rec))

	got, err := store.GetRun("run-2")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
}

func TestSQLiteStore_ListRunsOrdersNewestFirst(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "jobs.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	base := time.Now().Add(-time.Hour)
	require.NoError(t, store.SaveRecord(Record{JobID: "older", Type: "pipeline", Status: StatusCompleted, StartedAt: base}))
	require.NoError(t, store.SaveRecord(Record{JobID: "newer", Type: "pipeline", Status: StatusCompleted, StartedAt: base.Add(time.Minute)}))

	runs, err := store.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "newer", runs[0].JobID)
	assert.Equal(t, "older", runs[1].JobID)
}

package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/recinq/reduceai/internal/jobtracker"
)

// buildTracker opens the job tracker's sqlite-backed store under
// <pipelineDir>/.reduceai/jobs.db (spec §4.11, persistence per
// SPEC_FULL §4.12) and returns a Tracker plus a cleanup func the caller
// must defer.
func buildTracker(pipelineDir string) (*jobtracker.Tracker, func(), error) {
	stateDir := filepath.Join(pipelineDir, ".reduceai")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("job tracker: creating state dir: %w", err)
	}

	store, err := jobtracker.NewSQLiteStore(filepath.Join(stateDir, "jobs.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("job tracker: %w", err)
	}

	tracker := jobtracker.New(store)
	return tracker, func() { _ = store.Close() }, nil
}

// previewString truncates s to its first n runes, followed by "...", for a
// Record's PromptPreview/ResultPreview fields; shorter strings are
// returned unchanged.
func previewString(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

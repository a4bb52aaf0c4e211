package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/recinq/reduceai/internal/jobtracker"
)

// NewJobsCmd builds `reduceai jobs <pipeline-dir>`, listing the job
// tracker's persisted history for both one-off `run` invocations and a
// scheduler's runs (spec §4.11).
func NewJobsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs <pipeline-dir>",
		Short: "List the job tracker's recent run records for a pipeline directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath := filepath.Join(args[0], ".reduceai", "jobs.db")
			store, err := jobtracker.NewSQLiteStore(dbPath)
			if err != nil {
				return NewExitCodeError(ExitMissingPrereq, err)
			}
			defer store.Close()

			runs, err := store.ListRuns(limit)
			if err != nil {
				return NewExitCodeError(ExitRuntimeFailure, err)
			}
			for _, r := range runs {
				fmt.Printf("%-40s %-14s %-13s %s\n", r.JobID, r.Type, r.Status, r.StartedAt.Format("2006-01-02T15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of job records to print")
	return cmd
}

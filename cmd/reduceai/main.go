package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/recinq/reduceai/cmd/reduceai/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "reduceai",
	Short: "Generic map-reduce AI pipeline engine",
	Long: `reduceai runs declarative map-reduce pipelines over an AI invoker:
split input into items, map each through a prompt under a bounded
parallelism cap, reduce the results deterministically or with a second
AI call.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

func init() {
	rootCmd.SetVersionTemplate("reduceai version {{.Version}}\n")

	rootCmd.PersistentFlags().StringP("output", "o", "auto", "Output format: auto, json, text")
	rootCmd.PersistentFlags().Bool("mock", false, "Use an in-memory mock invoker instead of the Anthropic backend")

	rootCmd.AddCommand(commands.NewRunCmd())
	rootCmd.AddCommand(commands.NewSchedulerCmd())
	rootCmd.AddCommand(commands.NewJobsCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	var exitErr commands.ExitCodeError
	if commands.AsExitCodeError(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/recinq/reduceai/internal/scheduler"
)

// NewSchedulerCmd builds `reduceai scheduler start|list|status|trigger|pause|resume|history`.
func NewSchedulerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Manage cron-driven pipeline schedules",
	}
	cmd.AddCommand(newSchedulerStartCmd())
	cmd.AddCommand(newSchedulerListCmd())
	cmd.AddCommand(newSchedulerStatusCmd())
	cmd.AddCommand(newSchedulerTriggerCmd())
	cmd.AddCommand(newSchedulerPauseCmd())
	cmd.AddCommand(newSchedulerResumeCmd())
	cmd.AddCommand(newSchedulerHistoryCmd())
	return cmd
}

func newSchedulerStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <pipeline-dir>",
		Short: "Acquire the schedule lock and run the cron timer until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoker, cleanup, err := buildInvoker(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			s, err := scheduler.New(args[0], invoker, buildEmitter(cmd))
			if err != nil {
				if err == scheduler.ErrLockHeld {
					return NewExitCodeError(ExitRuntimeFailure, err)
				}
				return NewExitCodeError(ExitMissingPrereq, err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			if err := s.Start(ctx); err != nil {
				return NewExitCodeError(ExitRuntimeFailure, err)
			}
			fmt.Printf("scheduler: watching %s (ctrl-c to stop)\n", args[0])
			<-ctx.Done()
			return s.Stop()
		},
	}
}

func newSchedulerTriggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <pipeline-dir>",
		Short: "Run a schedule's pipeline immediately, outside its timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoker, cleanup, err := buildInvoker(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			s, err := scheduler.New(args[0], invoker, buildEmitter(cmd))
			if err != nil {
				return NewExitCodeError(ExitMissingPrereq, err)
			}
			defer s.Stop()

			if err := s.Start(context.Background()); err != nil {
				return NewExitCodeError(ExitRuntimeFailure, err)
			}
			s.Trigger(context.Background())

			state, err := s.State()
			if err != nil {
				return NewExitCodeError(ExitRuntimeFailure, err)
			}
			if state.LastRun != nil && !state.LastRun.Success {
				return NewExitCodeError(ExitRuntimeFailure, fmt.Errorf("triggered run failed: %s", state.LastRun.Error))
			}
			fmt.Println("scheduler: triggered run completed")
			return nil
		},
	}
}

func newSchedulerStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <pipeline-dir>",
		Short: "Print a schedule's current ScheduleState",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := scheduler.NewStateStore(args[0])
			if err != nil {
				return NewExitCodeError(ExitMissingPrereq, err)
			}
			state, err := store.Load("", "")
			if err != nil {
				return NewExitCodeError(ExitRuntimeFailure, err)
			}
			printScheduleState(state)
			return nil
		},
	}
}

func newSchedulerHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <pipeline-dir>",
		Short: "Print a schedule's run history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := scheduler.NewStateStore(args[0])
			if err != nil {
				return NewExitCodeError(ExitMissingPrereq, err)
			}
			state, err := store.Load("", "")
			if err != nil {
				return NewExitCodeError(ExitRuntimeFailure, err)
			}
			for _, run := range state.History {
				status := "ok"
				if !run.Success {
					status = "FAILED: " + run.Error
				}
				fmt.Printf("%s  %dms  %s\n", run.StartedAt.Format("2006-01-02T15:04:05"), run.DurationMs, status)
			}
			return nil
		},
	}
}

func newSchedulerPauseCmd() *cobra.Command  { return schedulerToggleCmd("pause", true) }
func newSchedulerResumeCmd() *cobra.Command { return schedulerToggleCmd("resume", false) }

func schedulerToggleCmd(use string, pause bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <pipeline-dir>",
		Short: fmt.Sprintf("%s a schedule without stopping its process", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoker, cleanup, err := buildInvoker(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			s, err := scheduler.New(args[0], invoker, buildEmitter(cmd))
			if err != nil {
				return NewExitCodeError(ExitMissingPrereq, err)
			}
			defer s.Stop()

			if pause {
				err = s.Pause()
			} else {
				err = s.Resume()
			}
			if err != nil {
				return NewExitCodeError(ExitRuntimeFailure, err)
			}
			fmt.Printf("scheduler: %sd %s\n", use, args[0])
			return nil
		},
	}
}

func newSchedulerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <pipelines-root>",
		Short: "List every pipeline directory under root with a schedule block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := os.ReadDir(args[0])
			if err != nil {
				return NewExitCodeError(ExitMissingPrereq, err)
			}
			for _, entry := range entries {
				if !entry.IsDir() {
					continue
				}
				dir := filepath.Join(args[0], entry.Name())
				sched, err := scheduler.LoadSchedule(filepath.Join(dir, "pipeline.yaml"))
				if err != nil || sched == nil {
					continue
				}
				fmt.Printf("%-30s cron=%q enabled=%v\n", entry.Name(), sched.Cron, sched.IsEnabled())
			}
			return nil
		},
	}
}

func printScheduleState(state scheduler.ScheduleState) {
	fmt.Printf("status:  %s\n", state.Status)
	if state.NextRun != nil {
		fmt.Printf("nextRun: %s\n", state.NextRun.Format("2006-01-02T15:04:05"))
	}
	fmt.Printf("stats:   total=%d ok=%d failed=%d\n", state.Stats.TotalRuns, state.Stats.SuccessfulRuns, state.Stats.FailedRuns)
	if state.LastRun != nil {
		fmt.Printf("lastRun: success=%v duration=%dms\n", state.LastRun.Success, state.LastRun.DurationMs)
	}
}

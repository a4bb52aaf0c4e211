package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/recinq/reduceai/internal/display"
	"github.com/recinq/reduceai/internal/event"
	"github.com/recinq/reduceai/internal/llm"
	"github.com/recinq/reduceai/internal/mapreduce"
	"github.com/recinq/reduceai/internal/pipeline"
)

// NewRunCmd builds `reduceai run <pipeline-dir>` (spec §6.5).
func NewRunCmd() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "run <pipeline-dir>",
		Short: "Run a pipeline directory's pipeline.yaml to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipelineDir := args[0]
			pipelinePath := filepath.Join(pipelineDir, "pipeline.yaml")

			cfg, dir, err := pipeline.Load(pipelinePath)
			if err != nil {
				return NewExitCodeError(ExitMissingPrereq, err)
			}

			invoker, cleanup, err := buildInvoker(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			tracker, trackerCleanup, err := buildTracker(dir)
			if err != nil {
				return NewExitCodeError(ExitMissingPrereq, err)
			}
			defer trackerCleanup()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			emitter := buildEmitter(cmd)
			var progress *display.ProgressDisplay
			if isInteractive() {
				progress = display.NewProgressDisplay(cfg.Name)
				emitter = multiEmitter{progress, emitter}
				defer progress.Stop()
			}

			if runID == "" {
				runID = cfg.Name
			}
			opts := pipeline.RunOptions{Invoker: invoker, PipelineDir: dir, Emitter: emitter, RunID: runID}

			jobCtx := tracker.WithCancel(ctx, runID, "pipeline", previewString(cfg.Map.Prompt, 80))

			var outcome mapreduce.Outcome
			if cfg.Input.Generate != nil {
				outcome, err = runGenerate(jobCtx, cfg, invoker, opts)
			} else {
				outcome, err = pipeline.Run(jobCtx, cfg, opts)
			}
			if err != nil {
				if jobCtx.Err() != nil {
					tracker.Cancel(runID)
				} else {
					tracker.Fail(runID, err.Error())
				}
				return NewExitCodeError(ExitRuntimeFailure, err)
			}
			if !outcome.Success {
				tracker.Fail(runID, "pipeline did not complete successfully")
				return NewExitCodeError(ExitRuntimeFailure, fmt.Errorf("pipeline %q did not complete successfully", cfg.Name))
			}
			tracker.Complete(runID, previewString(renderOutput(outcome.Output), 80))
			fmt.Println(renderOutput(outcome.Output))
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "Override the run identifier attached to emitted events")
	return cmd
}

func runGenerate(ctx context.Context, cfg pipeline.Config, invoker llm.Invoker, opts pipeline.RunOptions) (mapreduce.Outcome, error) {
	items, err := pipeline.GenerateItems(ctx, invoker, *cfg.Input.Generate)
	if err != nil {
		return mapreduce.Outcome{}, err
	}

	var approval pipeline.GenerateApproval
	if isInteractive() {
		approval, err = display.ApproveGeneratedItems(items)
		if err != nil {
			if err == huh.ErrUserAborted {
				return mapreduce.Outcome{}, fmt.Errorf("generate approval cancelled")
			}
			return mapreduce.Outcome{}, err
		}
	} else {
		approval = pipeline.GenerateApproval{Items: items}
	}

	return pipeline.RunWithItems(ctx, cfg, approval, opts)
}

func renderOutput(output any) string {
	switch v := output.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%+v", v)
	}
}

// multiEmitter fans one Event out to multiple sinks (the interactive
// progress bar and whichever NDJSON/human emitter --output selected).
type multiEmitter []event.EventEmitter

func (m multiEmitter) Emit(e event.Event) {
	for _, sink := range m {
		sink.Emit(e)
	}
}

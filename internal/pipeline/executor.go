package pipeline

import (
	"context"
	"fmt"

	"github.com/recinq/reduceai/internal/event"
	"github.com/recinq/reduceai/internal/llm"
	"github.com/recinq/reduceai/internal/mapreduce"
	"github.com/recinq/reduceai/internal/security"
)

// RunOptions configures one pipeline execution.
type RunOptions struct {
	Invoker         llm.Invoker
	PipelineDir     string
	Emitter         event.EventEmitter
	OnProgress      mapreduce.ProgressFunc
	Sanitizer       *security.InputSanitizer
	AIReduceInvoker llm.Invoker // defaults to Invoker when nil
	RunID           string

	// OutputSchema optionally checks map.output against a JSON Schema
	// document before a mapper result is accepted as success=true
	// (SPEC_FULL §4.16). Not part of the pipeline.yaml grammar — wired at
	// the Go API level only, so spec §6.1 stays bit-exact.
	OutputSchema map[string]any
}

func (o RunOptions) emitter() event.EventEmitter {
	if o.Emitter != nil {
		return o.Emitter
	}
	return event.NopEmitter{}
}

// Run is the public entry point for an inline/CSV pipeline
// (executePipeline in spec terms). It refuses to run a `generate` input —
// use RunWithItems for that (spec §4.5, Open Question 1).
func Run(ctx context.Context, cfg Config, opts RunOptions) (mapreduce.Outcome, error) {
	if cfg.Input.Generate != nil {
		return mapreduce.Outcome{}, fmt.Errorf("pipeline: %q uses a generate input; call RunWithItems with an approved item list", cfg.Name)
	}

	splitter, err := buildSplitter(cfg, opts.PipelineDir)
	if err != nil {
		return mapreduce.Outcome{}, err
	}
	return run(ctx, cfg, splitter, opts)
}

// RunWithItems bypasses the declared splitter entirely, running the job
// against a caller-approved item list. This is the only way to execute a
// pipeline whose input is `generate`.
func RunWithItems(ctx context.Context, cfg Config, approval GenerateApproval, opts RunOptions) (mapreduce.Outcome, error) {
	splitter := ApprovedItemsSplitter{Approval: approval, Parameters: cfg.Input.Parameters, Limit: cfg.Input.Limit}
	return run(ctx, cfg, splitter, opts)
}

func buildSplitter(cfg Config, pipelineDir string) (mapreduce.Splitter, error) {
	switch cfg.Input.Kind() {
	case "items":
		return InlineSplitter{Items: cfg.Input.Items, Parameters: cfg.Input.Parameters, Limit: cfg.Input.Limit}, nil
	case "from":
		path := ResolvePath(pipelineDir, cfg.Input.From.Path)
		return CSVSplitter{Path: path, Delimiter: cfg.Input.From.Delimiter, Parameters: cfg.Input.Parameters, Limit: cfg.Input.Limit}, nil
	default:
		return nil, fmt.Errorf("pipeline: %q has no runnable input source", cfg.Name)
	}
}

// validateItemVariables is the pre-flight check of spec §4.5/§4.9: every
// item returned by a splitter must resolve every {{var}} in the map
// prompt, or the whole run fails before any item reaches an AI call.
func validateItemVariables(prompt string, items []mapreduce.Item, parameters map[string]string) error {
	for i, item := range items {
		if missing := UnresolvedVariables(prompt, map[string]any(item), parameters); len(missing) > 0 {
			return NewValidationError("input", fmt.Sprintf("item %d is missing template variables: %v", i, missing)).
				WithSuggestion("add the missing fields to each item, or supply them via input.parameters")
		}
	}
	return nil
}

func buildReducer(cfg Config, opts RunOptions) mapreduce.Reducer {
	switch cfg.Reduce.Type {
	case ReduceTable:
		return TableReducer{OutputFields: cfg.Map.Output}
	case ReduceJSON:
		return JSONReducer{TextMode: cfg.Map.TextMode()}
	case ReduceText:
		return TextReducer{}
	case ReduceAI:
		invoker := opts.AIReduceInvoker
		if invoker == nil {
			invoker = opts.Invoker
		}
		return AIReducer{Prompt: cfg.Reduce.Prompt, Output: cfg.Reduce.Output, Invoker: invoker, Model: cfg.Map.Model}
	default:
		return ListReducer{}
	}
}

func run(ctx context.Context, cfg Config, splitter mapreduce.Splitter, opts RunOptions) (mapreduce.Outcome, error) {
	if err := Validate(cfg, ""); err != nil {
		return mapreduce.Outcome{}, err
	}
	if opts.Invoker == nil {
		return mapreduce.Outcome{}, fmt.Errorf("pipeline: %q: RunOptions.Invoker is required", cfg.Name)
	}

	// Split once up front and validate every item resolves the map prompt's
	// {{var}} references before any AI call is made (spec §4.9, §7 "fail
	// the run, not the item"; Testable Property 5). A splitter that
	// validated per item inside a concurrent Mapper.Map would let earlier
	// items' AI calls start before a later item's missing variable surfaced.
	items, err := splitter.Split(ctx)
	if err != nil {
		return mapreduce.Outcome{}, err
	}
	if err := validateItemVariables(cfg.Map.Prompt, items, flattenParameters(cfg.Input.Parameters)); err != nil {
		return mapreduce.Outcome{}, err
	}
	preSplit := mapreduce.SplitterFunc(func(context.Context) ([]mapreduce.Item, error) {
		return items, nil
	})

	emitter := opts.emitter()
	emitter.Emit(event.Event{RunID: opts.RunID, PipelineID: cfg.Name, State: event.StateStarted})

	mapper := NewMapper(cfg.Map, cfg.Input.Parameters, opts.Invoker, opts.Sanitizer)
	if opts.OutputSchema != nil {
		schema, err := NewSchemaValidator(opts.OutputSchema)
		if err != nil {
			return mapreduce.Outcome{}, err
		}
		mapper.Schema = schema
	}
	reducer := buildReducer(cfg, opts)

	onProgress := func(p mapreduce.Progress) {
		state := event.StateRunning
		if p.Phase == mapreduce.PhaseDone {
			state = event.StateCompleted
		}
		emitter.Emit(event.Event{
			RunID: opts.RunID, PipelineID: cfg.Name, State: state, Phase: p.Phase,
			Completed: p.Completed, Total: p.Total, Percentage: p.Percentage,
		})
		if opts.OnProgress != nil {
			opts.OnProgress(p)
		}
	}

	job := mapreduce.Job{
		ID:       opts.RunID,
		Name:     cfg.Name,
		Splitter: preSplit,
		Mapper:   mapper,
		Reducer:  reducer,
		Options: mapreduce.Options{
			MaxConcurrency: cfg.Map.Parallel,
			TimeoutMs:      cfg.Map.TimeoutMs,
			OnProgress:     onProgress,
		},
	}

	exec := mapreduce.NewExecutor(cfg.Map.Parallel)
	outcome, err := exec.Run(ctx, job)
	if err != nil {
		emitter.Emit(event.Event{RunID: opts.RunID, PipelineID: cfg.Name, State: event.StateFailed, Error: err.Error()})
		return outcome, err
	}
	if !outcome.Success && ctx.Err() != nil {
		emitter.Emit(event.Event{RunID: opts.RunID, PipelineID: cfg.Name, State: event.StateCancelled})
	} else if outcome.Success {
		emitter.Emit(event.Event{RunID: opts.RunID, PipelineID: cfg.Name, State: event.StateCompleted})
	} else {
		emitter.Emit(event.Event{RunID: opts.RunID, PipelineID: cfg.Name, State: event.StateFailed})
	}
	return outcome, nil
}

// Package mapreduce is the reusable substrate underneath the pipeline
// executor: a Job pairs a Splitter, a Mapper, and a Reducer, and an
// Executor runs the three phases under a bounded concurrency cap with
// per-item timeout/retry and cooperative cancellation.
package mapreduce

import "context"

// Item is a single unit of work produced by a Splitter, consumed by a
// Mapper, and retained in the reduced result. Field values are scalars
// (string, number, bool) as they would appear in one CSV row.
type Item map[string]any

// Result is the outcome of mapping exactly one Item. It is immutable once
// produced and is never itself an error return — per-item failures are
// carried as data so a single bad item never aborts the batch.
type Result struct {
	Item        Item
	Success     bool
	Output      map[string]any
	Error       string
	RawResponse string
}

// Splitter produces the finite sequence of Items a Job will map over.
type Splitter interface {
	Split(ctx context.Context) ([]Item, error)
}

// SplitterFunc adapts a plain function to a Splitter.
type SplitterFunc func(ctx context.Context) ([]Item, error)

// Split implements Splitter.
func (f SplitterFunc) Split(ctx context.Context) ([]Item, error) { return f(ctx) }

// Mapper maps one Item to one Result. A Mapper must never panic; any
// per-item failure (AI error, timeout, parse failure) is returned as a
// Result with Success=false, not as a Go error — the one exception is a
// genuine contract violation, which the Executor coerces into a failed
// Result and counts separately (FailedMaps in Stats).
type Mapper interface {
	Map(ctx context.Context, item Item) Result
}

// MapperFunc adapts a plain function to a Mapper.
type MapperFunc func(ctx context.Context, item Item) Result

// Map implements Mapper.
func (f MapperFunc) Map(ctx context.Context, item Item) Result { return f(ctx, item) }

// Reducer folds the full, order-preserved Result slice into the job's
// final output.
type Reducer interface {
	Reduce(ctx context.Context, results []Result) (any, error)
}

// ReducerFunc adapts a plain function to a Reducer.
type ReducerFunc func(ctx context.Context, results []Result) (any, error)

// Reduce implements Reducer.
func (f ReducerFunc) Reduce(ctx context.Context, results []Result) (any, error) {
	return f(ctx, results)
}

// Phase names emitted in Progress.
const (
	PhaseSplit  = "split"
	PhaseMap    = "map"
	PhaseReduce = "reduce"
	PhaseDone   = "done"
)

// Progress is emitted by the Executor as a job advances. It is never
// stored — only emitted.
type Progress struct {
	Completed  int
	Total      int
	Percentage float64
	Phase      string
	LastItem   Item
}

// ProgressFunc receives Progress updates. May be nil.
type ProgressFunc func(Progress)

// Options configures a single Job run.
type Options struct {
	MaxConcurrency int
	TimeoutMs      int
	OnProgress     ProgressFunc
}

// Job bundles the three collaborators of one map-reduce run plus its
// execution options.
type Job struct {
	ID       string
	Name     string
	Splitter Splitter
	Mapper   Mapper
	Reducer  Reducer
	Options  Options
}

// Stats reports per-run execution statistics. FailedMaps counts mapper
// contract violations only (the mapper itself panicked);
// ordinary per-item AI/parse failures show up inside Results with
// Success=false but are not counted here (Open Question 3 / spec
// invariant 9's resolution).
type Stats struct {
	TotalItems      int
	SuccessfulMaps  int
	FailedMaps      int
	MapPhaseTimeMs  int64
	ReducePhaseTimeMs int64
	TotalTimeMs     int64
}

// Outcome is the terminal result of running a Job.
type Outcome struct {
	Success bool
	Output  any
	Results []Result
	Stats   Stats
}

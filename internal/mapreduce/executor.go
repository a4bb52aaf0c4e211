package mapreduce

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Executor runs one Job: split, then map every item under a Limiter with
// per-item timeout and exactly one doubled-timeout retry, then reduce.
type Executor struct {
	limiter *Limiter
}

// NewExecutor returns an Executor. maxConcurrency<1 is treated as 1.
func NewExecutor(maxConcurrency int) *Executor {
	return &Executor{limiter: NewLimiter(maxConcurrency)}
}

// Run executes job against ctx. Cancelling ctx makes Run return an Outcome
// with Success=false and whichever partial Results were collected before
// cancellation — Run itself never returns a non-nil error for cancellation
// alone; it returns an error only for a malformed job (nil Splitter/
// Mapper/Reducer) or when the Splitter or Reducer itself fails. Outcome.Success
// is true only when the run was not cancelled and every item's Result
// succeeded.
func (e *Executor) Run(ctx context.Context, job Job) (Outcome, error) {
	if job.Splitter == nil || job.Mapper == nil || job.Reducer == nil {
		return Outcome{}, fmt.Errorf("mapreduce: job %q is missing a splitter, mapper, or reducer", job.Name)
	}

	timeoutMs := job.Options.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = 600_000
	}
	limiter := e.limiter
	if job.Options.MaxConcurrency > 0 {
		limiter = NewLimiter(job.Options.MaxConcurrency)
	}
	emit := job.Options.OnProgress
	if emit == nil {
		emit = func(Progress) {}
	}

	start := time.Now()

	emit(Progress{Phase: PhaseSplit})
	items, err := job.Splitter.Split(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("mapreduce: split failed: %w", err)
	}
	total := len(items)

	emit(Progress{Phase: PhaseMap, Total: total})
	mapStart := time.Now()

	results := make([]Result, total)
	var completed int64
	var failedMaps int64

	tasks := make([]Task, total)
	for i, item := range items {
		i, item := i, item
		tasks[i] = func(tctx context.Context) error {
			if tctx.Err() != nil {
				results[i] = Result{Item: item, Success: false, Error: "cancelled"}
				return nil
			}
			res, violated := runItemWithRetry(tctx, job.Mapper, item, timeoutMs)
			results[i] = res
			if violated {
				atomic.AddInt64(&failedMaps, 1)
			}
			done := atomic.AddInt64(&completed, 1)
			pct := 0.0
			if total > 0 {
				pct = float64(done) / float64(total) * 100
			}
			emit(Progress{Completed: int(done), Total: total, Percentage: pct, Phase: PhaseMap, LastItem: item})
			return nil
		}
	}
	limiter.AllSettled(ctx, tasks)
	mapPhaseTimeMs := time.Since(mapStart).Milliseconds()

	emit(Progress{Phase: PhaseReduce, Total: total, Completed: total})
	reduceStart := time.Now()
	output, rerr := job.Reducer.Reduce(ctx, results)
	reducePhaseTimeMs := time.Since(reduceStart).Milliseconds()
	if rerr != nil {
		return Outcome{}, fmt.Errorf("mapreduce: reduce failed: %w", rerr)
	}

	successful := 0
	for _, r := range results {
		if r.Success {
			successful++
		}
	}

	emit(Progress{Phase: PhaseDone, Total: total, Completed: total, Percentage: 100})

	cancelled := ctx.Err() != nil
	outcome := Outcome{
		Success: !cancelled && failedMaps == 0 && successful == total,
		Output:  output,
		Results: results,
		Stats: Stats{
			TotalItems:        total,
			SuccessfulMaps:    successful,
			FailedMaps:        int(failedMaps),
			MapPhaseTimeMs:    mapPhaseTimeMs,
			ReducePhaseTimeMs: reducePhaseTimeMs,
			TotalTimeMs:       time.Since(start).Milliseconds(),
		},
	}
	return outcome, nil
}

// runItemWithRetry runs one mapper invocation with a timeoutMs deadline; on
// timeout it retries exactly once at 2*timeoutMs. The bool return reports
// whether the mapper itself violated its contract (panicked) rather than
// returning an ordinary failed Result — only that case counts toward
// Stats.FailedMaps.
func runItemWithRetry(ctx context.Context, mapper Mapper, item Item, timeoutMs int) (Result, bool) {
	res, timedOut, violated := attemptMap(ctx, mapper, item, timeoutMs)
	if violated {
		return res, true
	}
	if !timedOut {
		return res, false
	}

	res2, timedOut2, violated2 := attemptMap(ctx, mapper, item, timeoutMs*2)
	if violated2 {
		return res2, true
	}
	if timedOut2 {
		return Result{Item: item, Success: false, Error: fmt.Sprintf("timed out after retry (%dms then %dms)", timeoutMs, timeoutMs*2)}, false
	}
	return res2, false
}

// attemptMap runs a single bounded attempt, recovering a panicking mapper
// into a contract-violation Result rather than letting it crash the batch.
func attemptMap(ctx context.Context, mapper Mapper, item Item, timeoutMs int) (result Result, timedOut bool, violated bool) {
	attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	type attempt struct {
		res      Result
		violated bool
	}
	done := make(chan attempt, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attempt{res: Result{Item: item, Success: false, Error: fmt.Sprintf("mapper panic: %v", r)}, violated: true}
			}
		}()
		done <- attempt{res: mapper.Map(attemptCtx, item)}
	}()

	select {
	case a := <-done:
		return a.res, false, a.violated
	case <-attemptCtx.Done():
		return Result{}, true, false
	}
}

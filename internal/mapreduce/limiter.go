package mapreduce

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Limiter enforces at-most-K concurrent in-flight tasks, FIFO when
// saturated. It is built on an errgroup.Group with SetLimit rather than a
// hand-rolled channel semaphore.
type Limiter struct {
	k int
}

// NewLimiter returns a Limiter capped at k concurrent tasks. k<1 is
// treated as 1.
func NewLimiter(k int) *Limiter {
	if k < 1 {
		k = 1
	}
	return &Limiter{k: k}
}

// Task is one unit of work submitted to the limiter.
type Task func(ctx context.Context) error

// All runs every task under the cap, failing fast: the first error cancels
// the group's context and All returns that error once all started tasks
// have exited.
func (l *Limiter) All(ctx context.Context, tasks []Task) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.k)
	for _, t := range tasks {
		t := t
		g.Go(func() error { return t(gctx) })
	}
	return g.Wait()
}

// Settled describes one task's outcome under AllSettled.
type Settled struct {
	Err error
}

// AllSettled runs every task under the cap and never itself fails: each
// task's error (nil or not) is captured in the returned slice, in the same
// order tasks were submitted, regardless of completion order. Unlike All,
// one task's error never cancels the others — only external cancellation
// of ctx does, which every task observes directly.
func (l *Limiter) AllSettled(ctx context.Context, tasks []Task) []Settled {
	out := make([]Settled, len(tasks))
	var g errgroup.Group
	g.SetLimit(l.k)
	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			out[i] = Settled{Err: t(ctx)}
			return nil
		})
	}
	g.Wait()
	return out
}

// Run submits a single task under the cap and waits for it.
func (l *Limiter) Run(ctx context.Context, t Task) error {
	return l.All(ctx, []Task{t})
}

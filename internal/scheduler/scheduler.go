package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/recinq/reduceai/internal/event"
	"github.com/recinq/reduceai/internal/jobtracker"
	"github.com/recinq/reduceai/internal/llm"
	"github.com/recinq/reduceai/internal/pipeline"
)

// Runner executes one pipeline run to completion. pipeline.Run satisfies
// this; tests substitute a stub.
type Runner func(ctx context.Context, cfg pipeline.Config, opts pipeline.RunOptions) error

// Scheduler drives one pipeline directory's cron schedule: it owns the
// directory's lock, its persisted ScheduleState, and a cron.Cron timer.
// The state machine is spec.md §4.10's:
//
//	disabled <-> idle --timer--> running --ok--> idle
//	                                 |
//	                                 +-fail, retries left-> (delay) -> running
//	                                 +-fail, exhausted -> error -> idle (next tick)
//	idle <-> paused (manual)
type Scheduler struct {
	pipelineDir string
	scheduleID  string
	pipelineCfg pipeline.Config
	schedule    ScheduleConfig
	location    *time.Location
	cronSched   cron.Schedule

	store *StateStore
	lock  *Lock
	cron  *cron.Cron
	runFn Runner

	invoker      llm.Invoker
	emitter      event.EventEmitter
	tracker      *jobtracker.Tracker
	trackerStore *jobtracker.SQLiteStore

	mu      sync.Mutex
	paused  bool
	running bool
}

// New loads pipeline.yaml and its schedule block from pipelineDir,
// acquires the directory's exclusive lock, and returns a Scheduler ready
// for Start. Returns ErrLockHeld if another live process already holds
// the lock (spec invariant 10, seed scenario S10).
func New(pipelineDir string, invoker llm.Invoker, emitter event.EventEmitter) (*Scheduler, error) {
	pipelinePath := filepath.Join(pipelineDir, "pipeline.yaml")
	cfg, _, err := pipeline.Load(pipelinePath)
	if err != nil {
		return nil, fmt.Errorf("scheduler: loading pipeline: %w", err)
	}

	schedCfg, err := LoadSchedule(pipelinePath)
	if err != nil {
		return nil, err
	}
	if schedCfg == nil {
		return nil, fmt.Errorf("scheduler: %s has no schedule block", pipelinePath)
	}

	loc := time.Local
	if schedCfg.Timezone != "" {
		loc, err = time.LoadLocation(schedCfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("scheduler: invalid timezone %q: %w", schedCfg.Timezone, err)
		}
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	cronSched, err := parser.Parse(schedCfg.Cron)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid cron expression %q: %w", schedCfg.Cron, err)
	}

	store, err := NewStateStore(pipelineDir)
	if err != nil {
		return nil, err
	}

	lock, err := AcquireLock(pipelineDir)
	if err != nil {
		return nil, err
	}

	// Every scheduled run is registered in the job tracker (spec §4.11) as
	// a "scheduled-run" job, persisted alongside the schedule's own state
	// so `scheduler status`/`history` can be backed by either store.
	trackerStore, err := jobtracker.NewSQLiteStore(filepath.Join(pipelineDir, stateDir, "jobs.db"))
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("scheduler: opening job tracker store: %w", err)
	}

	if emitter == nil {
		emitter = event.NopEmitter{}
	}

	s := &Scheduler{
		pipelineDir:  pipelineDir,
		scheduleID:   cfg.Name,
		pipelineCfg:  cfg,
		schedule:     *schedCfg,
		location:     loc,
		cronSched:    cronSched,
		store:        store,
		lock:         lock,
		cron:         cron.New(cron.WithLocation(loc)),
		runFn:        runPipeline,
		invoker:      invoker,
		emitter:      emitter,
		tracker:      jobtracker.New(trackerStore),
		trackerStore: trackerStore,
		paused:       !schedCfg.IsEnabled(),
	}
	return s, nil
}

func runPipeline(ctx context.Context, cfg pipeline.Config, opts pipeline.RunOptions) error {
	outcome, err := pipeline.Run(ctx, cfg, opts)
	if err != nil {
		return err
	}
	if !outcome.Success {
		return fmt.Errorf("scheduler: pipeline run did not succeed (failedMaps=%d)", outcome.Stats.FailedMaps)
	}
	return nil
}

// Start handles missed-execution policy then begins the cron timer.
// Missed runs (nextRun already in the past) either fire immediately
// (policy "run") or are skipped to the next future occurrence (policy
// "skip").
func (s *Scheduler) Start(ctx context.Context) error {
	state, err := s.store.Load(s.scheduleID, s.pipelineCfg.Name)
	if err != nil {
		return err
	}

	now := time.Now().In(s.location)
	if state.NextRun != nil && state.NextRun.Before(now) {
		if s.schedule.MissedPolicy() == MissedRun {
			go s.tick(ctx)
		}
	}

	next := s.cronSched.Next(now)
	state.NextRun = &next
	state.ScheduleID = s.scheduleID
	state.PipelineID = s.pipelineCfg.Name
	if state.Status == "" {
		state.Status = StatusIdle
	}
	if s.paused {
		state.Status = StatusPaused
	}
	if err := s.store.Save(state); err != nil {
		return err
	}

	_, err = s.cron.AddFunc(s.schedule.Cron, func() { s.tick(ctx) })
	if err != nil {
		return fmt.Errorf("scheduler: registering cron job: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron timer and releases the directory lock. The
// scheduler instance is not reusable after Stop.
func (s *Scheduler) Stop() error {
	ctx := s.cron.Stop()
	<-ctx.Done()
	_ = s.trackerStore.Close()
	return s.lock.Release()
}

// Trigger runs the pipeline immediately, outside the cron timer (CLI
// `scheduler trigger`).
func (s *Scheduler) Trigger(ctx context.Context) {
	s.tick(ctx)
}

// Pause transitions the schedule to paused: the cron timer keeps
// running but tick() is a no-op while paused.
func (s *Scheduler) Pause() error {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	return s.updateStatus(StatusPaused)
}

// Resume clears a manual pause.
func (s *Scheduler) Resume() error {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	return s.updateStatus(StatusIdle)
}

func (s *Scheduler) updateStatus(status string) error {
	state, err := s.store.Load(s.scheduleID, s.pipelineCfg.Name)
	if err != nil {
		return err
	}
	state.Status = status
	return s.store.Save(state)
}

// State returns the current persisted ScheduleState (CLI `scheduler
// status`/`list`/`history`).
func (s *Scheduler) State() (ScheduleState, error) {
	return s.store.Load(s.scheduleID, s.pipelineCfg.Name)
}

func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	if s.paused || s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if err := s.checkDelayWindow(); err != nil {
		s.emitter.Emit(event.Event{
			Timestamp: time.Now(), RunID: s.scheduleID, PipelineID: s.pipelineCfg.Name,
			State: event.StateCancelled, Phase: "schedule", Message: err.Error(),
		})
		return
	}

	_ = s.updateStatus(StatusRunning)
	s.executeWithRetries(ctx)

	next := s.cronSched.Next(time.Now().In(s.location))
	state, err := s.store.Load(s.scheduleID, s.pipelineCfg.Name)
	if err == nil {
		state.NextRun = &next
		_ = s.store.Save(state)
	}
}

func (s *Scheduler) checkDelayWindow() error {
	if s.schedule.Window == nil || s.schedule.Window.MaxDelayMinutes <= 0 {
		return nil
	}
	state, err := s.store.Load(s.scheduleID, s.pipelineCfg.Name)
	if err != nil || state.NextRun == nil {
		return nil
	}
	delay := time.Since(*state.NextRun)
	if delay > time.Duration(s.schedule.Window.MaxDelayMinutes)*time.Minute {
		return fmt.Errorf("scheduler: tick exceeded delay window of %dm", s.schedule.Window.MaxDelayMinutes)
	}
	return nil
}

func (s *Scheduler) executeWithRetries(ctx context.Context) {
	maxRetries := 0
	delay := time.Duration(0)
	if rp := s.schedule.RetryPolicy; rp != nil {
		maxRetries = rp.MaxRetries
		delay = time.Duration(rp.DelayMs) * time.Millisecond
	}

	attempt := 0
	var lastErr error
	startedAt := time.Now()
	jobID := fmt.Sprintf("%s-%d", s.scheduleID, startedAt.UnixNano())
	jobCtx := s.tracker.WithCancel(ctx, jobID, "scheduled-run", s.pipelineCfg.Map.Prompt)
	for {
		attempt++
		runErr := s.runFn(jobCtx, s.pipelineCfg, pipeline.RunOptions{
			Invoker:     s.invoker,
			PipelineDir: s.pipelineDir,
			Emitter:     s.emitter,
			RunID:       jobID,
		})
		if runErr == nil {
			lastErr = nil
			break
		}
		lastErr = runErr
		if attempt > maxRetries {
			break
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}

	if lastErr != nil {
		if jobCtx.Err() != nil {
			s.tracker.Cancel(jobID)
		} else {
			s.tracker.Fail(jobID, lastErr.Error())
		}
	} else {
		s.tracker.Complete(jobID, fmt.Sprintf("%d attempt(s)", attempt))
	}

	completedAt := time.Now()
	run := RunRecord{
		StartedAt:   startedAt,
		CompletedAt: &completedAt,
		Success:     lastErr == nil,
		DurationMs:  completedAt.Sub(startedAt).Milliseconds(),
	}
	if lastErr != nil {
		run.Error = lastErr.Error()
	}
	_ = s.store.RecordRun(s.scheduleID, s.pipelineCfg.Name, run)

	status := StatusIdle
	if lastErr != nil {
		status = StatusError
	}
	_ = s.updateStatus(status)
}

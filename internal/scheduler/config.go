// Package scheduler drives cron-triggered pipeline runs over a directory
// of pipelines. It is a consumer of internal/pipeline's executor, never a
// peer of it: schedule-block loading, state persistence, and the lock file
// all live here, one level above the core engine (spec.md §4.10,
// "sketch"). Listing the scheduled pipelines under a root directory is
// done by the CLI's `scheduler list` command.
package scheduler

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/recinq/reduceai/internal/pipeline"
)

// RetryPolicy bounds how a failed run is retried before a schedule is
// marked status=error for the remainder of its current occurrence.
type RetryPolicy struct {
	MaxRetries int `yaml:"maxRetries"`
	DelayMs    int `yaml:"delayMs"`
}

// Window bounds how late a fired tick may still run before it is treated
// as missed.
type Window struct {
	MaxDelayMinutes int `yaml:"maxDelayMinutes"`
}

const (
	MissedRun  = "run"
	MissedSkip = "skip"
)

// ScheduleConfig is the `schedule:` block layered on top of a
// pipeline.yaml. It is parsed independently of pipeline.Config so the
// core grammar (spec.md §6.1) never gains a field that isn't part of the
// bit-exact contract; the scheduler simply also reads the same file.
type ScheduleConfig struct {
	Cron             string       `yaml:"cron"`
	Timezone         string       `yaml:"timezone"`
	Enabled          *bool        `yaml:"enabled"`
	RetryPolicy      *RetryPolicy `yaml:"retryPolicy"`
	MissedExecution  string       `yaml:"missedExecution"`
	Window           *Window      `yaml:"window"`
}

type rawFile struct {
	Schedule *ScheduleConfig `yaml:"schedule"`
}

// IsEnabled reports whether the schedule should be active; defaults true.
func (c ScheduleConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// MissedPolicy defaults to "run" when unset.
func (c ScheduleConfig) MissedPolicy() string {
	if c.MissedExecution == "" {
		return MissedRun
	}
	return c.MissedExecution
}

// LoadSchedule reads the `schedule:` block, if any, from a pipeline.yaml
// at pipelinePath. Returns (nil, nil) when the pipeline has no schedule.
func LoadSchedule(pipelinePath string) (*ScheduleConfig, error) {
	data, err := os.ReadFile(pipelinePath)
	if err != nil {
		return nil, fmt.Errorf("scheduler: reading %s: %w", pipelinePath, err)
	}
	var raw rawFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("scheduler: parsing schedule block in %s: %w", pipelinePath, err)
	}
	if raw.Schedule == nil {
		return nil, nil
	}
	if raw.Schedule.Cron == "" {
		return nil, pipeline.NewValidationError("schedule.cron", "required when a schedule block is present")
	}
	if raw.Schedule.MissedExecution != "" &&
		raw.Schedule.MissedExecution != MissedRun && raw.Schedule.MissedExecution != MissedSkip {
		return nil, pipeline.NewValidationError("schedule.missedExecution", "must be \"run\" or \"skip\"").
			WithSuggestion("set missedExecution to run or skip")
	}
	return raw.Schedule, nil
}

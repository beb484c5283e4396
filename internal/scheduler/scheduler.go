// Package scheduler fires the heartbeat and the alert escalation sweep on
// cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is one scheduled unit of work.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs until its context is cancelled. A tick is skipped
// while the previous run of the same job is still going.
type Scheduler struct {
	jobs   []Job
	logger *slog.Logger
}

// New validates every job's schedule.
func New(logger *slog.Logger, jobs ...Job) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("scheduler: at least one job is required")
	}
	for _, j := range jobs {
		if j.Run == nil {
			return nil, fmt.Errorf("scheduler: job %q has no run function", j.Name)
		}
		if _, err := parser.Parse(j.Schedule); err != nil {
			return nil, fmt.Errorf("scheduler: job %q: invalid schedule %q: %w", j.Name, j.Schedule, err)
		}
	}
	return &Scheduler{jobs: jobs, logger: logger}, nil
}

// Run blocks until ctx is cancelled, then waits for running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	cl := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelInfo))
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	for _, j := range s.jobs {
		if _, err := c.AddFunc(j.Schedule, func() {
			if err := j.Run(ctx); err != nil {
				s.logger.Error("scheduled job failed", "job", j.Name, "error", err)
			}
		}); err != nil {
			return fmt.Errorf("scheduler: add %s: %w", j.Name, err)
		}
		s.logger.Info("job scheduled", "job", j.Name, "schedule", j.Schedule)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

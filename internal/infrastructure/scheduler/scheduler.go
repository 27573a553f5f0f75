package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Sweeper is a periodic maintenance task reporting how many items it touched.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Scheduler wraps a gocron scheduler for the worker's periodic jobs.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

func New(logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, logger: logger}, nil
}

// ScheduleSweep runs sweeper every interval. Runs never overlap: a tick that
// fires while the previous sweep is still going is skipped. onSweep, when set,
// receives the count of every successful run.
func (s *Scheduler) ScheduleSweep(
	ctx context.Context,
	name string,
	interval time.Duration,
	sweeper Sweeper,
	onSweep func(int),
) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { s.runSweep(ctx, name, sweeper, onSweep) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("create %s job: %w", name, err)
	}
	return job.ID().String(), nil
}

func (s *Scheduler) runSweep(ctx context.Context, name string, sweeper Sweeper, onSweep func(int)) {
	if ctx.Err() != nil {
		return
	}
	started := time.Now()
	n, err := sweeper.Sweep(ctx)
	if err != nil {
		s.logger.Error("scheduled_job_failed", "job", name, "error", err)
		return
	}
	if onSweep != nil {
		onSweep(n)
	}
	s.logger.Debug("scheduled_job_completed", "job", name, "items", n, "duration_ms", time.Since(started).Milliseconds())
}

func (s *Scheduler) Start() {
	s.scheduler.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() error {
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	return nil
}

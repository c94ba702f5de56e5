// Package scheduler runs maintenance jobs, such as sweeping idle sessions,
// on cron schedules inside a long-running skillspan process.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler dispatches registered jobs on their schedules.
type Scheduler struct {
	logger *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// New returns a stopped scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger: logger,
		// a job still running when the next tick arrives makes that tick a no-op
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers job under name with a standard cron expression or a
// descriptor such as "@hourly" or "@every 30m".
func (s *Scheduler) Add(name, schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.cron.AddFunc(schedule, func() {
		s.logger.Debug("scheduled job fired", "job", name)
		if err := job(s.ctx); err != nil {
			s.logger.Error("scheduled job failed", "job", name, "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler: job %s: invalid schedule %q: %w", name, schedule, err)
	}
	s.logger.Info("registered scheduled job", "job", name, "schedule", schedule)
	return nil
}

// Run starts dispatching and blocks until ctx is done, then stops and waits
// for running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.started = true
		s.cron.Start()
		s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
	}
	s.mu.Unlock()

	<-ctx.Done()
	s.Stop()
}

// Stop cancels running jobs' context and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()
	if s.started {
		<-s.cron.Stop().Done()
		s.started = false
		s.logger.Info("scheduler stopped")
	}
}

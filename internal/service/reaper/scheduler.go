package reaper

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler runs the reaper on a cron schedule. A sweep that is still running
// when the next tick fires makes that tick a no-op.
type Scheduler struct {
	cron   *cron.Cron
	reaper *Reaper
	logger *logrus.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(reaper *Reaper, logger *logrus.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(logger)
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		reaper: reaper,
		logger: logger,
	}
}

// Start registers the sweep under schedule ("@every 1m", "*/5 * * * *") and starts
// the scheduler. Sweeps run with a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context, schedule string) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	if _, err := s.cron.AddFunc(schedule, func() {
		_, _ = s.RunNow(s.ctx)
	}); err != nil {
		s.cancel()
		return fmt.Errorf("failed to schedule expiration sweep %q: %w", schedule, err)
	}

	s.cron.Start()
	s.logger.WithField("schedule", schedule).Info("Expiration reaper scheduled")
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	stopped := s.cron.Stop()
	<-stopped.Done()
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("Expiration reaper stopped")
}

func (s *Scheduler) RunNow(ctx context.Context) (SweepResult, error) {
	result, err := s.reaper.Run(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Expiration sweep failed")
	}
	return result, err
}

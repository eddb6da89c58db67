package cleanup

import (
	"context"
	"fmt"

	"places-cache/pkg/logging"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs the expiry sweep on a cron schedule.
type Scheduler struct {
	sweeper  *Sweeper
	schedule string
	cron     *cron.Cron
	logger   *logging.Logger
}

// NewScheduler creates a scheduler for the sweeper's configured schedule.
func NewScheduler(sweeper *Sweeper) (*Scheduler, error) {
	schedule := sweeper.config.Schedule
	if err := ValidateSchedule(schedule); err != nil {
		return nil, err
	}

	logger := sweeper.logger.Named("scheduler")
	cl := cronLogger{logger}

	c := cron.New(
		cron.WithParser(scheduleParser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	s := &Scheduler{
		sweeper:  sweeper,
		schedule: schedule,
		cron:     c,
		logger:   logger,
	}

	if _, err := c.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("cleanup: schedule sweep: %w", err)
	}

	return s, nil
}

func (s *Scheduler) run() {
	s.logger.Debug("scheduled sweep starting", zap.String("schedule", s.schedule))
	s.sweeper.Sweep(context.Background())
}

// Start begins running scheduled sweeps.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("sweep scheduled", zap.String("schedule", s.schedule))
}

// Stop stops scheduling and waits for a running sweep or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/miketropi/wp-backup/internal/model"
)

// Run ticks every interval until ctx is done. A tick still running when
// the next one is due causes that one to be skipped.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	if interval < time.Second {
		return fmt.Errorf("%w: tick interval %s is below one second", model.ErrConfigInvalid, interval)
	}
	log := cronLogger{s.logger}
	c := cron.New(cron.WithLogger(log), cron.WithChain(cron.SkipIfStillRunning(log)))
	if _, err := c.AddFunc("@every "+interval.String(), func() { s.runTick(ctx) }); err != nil {
		return fmt.Errorf("schedule tick loop: %w", err)
	}

	s.logger.Info().Dur("interval", interval).Msg("tick loop started")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info().Msg("tick loop stopped")
	return nil
}

func (s *Scheduler) runTick(ctx context.Context) {
	res, err := s.Tick(ctx)
	switch {
	case errors.Is(err, model.ErrTickBusy):
		s.logger.Debug().Msg("tick skipped: another tick holds the lock")
	case err != nil:
		s.logger.Error().Err(err).Str("reason", res.Reason).Msg("tick failed")
	case res.Ran:
		ev := s.logger.Info().Str("period", res.PeriodKey)
		if res.Context != nil {
			ev = ev.Str("folder", res.Context.Job.Folder).Int("step", res.Context.Step).Bool("completed", res.Context.Completed)
		}
		ev.Msg("tick ran")
	default:
		s.logger.Debug().Str("reason", res.Reason).Msg("tick idle")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}

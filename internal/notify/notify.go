package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/miketropi/wp-backup/internal/backup"
)

// Log writes events to a logger.
type Log struct {
	logger zerolog.Logger
}

// NewLog creates a Log notifier.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger.With().Str("component", "notify").Logger()}
}

func (l *Log) Notify(_ context.Context, ev backup.Event) error {
	e := l.logger.Info()
	if ev.Kind == backup.EventFailed {
		e = l.logger.Error().Str("error", ev.Context.Error)
	}
	e.Str("event", ev.Kind).
		Str("folder", ev.Job.Folder).
		Str("name", ev.Job.Name).
		Str("status", ev.Job.Status).
		Str("size", ev.Job.Size).
		Msg("backup finished")
	return nil
}

// Multi fans an event out to several notifiers. Every notifier is called;
// their errors are joined.
type Multi []backup.Notifier

func (m Multi) Notify(ctx context.Context, ev backup.Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

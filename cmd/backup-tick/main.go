// Command backup-tick runs a single scheduler tick and exits. It is meant
// to be driven by an external cron.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/miketropi/wp-backup/internal/app"
	"github.com/miketropi/wp-backup/internal/config"
	"github.com/miketropi/wp-backup/internal/logging"
	"github.com/miketropi/wp-backup/internal/model"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("backup-tick"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start backup engine")
	}
	defer engine.Close()

	res, err := engine.Scheduler.Tick(ctx)
	switch {
	case errors.Is(err, model.ErrTickBusy):
		logger.Info().Msg("another tick is running; skipped")
	case err != nil:
		logger.Error().Err(err).Msg("tick failed")
		engine.Close()
		os.Exit(1)
	default:
		ev := logger.Info().Bool("ran", res.Ran).Str("reason", res.Reason).Str("period", res.PeriodKey)
		if res.Context != nil {
			ev = ev.Str("folder", res.Context.Job.Folder).Int("step", res.Context.Step).Bool("completed", res.Context.Completed)
		}
		ev.Msg("tick finished")
	}
}

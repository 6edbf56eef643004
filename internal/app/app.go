// Package app assembles the backup engine from configuration. Both
// binaries build on it.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"github.com/miketropi/wp-backup/internal/api"
	"github.com/miketropi/wp-backup/internal/archive"
	"github.com/miketropi/wp-backup/internal/backup"
	"github.com/miketropi/wp-backup/internal/config"
	"github.com/miketropi/wp-backup/internal/db"
	"github.com/miketropi/wp-backup/internal/notify"
	"github.com/miketropi/wp-backup/internal/offsite"
	"github.com/miketropi/wp-backup/internal/scheduler"
	"github.com/miketropi/wp-backup/internal/store"
)

// App is a wired backup engine.
type App struct {
	Layout    backup.Layout
	Archiver  *archive.Writer
	Backups   *backup.Service
	Scheduler *scheduler.Scheduler

	source *db.Source
}

// New connects the site database (if any) and wires the services.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	source, err := db.OpenSource(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, cfg.DatabaseSchema)
	if err != nil {
		return nil, fmt.Errorf("open site database: %w", err)
	}
	return newApp(cfg, logger, source, clock.WallClock), nil
}

func newApp(cfg *config.Config, logger zerolog.Logger, source *db.Source, clk clock.Clock) *App {
	layout := backup.Layout{
		BackupRoot:   cfg.BackupRoot,
		ArchiveRoot:  cfg.ArchiveRoot,
		ScheduleRoot: cfg.ScheduleRoot,
	}
	st := store.NewFileStore()
	archiver := archive.NewWriter(logger)

	notifiers := notify.Multi{notify.NewLog(logger)}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfg.WebhookURL, cfg.WebhookTemplate))
	}
	if cfg.OffsiteEnabled() {
		client := offsite.NewS3Client(offsite.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Prefix:    cfg.S3Prefix,
		})
		notifiers = append(notifiers, offsite.NewUploader(client, archiver, layout, cfg.S3Bucket, cfg.S3Prefix, logger))
	}

	opts := []backup.Option{backup.WithNotifier(notifiers), backup.WithClock(clk)}
	if source != nil {
		opts = append(opts, backup.WithSource(source.Source))
	}
	svc := backup.NewService(backup.Config{
		Layout:        layout,
		PluginsDir:    cfg.PluginsDir,
		ThemesDir:     cfg.ThemesDir,
		UploadsDir:    cfg.UploadsDir,
		OwnPluginName: cfg.OwnPluginName,
		SiteURL:       cfg.SiteURL,
		TablePrefix:   cfg.TablePrefix,
		AuthorEmail:   cfg.AuthorEmail,
		ChunkRows:     cfg.ChunkRows,
		StepBudget:    cfg.StepBudget,
		LockStale:     cfg.TickLockStale,
	}, st, archiver, logger, opts...)

	sched := scheduler.New(scheduler.Config{
		Cooldown:          cfg.TickCooldown,
		LockStale:         cfg.TickLockStale,
		KeepLastScheduled: cfg.KeepLastScheduled,
	}, layout, st, svc, clk, logger)

	return &App{
		Layout:    layout,
		Archiver:  archiver,
		Backups:   svc,
		Scheduler: sched,
		source:    source,
	}
}

// APIDeps returns what the HTTP API routes to, with readiness checks for
// the storage roots and the site database.
func (a *App) APIDeps() api.Deps {
	checks := map[string]api.ReadyCheck{
		"storage": func(context.Context) error {
			for _, dir := range []string{a.Layout.BackupRoot, a.Layout.ArchiveRoot, a.Layout.ScheduleRoot} {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			return nil
		},
	}
	if a.source != nil {
		checks["database"] = a.source.Ping
	}
	return api.Deps{
		Backups:   a.Backups,
		Artifacts: a.Archiver,
		Layout:    a.Layout,
		Schedule:  a.Scheduler,
		Checks:    checks,
	}
}

// Close releases the database connection.
func (a *App) Close() {
	if a.source != nil && a.source.Close != nil {
		a.source.Close()
	}
}

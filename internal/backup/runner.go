package backup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/miketropi/wp-backup/internal/archive"
	"github.com/miketropi/wp-backup/internal/dump"
	"github.com/miketropi/wp-backup/internal/metrics"
	"github.com/miketropi/wp-backup/internal/model"
	"github.com/miketropi/wp-backup/internal/platform"
	"github.com/miketropi/wp-backup/internal/store"
)

// Run executes the step sc.Step of Plan(sc.Types) once and returns the
// updated context. A completed context or an index past the plan is
// returned unchanged.
//
// A returned error means the step should simply be retried: the context
// passed in is still valid. Step failures that end the job are not errors;
// they come back as a completed context with Failed set.
func (s *Service) Run(ctx context.Context, sc StepContext) (StepContext, error) {
	if sc.Completed {
		return sc, nil
	}
	step, ok := StepAt(sc.Types, sc.Step)
	if !ok {
		return sc, nil
	}

	logger := s.logger.With().Str("step", step.Name()).Int("index", sc.Step).Str("folder", sc.Job.Folder).Logger()
	start := s.clock.Now()

	var next StepContext
	var err error
	switch step.Kind {
	case StepCreateConfig:
		next, err = s.createConfig(sc)
	case StepDatabase:
		next, err = s.backupDatabase(ctx, sc, logger)
	case StepArchive:
		next, err = s.backupFiles(ctx, sc, step, logger)
	case StepFinish:
		next, err = s.finish(ctx, sc)
	default:
		err = fmt.Errorf("unknown step kind %d", step.Kind)
	}

	result := "ok"
	switch {
	case err != nil:
		result = "retry"
		logger.Warn().Err(err).Msg("step did not complete")
	case next.Failed:
		result = "failed"
	case next.Step == sc.Step:
		result = "partial"
	}
	metrics.ObserveStep(step.Name(), result, s.clock.Now().Sub(start))
	if err != nil {
		return sc, err
	}
	logger.Debug().Str("result", result).Int("next", next.Step).Msg("step executed")
	return next, nil
}

func (s *Service) createConfig(sc StepContext) (StepContext, error) {
	now := s.clock.Now().UTC()
	id := platform.NewName("")
	folder := model.FolderName(id, now)

	name := sc.Name
	if name == "" {
		name = ManualName(now)
	}
	job := &model.Backup{
		ID:          id,
		Name:        name,
		Types:       model.JoinTypes(sc.Types),
		Date:        now.Format(time.RFC3339),
		Description: sc.Description,
		AuthorEmail: s.cfg.AuthorEmail,
		Status:      model.StatusPending,
		Size:        model.PendingSize,
		SiteURL:     s.cfg.SiteURL,
		TablePrefix: s.cfg.TablePrefix,
	}
	dir := s.cfg.JobDir(folder)
	if err := s.store.MkdirAll(dir); err != nil {
		return sc, fmt.Errorf("create job folder: %w", err)
	}
	if err := store.SaveJSON(s.store, s.cfg.ConfigPath(folder), job); err != nil {
		_ = s.store.Delete(dir, true)
		return sc, fmt.Errorf("write job config: %w", err)
	}

	next := sc
	next.Name = name
	next.Job = JobRef{ID: id, Folder: folder}
	next.StartTime = &now
	next.EndTime = nil
	next.Scratch = Scratch{}
	next.Step++
	s.logger.Info().Str("folder", folder).Str("name", name).Str("types", job.Types).Msg("backup job created")
	return next, nil
}

// backupDatabase initializes the dump on its first invocation and returns
// without advancing. Later invocations drain chunks until the dump is done
// or the step budget runs out.
func (s *Service) backupDatabase(ctx context.Context, sc StepContext, logger zerolog.Logger) (StepContext, error) {
	if s.source == nil {
		return s.fail(ctx, sc, fmt.Errorf("%w: no database configured", model.ErrStepFailure))
	}
	d := dump.NewDumper(dump.Options{
		Source:      s.source,
		Store:       s.store,
		Dir:         s.cfg.JobDir(sc.Job.Folder),
		JobID:       sc.Job.ID,
		ChunkRows:   s.cfg.ChunkRows,
		TablePrefix: s.cfg.TablePrefix,
		Clock:       s.clock,
		Logger:      logger,
	})

	if sc.Scratch.Dump == nil || !sc.Scratch.Dump.Started {
		if err := d.Start(ctx); err != nil {
			return sc, fmt.Errorf("start dump: %w", err)
		}
		next := sc
		next.Scratch.Dump = &DumpScratch{Started: true}
		return next, nil
	}

	started := s.clock.Now()
	for {
		done, err := d.ProcessChunk(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return sc, ctx.Err()
			}
			return s.fail(ctx, sc, fmt.Errorf("%w: dump database: %v", model.ErrStepFailure, err))
		}
		if done {
			break
		}
		if s.cfg.StepBudget > 0 && s.clock.Now().Sub(started) >= s.cfg.StepBudget {
			return sc, nil
		}
	}
	if err := d.Finish(ctx); err != nil {
		return sc, fmt.Errorf("finish dump: %w", err)
	}

	next := sc
	next.Scratch.Dump = nil
	next.Step++
	return next, nil
}

func (s *Service) backupFiles(ctx context.Context, sc StepContext, step Step, logger zerolog.Logger) (StepContext, error) {
	source, exclude := s.archiveSource(step.Type)
	res, err := s.archiver.Write(ctx, archive.Options{
		Source:      source,
		Destination: filepath.Join(s.cfg.JobDir(sc.Job.Folder), string(step.Type)+".zip"),
		Exclude:     exclude,
	})
	if err != nil {
		if ctx.Err() != nil {
			return sc, ctx.Err()
		}
		return s.fail(ctx, sc, fmt.Errorf("%w: archive %s: %v", model.ErrStepFailure, step.Type, err))
	}
	logger.Info().Int("files", res.Files).Str("bytes", humanize.IBytes(uint64(res.Bytes))).Msg("archive written")

	next := sc
	next.Step++
	return next, nil
}

// archiveSource returns the directory archived for t and what to leave out.
func (s *Service) archiveSource(t model.BackupType) (string, []string) {
	switch t {
	case model.BackupTypePlugins:
		var exclude []string
		if s.cfg.OwnPluginName != "" {
			exclude = append(exclude, s.cfg.OwnPluginName)
		}
		return s.cfg.PluginsDir, exclude
	case model.BackupTypeThemes:
		return s.cfg.ThemesDir, nil
	default:
		var exclude []string
		for _, root := range []string{s.cfg.BackupRoot, s.cfg.ArchiveRoot, s.cfg.ScheduleRoot} {
			if rel, ok := within(s.cfg.UploadsDir, root); ok {
				exclude = append(exclude, rel)
			}
		}
		return s.cfg.UploadsDir, exclude
	}
}

// within returns path relative to base when path lies strictly inside base.
func within(base, path string) (string, bool) {
	if base == "" || path == "" {
		return "", false
	}
	rel, err := filepath.Rel(filepath.Clean(base), filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (s *Service) finish(ctx context.Context, sc StepContext) (StepContext, error) {
	size, err := FolderSize(s.cfg.JobDir(sc.Job.Folder))
	if err != nil {
		return sc, err
	}
	job, err := s.Update(sc.Job.Folder, func(b *model.Backup) {
		b.Status = model.StatusCompleted
		b.Size = humanize.IBytes(size)
	})
	if err != nil {
		return sc, err
	}
	s.releaseProcessLock(sc.Job.Folder)

	now := s.clock.Now().UTC()
	next := sc
	next.Step++
	next.Completed = true
	next.EndTime = &now
	next.Scratch = Scratch{}
	s.logger.Info().Str("folder", job.Folder).Str("size", job.Size).Msg("backup completed")
	s.notify(ctx, Event{Kind: EventCompleted, Job: job, Context: next})
	return next, nil
}

// fail marks the job failed and ends the run.
func (s *Service) fail(ctx context.Context, sc StepContext, cause error) (StepContext, error) {
	s.logger.Error().Err(cause).Str("folder", sc.Job.Folder).Int("step", sc.Step).Msg("backup step failed")

	now := s.clock.Now().UTC()
	next := sc
	next.Completed = true
	next.Failed = true
	next.Error = cause.Error()
	next.EndTime = &now
	next.Scratch = Scratch{}

	s.releaseProcessLock(sc.Job.Folder)
	job, err := s.Update(sc.Job.Folder, func(b *model.Backup) { b.Status = model.StatusFailed })
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			s.logger.Error().Err(err).Str("folder", sc.Job.Folder).Msg("could not record failed status")
		}
		job = &model.Backup{ID: sc.Job.ID, Name: sc.Name, Status: model.StatusFailed, Folder: sc.Job.Folder}
	}
	s.notify(ctx, Event{Kind: EventFailed, Job: job, Context: next})
	return next, nil
}

// ManualName is the default name of a job started without one.
func ManualName(t time.Time) string {
	return "Manual Backup (" + t.Format("January 2, 2006 at 3:04 PM") + ")"
}

// ScheduledName is the name the scheduler gives the jobs it creates.
func ScheduledName(t time.Time) string {
	return model.ScheduledNamePrefix + " (" + t.Format("January 2, 2006 at 3:04 PM") + ")"
}

package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/miketropi/wp-backup/internal/model"
	"github.com/miketropi/wp-backup/internal/store"
)

// Get loads the config.json of one job folder. An absent, empty or corrupt
// document is model.ErrNotFound.
func (s *Service) Get(folder string) (*model.Backup, error) {
	if err := ValidateFolder(folder); err != nil {
		return nil, err
	}
	var job model.Backup
	err := store.LoadJSON(s.store, s.cfg.ConfigPath(folder), &job)
	if errors.Is(err, model.ErrConfigInvalid) {
		// A corrupt config.json is indistinguishable from a missing job.
		return nil, fmt.Errorf("get backup %s: %w (%v)", folder, model.ErrNotFound, err)
	}
	if err != nil {
		return nil, fmt.Errorf("get backup %s: %w", folder, err)
	}
	job.Folder = folder
	return &job, nil
}

// List returns every job under BackupRoot, newest first. Folders without a
// readable config.json are skipped.
func (s *Service) List() ([]model.Backup, error) {
	entries, err := s.store.List(s.cfg.BackupRoot)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	var jobs []model.Backup
	for _, e := range entries {
		if !e.IsDir {
			continue
		}
		job, err := s.Get(e.Name)
		if err != nil {
			s.logger.Debug().Err(err).Str("folder", e.Name).Msg("skipping folder without a readable config")
			continue
		}
		jobs = append(jobs, *job)
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		ti, tj := jobs[i].CreatedAt(), jobs[j].CreatedAt()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return jobs[i].Folder > jobs[j].Folder
	})
	return jobs, nil
}

// Update applies fn to a job's config.json and saves it. A status change
// that would leave a terminal status is rejected with
// model.ErrStatusRegression.
func (s *Service) Update(folder string, fn func(*model.Backup)) (*model.Backup, error) {
	job, err := s.Get(folder)
	if err != nil {
		return nil, err
	}
	from := job.Status
	fn(job)
	if !model.CanTransition(from, job.Status) {
		return nil, fmt.Errorf("%w: %s from %q to %q", model.ErrStatusRegression, folder, from, job.Status)
	}
	if err := store.SaveJSON(s.store, s.cfg.ConfigPath(folder), job); err != nil {
		return nil, fmt.Errorf("update backup %s: %w", folder, err)
	}
	return job, nil
}

// Delete removes a job folder and its download artifact.
func (s *Service) Delete(folder string) error {
	if err := ValidateFolder(folder); err != nil {
		return err
	}
	dir := s.cfg.JobDir(folder)
	if !s.store.Exists(dir) {
		return fmt.Errorf("delete backup %s: %w", folder, model.ErrNotFound)
	}
	if err := s.store.Delete(dir, true); err != nil {
		return fmt.Errorf("delete backup %s: %w", folder, err)
	}
	if err := s.store.Delete(s.cfg.DownloadPath(folder), false); err != nil {
		return fmt.Errorf("delete download for %s: %w", folder, err)
	}
	s.logger.Info().Str("folder", folder).Msg("backup deleted")
	return nil
}

// FolderSize sums the sizes of the regular files under dir. Symlinks are
// not followed.
func FolderSize(dir string) (uint64, error) {
	var total uint64
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p != dir {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		total += uint64(info.Size())
		return nil
	})
	if err != nil {
		return 0, &model.StorageError{Op: "size", Path: dir, Err: err}
	}
	return total, nil
}

package backup

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/miketropi/wp-backup/internal/model"
)

// validFolderRe matches job folder names. It rejects separators and dot
// segments so a caller-supplied folder can never escape BackupRoot.
var validFolderRe = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]*$`)

// Layout is where the engine keeps its files.
type Layout struct {
	// BackupRoot holds one folder per job.
	BackupRoot string
	// ArchiveRoot holds the downloadable <folder>.zip artifacts.
	ArchiveRoot string
	// ScheduleRoot holds the schedule config, the scheduler state and locks.
	ScheduleRoot string
}

// ValidateFolder rejects folder names that are empty or not a single path
// segment.
func ValidateFolder(folder string) error {
	if !validFolderRe.MatchString(folder) || folder == "." || folder == ".." {
		return fmt.Errorf("%w: invalid backup folder %q", model.ErrNotFound, folder)
	}
	return nil
}

func (l Layout) JobDir(folder string) string { return filepath.Join(l.BackupRoot, folder) }

func (l Layout) ConfigPath(folder string) string {
	return filepath.Join(l.BackupRoot, folder, model.ConfigFileName)
}

func (l Layout) StepContextPath(folder string) string {
	return filepath.Join(l.BackupRoot, folder, model.StepContextFileName)
}

func (l Layout) ProcessLockPath(folder string) string {
	return filepath.Join(l.BackupRoot, folder, model.ProcessLockFileName)
}

func (l Layout) DownloadPath(folder string) string {
	return filepath.Join(l.ArchiveRoot, folder+".zip")
}

func (l Layout) ScheduleConfigPath() string {
	return filepath.Join(l.ScheduleRoot, "schedule-config.json")
}

func (l Layout) SchedulerStatePath() string {
	return filepath.Join(l.ScheduleRoot, "cron-manager.json")
}

// LockPath is the advisory lock guarding name (the scheduler or one job).
func (l Layout) LockPath(name string) string {
	return filepath.Join(l.ScheduleRoot, "locks", name+".lock")
}

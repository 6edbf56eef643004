package model

import (
	"fmt"
	"strings"
	"time"
)

// BackupType names one part of a site backup.
type BackupType string

const (
	BackupTypeDatabase BackupType = "database"
	BackupTypePlugins  BackupType = "plugins"
	BackupTypeThemes   BackupType = "themes"
	BackupTypeUploads  BackupType = "uploads"
)

// AllBackupTypes lists every backup type in the order steps run.
var AllBackupTypes = []BackupType{
	BackupTypeDatabase,
	BackupTypePlugins,
	BackupTypeThemes,
	BackupTypeUploads,
}

// ScheduledNamePrefix marks jobs created by the scheduler. Retention pruning
// only ever touches jobs whose name starts with it.
const ScheduledNamePrefix = "Backup Schedule"

// PendingSize is the backup_size placeholder written while a job is running.
const PendingSize = "???"

// Backup is the config.json document stored in every job folder. Field names
// are a stable on-disk contract.
type Backup struct {
	ID          string `json:"backup_id"`
	Name        string `json:"backup_name"`
	Types       string `json:"backup_types"`
	Date        string `json:"backup_date"`
	Description string `json:"backup_description"`
	AuthorEmail string `json:"backup_author_email"`
	Status      string `json:"backup_status"`
	Size        string `json:"backup_size"`
	SiteURL     string `json:"site_url"`
	TablePrefix string `json:"table_prefix"`

	// Folder is the job folder name. It is derived from the folder the
	// document was read from and never written to disk.
	Folder string `json:"-"`
}

// BackupTypes splits the comma-joined backup_types field.
func (b *Backup) BackupTypes() []BackupType {
	var out []BackupType
	for _, part := range strings.Split(b.Types, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, BackupType(p))
		}
	}
	return out
}

// CreatedAt parses backup_date. A malformed date yields the zero time.
func (b *Backup) CreatedAt() time.Time {
	t, err := time.Parse(time.RFC3339, b.Date)
	if err != nil {
		return time.Time{}
	}
	return t
}

// IsScheduled reports whether the job was created by the scheduler.
func (b *Backup) IsScheduled() bool {
	return strings.HasPrefix(b.Name, ScheduledNamePrefix)
}

// JoinTypes renders types the way backup_types stores them.
func JoinTypes(types []BackupType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

// NormalizeTypes validates types and returns them de-duplicated in step order.
func NormalizeTypes(types []BackupType) ([]BackupType, error) {
	if len(types) == 0 {
		return nil, fmt.Errorf("%w: at least one backup type is required", ErrConfigInvalid)
	}
	want := make(map[BackupType]bool, len(types))
	for _, t := range types {
		if !IsValidBackupType(t) {
			return nil, fmt.Errorf("%w: unknown backup type %q", ErrConfigInvalid, t)
		}
		want[t] = true
	}
	out := make([]BackupType, 0, len(want))
	for _, t := range AllBackupTypes {
		if want[t] {
			out = append(out, t)
		}
	}
	return out, nil
}

// IsValidBackupType reports whether t is a known backup type.
func IsValidBackupType(t BackupType) bool {
	for _, known := range AllBackupTypes {
		if t == known {
			return true
		}
	}
	return false
}

// FolderName builds the unique, sortable job folder name.
func FolderName(id string, created time.Time) string {
	return "backup_" + id + "_" + created.UTC().Format("2006-01-02_15-04-05")
}

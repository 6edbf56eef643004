package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTypes_OrdersAndDedupes(t *testing.T) {
	got, err := NormalizeTypes([]BackupType{BackupTypeUploads, BackupTypeDatabase, BackupTypeUploads})
	require.NoError(t, err)
	assert.Equal(t, []BackupType{BackupTypeDatabase, BackupTypeUploads}, got)
}

func TestNormalizeTypes_Invalid(t *testing.T) {
	_, err := NormalizeTypes(nil)
	assert.ErrorIs(t, err, ErrConfigInvalid)

	_, err = NormalizeTypes([]BackupType{"media"})
	assert.ErrorIs(t, err, ErrConfigInvalid)
	assert.Contains(t, err.Error(), "media")
}

func TestBackup_TypesAndDate(t *testing.T) {
	b := &Backup{
		Name:  ScheduledNamePrefix + " (June 1, 2025 at 3:00 AM)",
		Types: "database, plugins,,uploads",
		Date:  "2025-06-01T03:00:00Z",
	}
	assert.Equal(t, []BackupType{BackupTypeDatabase, BackupTypePlugins, BackupTypeUploads}, b.BackupTypes())
	assert.Equal(t, time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC), b.CreatedAt())
	assert.True(t, b.IsScheduled())

	manual := &Backup{Name: "Before upgrade", Date: "garbage"}
	assert.False(t, manual.IsScheduled())
	assert.True(t, manual.CreatedAt().IsZero())
}

func TestFolderName(t *testing.T) {
	created := time.Date(2025, 7, 2, 14, 5, 9, 0, time.UTC)
	assert.Equal(t, "backup_abc_2025-07-02_14-05-09", FolderName("abc", created))
}

func TestScheduleConfig_Normalize(t *testing.T) {
	cfg := ScheduleConfig{Enabled: true, Frequency: " Daily ", Types: []BackupType{BackupTypeUploads, BackupTypeDatabase}}
	require.NoError(t, cfg.Normalize())
	assert.Equal(t, FrequencyDaily, cfg.Frequency)
	assert.Equal(t, []BackupType{BackupTypeDatabase, BackupTypeUploads}, cfg.Types)

	empty := ScheduleConfig{}
	require.NoError(t, empty.Normalize())
	assert.Equal(t, FrequencyWeekly, empty.Frequency)
	assert.Equal(t, AllBackupTypes, empty.Types)

	bad := ScheduleConfig{Frequency: "fortnightly"}
	assert.ErrorIs(t, bad.Normalize(), ErrConfigInvalid)
}

func TestStorageError_Is(t *testing.T) {
	err := error(&StorageError{Op: "write", Path: "/tmp/x", Err: errors.New("disk full")})
	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, "write /tmp/x: disk full", err.Error())
}

package request

// CreateBackup starts a manual backup.
type CreateBackup struct {
	Name        string   `json:"name" validate:"max=255"`
	Description string   `json:"description" validate:"max=2048"`
	Types       []string `json:"types" validate:"required,min=1,dive,backup_type"`
}

// AdvanceBackup presents the process token issued when the job was created.
type AdvanceBackup struct {
	Token string `json:"token" validate:"max=255"`
}

// ValidateLock presents a process lock token.
type ValidateLock struct {
	Token string `json:"token" validate:"required"`
}

// UpdateSchedule replaces the schedule config.
type UpdateSchedule struct {
	Enabled   bool     `json:"enabled"`
	Frequency string   `json:"frequency" validate:"omitempty,oneof=hourly daily weekly monthly yearly custom"`
	Types     []string `json:"types" validate:"omitempty,dive,backup_type"`
	Cron      string   `json:"cron" validate:"omitempty,max=255"`
}

package backup

import (
	"time"

	"github.com/miketropi/wp-backup/internal/model"
)

// StepContext is the resumable state of one job run. The scheduler persists
// it after every tick; manual jobs keep it inside their job folder.
type StepContext struct {
	PeriodKey string `json:"period_key,omitempty"`

	// Step indexes Plan(Types).
	Step      int    `json:"step"`
	Completed bool   `json:"completed"`
	Failed    bool   `json:"failed,omitempty"`
	Error     string `json:"error,omitempty"`

	// Types, Name and Description are injected before the first step.
	Types       []model.BackupType `json:"backup_types,omitempty"`
	Name        string             `json:"backup_name,omitempty"`
	Description string             `json:"backup_description,omitempty"`

	Job       JobRef     `json:"job"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	Scratch Scratch `json:"scratch"`
}

// JobRef points at the BackupJob a context is driving.
type JobRef struct {
	ID     string `json:"id,omitempty"`
	Folder string `json:"folder,omitempty"`
}

// Scratch holds per-step resumable data. Each step owns one field.
type Scratch struct {
	Dump *DumpScratch `json:"dump,omitempty"`
}

// DumpScratch records that the database step has initialized its dump. The
// row cursor itself is checkpointed by the dumper inside the job folder.
type DumpScratch struct {
	Started bool `json:"started"`
}

// Done reports whether no further step will run for this context.
func (c StepContext) Done() bool { return c.Completed }

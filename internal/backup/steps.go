package backup

import (
	"fmt"

	"github.com/miketropi/wp-backup/internal/model"
)

// StepKind enumerates the step variants of a backup job.
type StepKind int

const (
	StepCreateConfig StepKind = iota
	StepDatabase
	StepArchive
	StepFinish
)

func (k StepKind) String() string {
	switch k {
	case StepCreateConfig:
		return "create_config"
	case StepDatabase:
		return "database"
	case StepArchive:
		return "archive"
	case StepFinish:
		return "finish"
	default:
		return fmt.Sprintf("step(%d)", int(k))
	}
}

// Step is one entry of a job plan. Type is set for StepArchive.
type Step struct {
	Kind StepKind
	Type model.BackupType
}

// Name is a human label used in logs and metrics.
func (s Step) Name() string {
	if s.Kind == StepArchive {
		return "backup_" + string(s.Type)
	}
	if s.Kind == StepDatabase {
		return "backup_database"
	}
	return s.Kind.String()
}

// Plan returns the ordered steps for the requested types: create_config,
// one step per type in canonical order, then finish. Unknown types are
// ignored.
func Plan(types []model.BackupType) []Step {
	want := make(map[model.BackupType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	steps := []Step{{Kind: StepCreateConfig}}
	for _, t := range model.AllBackupTypes {
		if !want[t] {
			continue
		}
		if t == model.BackupTypeDatabase {
			steps = append(steps, Step{Kind: StepDatabase, Type: t})
		} else {
			steps = append(steps, Step{Kind: StepArchive, Type: t})
		}
	}
	return append(steps, Step{Kind: StepFinish})
}

// StepAt resolves index against Plan(types).
func StepAt(types []model.BackupType, index int) (Step, bool) {
	plan := Plan(types)
	if index < 0 || index >= len(plan) {
		return Step{}, false
	}
	return plan[index], true
}

package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/miketropi/wp-backup/internal/backup"
	"github.com/miketropi/wp-backup/internal/model"
	"github.com/miketropi/wp-backup/internal/store"
)

// State is the scheduler's persisted document: the cooldown timestamp and
// the context of the scheduled job in progress.
type State struct {
	LastRun *time.Time          `json:"last_run,omitempty"`
	Context *backup.StepContext `json:"context,omitempty"`
}

// State loads the persisted scheduler state. A missing document is the zero
// State.
func (s *Scheduler) State() (State, error) {
	var st State
	err := store.LoadJSON(s.store, s.layout.SchedulerStatePath(), &st)
	if errors.Is(err, model.ErrNotFound) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("load scheduler state: %w", err)
	}
	return st, nil
}

func (s *Scheduler) saveState(st State) error {
	if err := store.SaveJSON(s.store, s.layout.SchedulerStatePath(), st); err != nil {
		return fmt.Errorf("save scheduler state: %w", err)
	}
	return nil
}

// LoadSchedule reads the schedule config. No schedule is (nil, nil).
func (s *Scheduler) LoadSchedule() (*model.ScheduleConfig, error) {
	var cfg model.ScheduleConfig
	err := store.LoadJSON(s.store, s.layout.ScheduleConfigPath(), &cfg)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	return &cfg, nil
}

// SaveSchedule validates and persists the schedule config.
func (s *Scheduler) SaveSchedule(cfg model.ScheduleConfig) (*model.ScheduleConfig, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if cfg.Frequency == model.FrequencyCustom {
		// Without an expression every tick is a new period.
		if cfg.Cron == "" {
			return nil, fmt.Errorf("%w: custom frequency needs a cron expression", model.ErrConfigInvalid)
		}
		if _, err := ParseCron(cfg.Cron); err != nil {
			return nil, err
		}
	} else {
		cfg.Cron = ""
	}
	if err := store.SaveJSON(s.store, s.layout.ScheduleConfigPath(), cfg); err != nil {
		return nil, fmt.Errorf("save schedule: %w", err)
	}
	s.logger.Info().Bool("enabled", cfg.Enabled).Str("frequency", string(cfg.Frequency)).Str("types", model.JoinTypes(cfg.Types)).Msg("schedule saved")
	return &cfg, nil
}

// Package scheduler drives the recurring backup job one step per tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"github.com/miketropi/wp-backup/internal/backup"
	"github.com/miketropi/wp-backup/internal/metrics"
	"github.com/miketropi/wp-backup/internal/model"
	"github.com/miketropi/wp-backup/internal/store"
)

// Reasons reported in Result.
const (
	ReasonRan        = "ran"
	ReasonBusy       = "busy"
	ReasonCooldown   = "cooldown"
	ReasonNoSchedule = "no_schedule"
	ReasonDisabled   = "disabled"
	ReasonCompleted  = "completed"
	ReasonIdle       = "idle"
	ReasonStepError  = "step_error"
	ReasonError      = "error"
)

const lockName = "scheduler"

// Jobs executes backup steps.
type Jobs interface {
	Run(ctx context.Context, sc backup.StepContext) (backup.StepContext, error)
	PruneScheduled(keep int) []string
}

// Config tunes the scheduler.
type Config struct {
	// Cooldown is the minimum time between two ticks doing any work.
	Cooldown time.Duration
	// LockStale is the age after which an abandoned tick lock is broken. A
	// running tick refreshes its lock every LockStale/3.
	LockStale time.Duration
	// KeepLastScheduled is how many scheduled jobs survive pruning.
	KeepLastScheduled int
}

// Result describes what a tick did.
type Result struct {
	Ran       bool                `json:"ran"`
	Reason    string              `json:"reason"`
	PeriodKey string              `json:"period_key,omitempty"`
	Context   *backup.StepContext `json:"context,omitempty"`
}

// Scheduler decides whether the scheduled job is due and advances it.
type Scheduler struct {
	cfg    Config
	layout backup.Layout
	store  store.Store
	jobs   Jobs
	clock  clock.Clock
	logger zerolog.Logger

	mu sync.Mutex
}

// New creates a Scheduler.
func New(cfg Config, layout backup.Layout, st store.Store, jobs Jobs, clk clock.Clock, logger zerolog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Scheduler{
		cfg:    cfg,
		layout: layout,
		store:  st,
		jobs:   jobs,
		clock:  clk,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// Tick runs at most one step of the scheduled job.
//
// Ticks are serialized: a tick that finds another one running, in this
// process or another, returns model.ErrTickBusy without doing anything.
// Within the cooldown window a tick is a no-op. Storage and config errors
// abort the tick and leave the persisted context untouched so the next
// tick retries the same step.
func (s *Scheduler) Tick(ctx context.Context) (Result, error) {
	res, err := s.tick(ctx)
	switch {
	case err != nil && errors.Is(err, model.ErrTickBusy):
		res.Reason = ReasonBusy
	case err != nil && res.Reason == "":
		res.Reason = ReasonError
	}
	metrics.ObserveTick(res.Reason)
	return res, err
}

func (s *Scheduler) tick(ctx context.Context) (Result, error) {
	if !s.mu.TryLock() {
		return Result{}, fmt.Errorf("tick: %w", model.ErrTickBusy)
	}
	defer s.mu.Unlock()

	now := s.clock.Now().UTC()
	lock, err := store.TryLock(s.layout.LockPath(lockName), now, s.cfg.LockStale)
	if err != nil {
		return Result{}, fmt.Errorf("tick: %w", err)
	}
	lock.KeepAlive(s.clock, s.cfg.LockStale/3)
	defer lock.Release()

	state, err := s.State()
	if err != nil {
		return Result{}, err
	}
	if state.LastRun != nil && now.Sub(*state.LastRun) < s.cfg.Cooldown {
		s.logger.Debug().Time("last_run", *state.LastRun).Msg("tick skipped: cooldown")
		return Result{Reason: ReasonCooldown}, nil
	}
	// The cooldown counts attempts, not completed work.
	state.LastRun = &now
	if err := s.saveState(state); err != nil {
		return Result{}, err
	}

	sched, err := s.LoadSchedule()
	if err != nil {
		return Result{}, err
	}
	if sched == nil {
		s.logger.Debug().Msg("tick skipped: no schedule")
		return Result{Reason: ReasonNoSchedule}, nil
	}
	if !sched.Enabled {
		s.logger.Debug().Msg("tick skipped: schedule disabled")
		return Result{Reason: ReasonDisabled}, nil
	}

	if sched.Frequency == model.FrequencyCustom && sched.Cron == "" {
		s.logger.Warn().Msg("custom schedule has no cron expression, every tick starts a new backup")
	}
	key, err := PeriodKey(sched.Frequency, now, sched.Cron)
	if err != nil {
		return Result{}, err
	}

	var sc backup.StepContext
	if state.Context != nil {
		sc = *state.Context
	}
	if sc.PeriodKey != key {
		if state.Context != nil && !sc.Completed {
			s.logger.Warn().Str("period", sc.PeriodKey).Str("folder", sc.Job.Folder).Int("step", sc.Step).Msg("abandoning unfinished scheduled backup")
		}
		sc = backup.StepContext{PeriodKey: key}
	}
	if sc.Completed {
		s.logger.Debug().Str("period", key).Msg("tick skipped: period already completed")
		return Result{Reason: ReasonCompleted, PeriodKey: key, Context: &sc}, nil
	}

	if sc.Step == 0 {
		sc.Types = sched.Types
		sc.Name = backup.ScheduledName(now)
	}
	if _, ok := backup.StepAt(sc.Types, sc.Step); !ok {
		return Result{Reason: ReasonIdle, PeriodKey: key, Context: &sc}, nil
	}

	next, err := s.jobs.Run(ctx, sc)
	if err != nil {
		s.logger.Warn().Err(err).Str("period", key).Int("step", sc.Step).Msg("scheduled step failed, will retry")
		return Result{Reason: ReasonStepError, PeriodKey: key}, err
	}
	next.PeriodKey = key
	state.Context = &next
	if err := s.saveState(state); err != nil {
		return Result{}, err
	}

	if next.Completed && !next.Failed {
		s.jobs.PruneScheduled(s.cfg.KeepLastScheduled)
	}
	return Result{Ran: true, Reason: ReasonRan, PeriodKey: key, Context: &next}, nil
}

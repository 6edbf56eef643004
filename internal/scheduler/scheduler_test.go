package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/miketropi/wp-backup/internal/archive"
	"github.com/miketropi/wp-backup/internal/backup"
	"github.com/miketropi/wp-backup/internal/dump"
	"github.com/miketropi/wp-backup/internal/model"
	"github.com/miketropi/wp-backup/internal/store"
)

var day1 = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type siteSource struct{}

func (siteSource) Dialect() dump.Dialect { return dump.MySQL }

func (siteSource) Tables(context.Context) ([]string, error) { return []string{"wp_options"}, nil }

func (siteSource) Schema(context.Context, string) (string, error) {
	return "CREATE TABLE `wp_options` (`option_name` varchar(191))", nil
}

func (siteSource) Rows(_ context.Context, _ string, offset int64, _ int) ([]string, [][]any, error) {
	if offset > 0 {
		return []string{"option_name"}, nil, nil
	}
	return []string{"option_name"}, [][]any{{"siteurl"}, {"home"}}, nil
}

// mockJobs is a testify mock of Jobs.
type mockJobs struct {
	mock.Mock
}

func (m *mockJobs) Run(ctx context.Context, sc backup.StepContext) (backup.StepContext, error) {
	args := m.Called(ctx, sc)
	return args.Get(0).(backup.StepContext), args.Error(1)
}

func (m *mockJobs) PruneScheduled(keep int) []string {
	args := m.Called(keep)
	if v := args.Get(0); v != nil {
		return v.([]string)
	}
	return nil
}

type fixture struct {
	layout backup.Layout
	clock  *testclock.Clock
	store  store.Store
	jobs   *backup.Service
	sched  *Scheduler
}

func newFixture(t *testing.T, keep int) *fixture {
	t.Helper()
	root := t.TempDir()
	uploads := filepath.Join(root, "uploads")
	require.NoError(t, os.MkdirAll(filepath.Join(uploads, "2025"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(uploads, "2025", "a.jpg"), []byte("jpeg"), 0o644))

	layout := backup.Layout{
		BackupRoot:   filepath.Join(uploads, "site-backup"),
		ArchiveRoot:  filepath.Join(uploads, "site-backup-zip"),
		ScheduleRoot: filepath.Join(uploads, "site-backup-cron-manager"),
	}
	clk := testclock.NewClock(day1)
	st := store.NewFileStore()
	svc := backup.NewService(backup.Config{
		Layout:      layout,
		UploadsDir:  uploads,
		TablePrefix: "wp_",
		ChunkRows:   10,
	}, st, archive.NewWriter(zerolog.Nop()), zerolog.Nop(), backup.WithSource(siteSource{}), backup.WithClock(clk))

	cfg := Config{Cooldown: 5 * time.Minute, LockStale: time.Hour, KeepLastScheduled: keep}
	return &fixture{
		layout: layout,
		clock:  clk,
		store:  st,
		jobs:   svc,
		sched:  New(cfg, layout, st, svc, clk, zerolog.Nop()),
	}
}

func (f *fixture) enable(t *testing.T, freq model.Frequency, types ...model.BackupType) {
	t.Helper()
	_, err := f.sched.SaveSchedule(model.ScheduleConfig{Enabled: true, Frequency: freq, Types: types})
	require.NoError(t, err)
}

// tickAfterCooldown moves past the cooldown and ticks.
func (f *fixture) tickAfterCooldown(t *testing.T) Result {
	t.Helper()
	f.clock.Advance(6 * time.Minute)
	res, err := f.sched.Tick(context.Background())
	require.NoError(t, err)
	return res
}

func TestTick_DailyScenario(t *testing.T) {
	f := newFixture(t, 5)
	f.enable(t, model.FrequencyDaily, model.BackupTypeDatabase, model.BackupTypeUploads)
	ctx := context.Background()

	res, err := f.sched.Tick(ctx)
	require.NoError(t, err)
	require.True(t, res.Ran)
	assert.Equal(t, "2025-03-14", res.PeriodKey)
	require.NotNil(t, res.Context)
	assert.Equal(t, 1, res.Context.Step)
	firstID := res.Context.Job.ID
	require.NotEmpty(t, firstID)

	job, err := f.jobs.Get(res.Context.Job.Folder)
	require.NoError(t, err)
	assert.True(t, job.IsScheduled())
	assert.Equal(t, model.StatusPending, job.Status)
	assert.Equal(t, "database,uploads", job.Types)

	var steps []int
	for i := 0; i < 10 && !res.Context.Completed; i++ {
		res = f.tickAfterCooldown(t)
		require.True(t, res.Ran)
		steps = append(steps, res.Context.Step)
	}
	// dump start, dump drain, uploads, finish
	assert.Equal(t, []int{1, 2, 3, 4}, steps)
	assert.True(t, res.Context.Completed)

	job, err = f.jobs.Get(res.Context.Job.Folder)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, job.Status)

	// Same day, past the cooldown: nothing left to do.
	res = f.tickAfterCooldown(t)
	assert.False(t, res.Ran)
	assert.Equal(t, ReasonCompleted, res.Reason)

	// Next day: a brand-new job.
	f.clock.Advance(24 * time.Hour)
	res, err = f.sched.Tick(ctx)
	require.NoError(t, err)
	require.True(t, res.Ran)
	assert.Equal(t, "2025-03-15", res.PeriodKey)
	assert.Equal(t, 1, res.Context.Step)
	assert.NotEqual(t, firstID, res.Context.Job.ID)

	jobs, err := f.jobs.List()
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestTick_CooldownIsNoop(t *testing.T) {
	f := newFixture(t, 5)
	f.enable(t, model.FrequencyDaily, model.BackupTypeUploads)
	ctx := context.Background()

	res, err := f.sched.Tick(ctx)
	require.NoError(t, err)
	require.True(t, res.Ran)

	before, err := os.ReadFile(f.layout.SchedulerStatePath())
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	res, err = f.sched.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, res.Ran)
	assert.Equal(t, ReasonCooldown, res.Reason)

	after, err := os.ReadFile(f.layout.SchedulerStatePath())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestTick_NoScheduleAndDisabled(t *testing.T) {
	f := newFixture(t, 5)
	res, err := f.sched.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonNoSchedule, res.Reason)

	_, err = f.sched.SaveSchedule(model.ScheduleConfig{Enabled: false, Frequency: model.FrequencyDaily})
	require.NoError(t, err)
	res = f.tickAfterCooldown(t)
	assert.Equal(t, ReasonDisabled, res.Reason)

	jobs, err := f.jobs.List()
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestTick_NewPeriodResetsContext(t *testing.T) {
	f := newFixture(t, 5)
	f.enable(t, model.FrequencyDaily, model.BackupTypeUploads)
	stale := backup.StepContext{PeriodKey: "2025-03-13", Step: 2, Completed: true, Types: []model.BackupType{model.BackupTypeUploads}}
	require.NoError(t, store.SaveJSON(f.store, f.layout.SchedulerStatePath(), State{Context: &stale}))

	res, err := f.sched.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, res.Ran)
	assert.Equal(t, "2025-03-14", res.PeriodKey)
	assert.Equal(t, 1, res.Context.Step)
	assert.False(t, res.Context.Completed)
}

func TestTick_StepErrorKeepsContext(t *testing.T) {
	f := newFixture(t, 5)
	f.enable(t, model.FrequencyWeekly, model.BackupTypeUploads)

	jobs := &mockJobs{}
	jobs.On("Run", mock.Anything, mock.MatchedBy(func(sc backup.StepContext) bool {
		return sc.Step == 0 && strings.HasPrefix(sc.Name, model.ScheduledNamePrefix)
	})).Return(backup.StepContext{}, errors.New("disk full")).Once()
	s := New(f.sched.cfg, f.layout, f.store, jobs, f.clock, zerolog.Nop())

	res, err := s.Tick(context.Background())
	require.Error(t, err)
	assert.Equal(t, ReasonStepError, res.Reason)

	state, err := s.State()
	require.NoError(t, err)
	assert.Nil(t, state.Context)
	assert.NotNil(t, state.LastRun)
	jobs.AssertExpectations(t)
}

func TestTick_PrunesAfterScheduledCompletion(t *testing.T) {
	f := newFixture(t, 3)
	f.enable(t, model.FrequencyHourly, model.BackupTypeUploads)

	jobs := &mockJobs{}
	jobs.On("Run", mock.Anything, mock.Anything).Return(backup.StepContext{Step: 3, Completed: true}, nil).Once()
	jobs.On("PruneScheduled", 3).Return([]string{"backup_old"}).Once()
	s := New(f.sched.cfg, f.layout, f.store, jobs, f.clock, zerolog.Nop())

	res, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Ran)
	assert.Equal(t, "2025-03-14-09", res.Context.PeriodKey)
	jobs.AssertExpectations(t)
}

func TestTick_FailedJobIsNotPruned(t *testing.T) {
	f := newFixture(t, 3)
	f.enable(t, model.FrequencyHourly, model.BackupTypeUploads)

	jobs := &mockJobs{}
	jobs.On("Run", mock.Anything, mock.Anything).Return(backup.StepContext{Step: 1, Completed: true, Failed: true}, nil).Once()
	s := New(f.sched.cfg, f.layout, f.store, jobs, f.clock, zerolog.Nop())

	_, err := s.Tick(context.Background())
	require.NoError(t, err)
	jobs.AssertNotCalled(t, "PruneScheduled", mock.Anything)
}

func TestTick_RetentionAcrossDays(t *testing.T) {
	f := newFixture(t, 1)
	f.enable(t, model.FrequencyDaily, model.BackupTypeUploads)

	var folders []string
	for day := 0; day < 3; day++ {
		var res Result
		for i := 0; i < 5; i++ {
			res = f.tickAfterCooldown(t)
			if res.Context != nil && res.Context.Completed {
				break
			}
		}
		require.True(t, res.Context.Completed)
		folders = append(folders, res.Context.Job.Folder)
		f.clock.Advance(24 * time.Hour)
	}

	jobs, err := f.jobs.List()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, folders[2], jobs[0].Folder)
}

func TestTick_BusyLock(t *testing.T) {
	f := newFixture(t, 5)
	f.enable(t, model.FrequencyDaily, model.BackupTypeUploads)

	lock, err := store.TryLock(f.layout.LockPath(lockName), f.clock.Now(), time.Hour)
	require.NoError(t, err)

	res, err := f.sched.Tick(context.Background())
	assert.ErrorIs(t, err, model.ErrTickBusy)
	assert.Equal(t, ReasonBusy, res.Reason)

	lock.Release()
	res, err = f.sched.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Ran)
}

func TestTick_CorruptStateAborts(t *testing.T) {
	f := newFixture(t, 5)
	f.enable(t, model.FrequencyDaily, model.BackupTypeUploads)
	require.NoError(t, f.store.Write(f.layout.SchedulerStatePath(), []byte("{oops")))

	_, err := f.sched.Tick(context.Background())
	assert.ErrorIs(t, err, model.ErrConfigInvalid)
}

func TestSaveSchedule(t *testing.T) {
	f := newFixture(t, 5)

	cfg, err := f.sched.SaveSchedule(model.ScheduleConfig{Enabled: true, Frequency: " Daily ", Cron: "0 3 * * *"})
	require.NoError(t, err)
	assert.Equal(t, model.FrequencyDaily, cfg.Frequency)
	assert.Equal(t, model.AllBackupTypes, cfg.Types)
	assert.Empty(t, cfg.Cron)

	_, err = f.sched.SaveSchedule(model.ScheduleConfig{Enabled: true, Frequency: model.FrequencyCustom, Cron: "every day"})
	assert.ErrorIs(t, err, model.ErrConfigInvalid)

	_, err = f.sched.SaveSchedule(model.ScheduleConfig{Enabled: true, Frequency: model.FrequencyCustom})
	assert.ErrorIs(t, err, model.ErrConfigInvalid)

	_, err = f.sched.SaveSchedule(model.ScheduleConfig{Enabled: true, Frequency: model.FrequencyCustom, Cron: "  "})
	assert.ErrorIs(t, err, model.ErrConfigInvalid)

	_, err = f.sched.SaveSchedule(model.ScheduleConfig{Frequency: "biweekly"})
	assert.ErrorIs(t, err, model.ErrConfigInvalid)

	loaded, err := f.sched.LoadSchedule()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, model.FrequencyDaily, loaded.Frequency)
}

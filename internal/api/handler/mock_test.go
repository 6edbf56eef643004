package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/miketropi/wp-backup/internal/model"
	"github.com/miketropi/wp-backup/internal/scheduler"
)

// mockSchedule implements ScheduleService for handler tests.
type mockSchedule struct {
	mock.Mock
}

func (m *mockSchedule) LoadSchedule() (*model.ScheduleConfig, error) {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.(*model.ScheduleConfig), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSchedule) SaveSchedule(cfg model.ScheduleConfig) (*model.ScheduleConfig, error) {
	args := m.Called(cfg)
	if v := args.Get(0); v != nil {
		return v.(*model.ScheduleConfig), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSchedule) Tick(ctx context.Context) (scheduler.Result, error) {
	args := m.Called(ctx)
	return args.Get(0).(scheduler.Result), args.Error(1)
}

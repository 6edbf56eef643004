package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/miketropi/wp-backup/internal/api/request"
	"github.com/miketropi/wp-backup/internal/api/response"
	"github.com/miketropi/wp-backup/internal/backup"
	"github.com/miketropi/wp-backup/internal/model"
	"github.com/miketropi/wp-backup/internal/scheduler"
)

// ScheduleService is what the schedule handlers need from scheduler.Scheduler.
type ScheduleService interface {
	LoadSchedule() (*model.ScheduleConfig, error)
	SaveSchedule(cfg model.ScheduleConfig) (*model.ScheduleConfig, error)
	Tick(ctx context.Context) (scheduler.Result, error)
}

type Schedule struct {
	svc ScheduleService
}

func NewSchedule(svc ScheduleService) *Schedule {
	return &Schedule{svc: svc}
}

func (h *Schedule) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.LoadSchedule()
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	if cfg == nil {
		response.WriteServiceError(w, fmt.Errorf("no schedule configured: %w", model.ErrNotFound))
		return
	}
	response.WriteJSON(w, http.StatusOK, cfg)
}

func (h *Schedule) Update(w http.ResponseWriter, r *http.Request) {
	raw, err := request.DecodeObject(r)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req request.UpdateSchedule
	if err := request.Bind(backup.SanitizePayload(raw), &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := model.ScheduleConfig{
		Enabled:   req.Enabled,
		Frequency: model.Frequency(req.Frequency),
		Cron:      req.Cron,
	}
	for _, t := range req.Types {
		cfg.Types = append(cfg.Types, model.BackupType(t))
	}
	saved, err := h.svc.SaveSchedule(cfg)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, saved)
}

// Tick runs one scheduler tick.
func (h *Schedule) Tick(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Tick(r.Context())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}

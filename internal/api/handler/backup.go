package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/miketropi/wp-backup/internal/api/request"
	"github.com/miketropi/wp-backup/internal/api/response"
	"github.com/miketropi/wp-backup/internal/backup"
	"github.com/miketropi/wp-backup/internal/model"
)

// BackupService is what the backup handlers need from backup.Service.
type BackupService interface {
	List() ([]model.Backup, error)
	Get(folder string) (*model.Backup, error)
	Create(ctx context.Context, req backup.CreateRequest) (backup.StepContext, string, error)
	Advance(ctx context.Context, folder, token string) (backup.StepContext, error)
	Delete(folder string) error
	CreateLock(folder string) (string, error)
	ValidateLock(token, folder string) error
	DeleteLock(folder string) error
}

// Artifacts builds download artifacts.
type Artifacts interface {
	BuildDownload(ctx context.Context, backupRoot, archiveRoot, folder string) (string, error)
}

type Backup struct {
	svc       BackupService
	artifacts Artifacts
	layout    backup.Layout
}

func NewBackup(svc BackupService, artifacts Artifacts, layout backup.Layout) *Backup {
	return &Backup{svc: svc, artifacts: artifacts, layout: layout}
}

// JobView is a job document as served over the API.
type JobView struct {
	model.Backup
	Folder string `json:"folder"`
}

func viewOf(job model.Backup) JobView {
	return JobView{Backup: job, Folder: job.Folder}
}

// StepResponse is returned by the endpoints that run a step. Token is only
// set when a job is created and must accompany every following step.
type StepResponse struct {
	Context backup.StepContext `json:"context"`
	Done    bool               `json:"done"`
	Token   string             `json:"token,omitempty"`
}

func (h *Backup) List(w http.ResponseWriter, r *http.Request) {
	p := request.ParsePagination(r)
	jobs, err := h.svc.List()
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	page, next, hasMore := paginate(jobs, p)
	views := make([]JobView, len(page))
	for i, job := range page {
		views[i] = viewOf(job)
	}
	response.WritePaginated(w, http.StatusOK, views, next, hasMore)
}

// paginate returns the page of jobs following the cursor folder. An unknown
// cursor yields an empty page.
func paginate(jobs []model.Backup, p request.Pagination) ([]model.Backup, string, bool) {
	start := 0
	if p.Cursor != "" {
		start = len(jobs)
		for i, job := range jobs {
			if job.Folder == p.Cursor {
				start = i + 1
				break
			}
		}
	}
	end := min(start+p.Limit, len(jobs))
	page := jobs[start:end]
	if end >= len(jobs) || len(page) == 0 {
		return page, "", false
	}
	return page, page[len(page)-1].Folder, true
}

func (h *Backup) Get(w http.ResponseWriter, r *http.Request) {
	folder, err := request.RequireFolder(chi.URLParam(r, "folder"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := h.svc.Get(folder)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, viewOf(*job))
}

func (h *Backup) Create(w http.ResponseWriter, r *http.Request) {
	raw, err := request.DecodeObject(r)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req request.CreateBackup
	if err := request.Bind(backup.SanitizePayload(raw), &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	types := make([]model.BackupType, len(req.Types))
	for i, t := range req.Types {
		types[i] = model.BackupType(t)
	}
	sc, token, err := h.svc.Create(r.Context(), backup.CreateRequest{
		Name:        req.Name,
		Description: req.Description,
		Types:       types,
	})
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, StepResponse{Context: sc, Done: sc.Completed, Token: token})
}

func (h *Backup) Advance(w http.ResponseWriter, r *http.Request) {
	folder, err := request.RequireFolder(chi.URLParam(r, "folder"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req request.AdvanceBackup
	if err := request.DecodeOptional(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	sc, err := h.svc.Advance(r.Context(), folder, req.Token)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, StepResponse{Context: sc, Done: sc.Completed})
}

func (h *Backup) Delete(w http.ResponseWriter, r *http.Request) {
	folder, err := request.RequireFolder(chi.URLParam(r, "folder"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.Delete(folder); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Backup) Download(w http.ResponseWriter, r *http.Request) {
	folder, err := request.RequireFolder(chi.URLParam(r, "folder"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.svc.Get(folder); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	path, err := h.artifacts.BuildDownload(r.Context(), h.layout.BackupRoot, h.layout.ArchiveRoot, folder)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (h *Backup) CreateLock(w http.ResponseWriter, r *http.Request) {
	folder, err := request.RequireFolder(chi.URLParam(r, "folder"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, err := h.svc.CreateLock(folder)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, map[string]string{"token": token})
}

func (h *Backup) ValidateLock(w http.ResponseWriter, r *http.Request) {
	folder, err := request.RequireFolder(chi.URLParam(r, "folder"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req request.ValidateLock
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.ValidateLock(req.Token, folder); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func (h *Backup) DeleteLock(w http.ResponseWriter, r *http.Request) {
	folder, err := request.RequireFolder(chi.URLParam(r, "folder"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.DeleteLock(folder); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miketropi/wp-backup/internal/model"
)

func createJob(t *testing.T, h *Backup, body any) StepResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Create(rec, newRequest(http.MethodPost, "/backups", body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp StepResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func postStep(h *Backup, folder string, body any) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Advance(rec, withChiURLParam(newRequest(http.MethodPost, "/backups/"+folder+"/step", body), "folder", folder))
	return rec
}

func advance(t *testing.T, h *Backup, folder, token string) StepResponse {
	t.Helper()
	rec := postStep(h, folder, map[string]string{"token": token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp StepResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestBackupCreate_RunsFirstStepAndSanitizes(t *testing.T) {
	s := newSite(t)
	h := s.backups()

	resp := createJob(t, h, map[string]any{
		"name":  "Before\u0007 upgrade ",
		"types": []string{"uploads"},
		"Extra": map[string]any{"ignored": true},
	})
	assert.False(t, resp.Done)
	assert.Equal(t, 1, resp.Context.Step)
	require.NotEmpty(t, resp.Context.Job.Folder)
	assert.Regexp(t, `^backup_restore\.[a-z0-9]+\.process$`, resp.Token)

	job, err := s.svc.Get(resp.Context.Job.Folder)
	require.NoError(t, err)
	assert.Equal(t, "Before upgrade", job.Name)
	assert.Equal(t, model.StatusPending, job.Status)
	assert.Equal(t, "uploads", job.Types)
}

func TestBackupCreate_Validation(t *testing.T) {
	s := newSite(t)
	h := s.backups()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{"types":`, http.StatusBadRequest},
		{"not an object", `["uploads"]`, http.StatusBadRequest},
		{"no types", `{"name":"x"}`, http.StatusBadRequest},
		{"unknown type", `{"types":["media"]}`, http.StatusBadRequest},
		{"scheduled prefix", `{"name":"Backup Schedule (now)","types":["uploads"]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Create(rec, newRequestRaw(http.MethodPost, "/backups", tt.body))
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, decodeErrorResponse(rec)["error"])
		})
	}
}

func TestBackupAdvance_DrivesJobToCompletion(t *testing.T) {
	s := newSite(t)
	h := s.backups()
	resp := createJob(t, h, map[string]any{"types": []string{"uploads"}})
	folder, token := resp.Context.Job.Folder, resp.Token

	for i := 0; i < 5 && !resp.Done; i++ {
		resp = advance(t, h, folder, token)
	}
	require.True(t, resp.Done)
	assert.False(t, resp.Context.Failed)

	rec := httptest.NewRecorder()
	h.Get(rec, withChiURLParam(newRequest(http.MethodGet, "/backups/"+folder, nil), "folder", folder))
	require.Equal(t, http.StatusOK, rec.Code)
	var job model.Backup
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, model.StatusCompleted, job.Status)
	assert.NotEqual(t, model.PendingSize, job.Size)

	// The token dies with the job.
	rec = postStep(h, folder, map[string]string{"token": token})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NoFileExists(t, s.layout.ProcessLockPath(folder))
}

func TestBackupAdvance_RefusesWrongOrMissingToken(t *testing.T) {
	s := newSite(t)
	h := s.backups()
	resp := createJob(t, h, map[string]any{"types": []string{"uploads"}})
	folder := resp.Context.Job.Folder
	require.NotEmpty(t, resp.Token)

	tests := []struct {
		name string
		body any
	}{
		{"no body", nil},
		{"empty token", map[string]string{}},
		{"wrong token", map[string]string{"token": "backup_restore.aaaaaaaaaa.process"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postStep(h, folder, tt.body)
			assert.Equal(t, http.StatusConflict, rec.Code)
			assert.NotEmpty(t, decodeErrorResponse(rec)["error"])
		})
	}

	rec := httptest.NewRecorder()
	h.Advance(rec, withChiURLParam(newRequestRaw(http.MethodPost, "/backups/"+folder+"/step", `{"token":`), "folder", folder))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Refused calls left the job where it was.
	sc, err := s.svc.LoadContext(folder)
	require.NoError(t, err)
	assert.Equal(t, resp.Context.Step, sc.Step)

	next := advance(t, h, folder, resp.Token)
	assert.Equal(t, resp.Context.Step+1, next.Context.Step)
}

func TestBackupAdvance_UnknownAndInvalidFolder(t *testing.T) {
	h := newSite(t).backups()

	rec := httptest.NewRecorder()
	h.Advance(rec, withChiURLParam(newRequest(http.MethodPost, "/backups/nope/step", nil), "folder", "nope"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.Advance(rec, withChiURLParam(newRequest(http.MethodPost, "/backups/x/step", nil), "folder", "../etc"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBackupList_EmptyIsArray(t *testing.T) {
	h := newSite(t).backups()
	rec := httptest.NewRecorder()
	h.List(rec, newRequest(http.MethodGet, "/backups", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[],"has_more":false}`, rec.Body.String())
}

func TestBackupList_NewestFirst(t *testing.T) {
	s := newSite(t)
	h := s.backups()
	first := createJob(t, h, map[string]any{"name": "first", "types": []string{"uploads"}})
	s.clock.Advance(time.Minute)
	second := createJob(t, h, map[string]any{"name": "second", "types": []string{"uploads"}})

	rec := httptest.NewRecorder()
	h.List(rec, newRequest(http.MethodGet, "/backups", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Items      []JobView `json:"items"`
		NextCursor string    `json:"next_cursor"`
		HasMore    bool      `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, 2)
	assert.Equal(t, second.Context.Job.ID, page.Items[0].ID)
	assert.Equal(t, second.Context.Job.Folder, page.Items[0].Folder)
	assert.Equal(t, first.Context.Job.ID, page.Items[1].ID)
	assert.False(t, page.HasMore)

	rec = httptest.NewRecorder()
	h.List(rec, newRequest(http.MethodGet, "/backups?limit=1", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	assert.True(t, page.HasMore)
	assert.Equal(t, second.Context.Job.Folder, page.NextCursor)

	rec = httptest.NewRecorder()
	h.List(rec, newRequest(http.MethodGet, "/backups?limit=1&cursor="+page.NextCursor, nil))
	page.NextCursor = ""
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, first.Context.Job.Folder, page.Items[0].Folder)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.NextCursor)
}

func TestBackupDownloadAndDelete(t *testing.T) {
	s := newSite(t)
	h := s.backups()
	resp := createJob(t, h, map[string]any{"types": []string{"uploads"}})
	folder, token := resp.Context.Job.Folder, resp.Token
	for i := 0; i < 5 && !resp.Done; i++ {
		resp = advance(t, h, folder, token)
	}

	rec := httptest.NewRecorder()
	h.Download(rec, withChiURLParam(newRequest(http.MethodPost, "/backups/"+folder+"/download", nil), "folder", folder))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body["path"])
	_, err := os.Stat(body["path"])
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	h.Delete(rec, withChiURLParam(newRequest(http.MethodDelete, "/backups/"+folder, nil), "folder", folder))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err = os.Stat(body["path"])
	assert.True(t, os.IsNotExist(err))

	rec = httptest.NewRecorder()
	h.Get(rec, withChiURLParam(newRequest(http.MethodGet, "/backups/"+folder, nil), "folder", folder))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.Download(rec, withChiURLParam(newRequest(http.MethodPost, "/backups/"+folder+"/download", nil), "folder", folder))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBackupProcessLock(t *testing.T) {
	s := newSite(t)
	h := s.backups()
	folder := createJob(t, h, map[string]any{"types": []string{"uploads"}}).Context.Job.Folder
	withFolder := func(r *http.Request) *http.Request { return withChiURLParam(r, "folder", folder) }

	rec := httptest.NewRecorder()
	h.CreateLock(rec, withFolder(newRequest(http.MethodPost, "/lock", nil)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	token := created["token"]
	require.NotEmpty(t, token)

	rec = httptest.NewRecorder()
	h.ValidateLock(rec, withFolder(newRequest(http.MethodPost, "/lock/validate", map[string]string{"token": token})))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":true}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ValidateLock(rec, withFolder(newRequest(http.MethodPost, "/lock/validate", map[string]string{"token": "other"})))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	h.ValidateLock(rec, withFolder(newRequest(http.MethodPost, "/lock/validate", map[string]string{})))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.DeleteLock(rec, withFolder(newRequest(http.MethodDelete, "/lock", nil)))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.DeleteLock(rec, withFolder(newRequest(http.MethodDelete, "/lock", nil)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ValidateLock(rec, withFolder(newRequest(http.MethodPost, "/lock/validate", map[string]string{"token": token})))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

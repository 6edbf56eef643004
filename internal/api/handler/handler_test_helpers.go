package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/juju/clock/testclock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/miketropi/wp-backup/internal/archive"
	"github.com/miketropi/wp-backup/internal/backup"
	"github.com/miketropi/wp-backup/internal/scheduler"
	"github.com/miketropi/wp-backup/internal/store"
)

// newRequest creates a new HTTP request with an optional JSON body.
func newRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r
}

// newRequestRaw creates a new HTTP request with a raw string body.
func newRequestRaw(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// withChiURLParam adds a chi URL parameter to the request context.
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeErrorResponse parses the JSON error response body into a map.
func decodeErrorResponse(rec *httptest.ResponseRecorder) map[string]string {
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	return body
}

var testNow = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

// site is a throwaway WordPress content tree with real services on top.
type site struct {
	layout   backup.Layout
	clock    *testclock.Clock
	svc      *backup.Service
	archiver *archive.Writer
	sched    *scheduler.Scheduler
}

func newSite(t *testing.T) *site {
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
	clk := testclock.NewClock(testNow)
	st := store.NewFileStore()
	archiver := archive.NewWriter(zerolog.Nop())
	svc := backup.NewService(backup.Config{
		Layout:      layout,
		UploadsDir:  uploads,
		TablePrefix: "wp_",
		LockStale:   time.Hour,
	}, st, archiver, zerolog.Nop(), backup.WithClock(clk))

	sched := scheduler.New(scheduler.Config{
		Cooldown:          5 * time.Minute,
		LockStale:         time.Hour,
		KeepLastScheduled: 2,
	}, layout, st, svc, clk, zerolog.Nop())

	return &site{layout: layout, clock: clk, svc: svc, archiver: archiver, sched: sched}
}

func (s *site) backups() *Backup {
	return NewBackup(s.svc, s.archiver, s.layout)
}

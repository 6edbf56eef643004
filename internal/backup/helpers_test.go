package backup

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/miketropi/wp-backup/internal/archive"
	"github.com/miketropi/wp-backup/internal/dump"
	"github.com/miketropi/wp-backup/internal/store"
)

var testEpoch = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

// memSource is an in-memory dump.Source.
type memSource struct {
	order  []string
	tables map[string][][]any
	err    error
}

func newMemSource() *memSource {
	return &memSource{
		order: []string{"wp_options", "wp_posts"},
		tables: map[string][][]any{
			"wp_options": {{int64(1), "siteurl"}, {int64(2), "home"}},
			"wp_posts":   {{int64(1), "hello"}, {int64(2), "world"}, {int64(3), "again"}},
		},
	}
}

func (m *memSource) Dialect() dump.Dialect { return dump.MySQL }

func (m *memSource) Tables(context.Context) ([]string, error) { return m.order, nil }

func (m *memSource) Schema(_ context.Context, table string) (string, error) {
	return "CREATE TABLE `" + table + "` (`id` int, `v` text)", nil
}

func (m *memSource) Rows(_ context.Context, table string, offset int64, limit int) ([]string, [][]any, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	rows := m.tables[table]
	if offset >= int64(len(rows)) {
		return []string{"id", "v"}, nil, nil
	}
	end := int(offset) + limit
	if end > len(rows) {
		end = len(rows)
	}
	return []string{"id", "v"}, rows[offset:end], nil
}

// recorder collects notifier events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return errors.New("delivery is best effort")
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

// tickingClock advances by step every time Now is read.
type tickingClock struct {
	*testclock.Clock
	step time.Duration
}

func (c *tickingClock) Now() time.Time {
	c.Clock.Advance(c.step)
	return c.Clock.Now()
}

type fixture struct {
	content string
	cfg     Config
	clock   *testclock.Clock
	source  *memSource
	events  *recorder
	svc     *Service
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	content := t.TempDir()
	uploads := filepath.Join(content, "uploads")
	writeFile(t, filepath.Join(content, "plugins", "akismet", "akismet.php"), "<?php // akismet")
	writeFile(t, filepath.Join(content, "plugins", "wp-backup", "plugin.php"), "<?php // self")
	writeFile(t, filepath.Join(content, "themes", "twentytwenty", "style.css"), "body{}")
	writeFile(t, filepath.Join(uploads, "2025", "03", "photo.jpg"), "jpeg")

	cfg := Config{
		Layout: Layout{
			BackupRoot:   filepath.Join(uploads, "site-backup"),
			ArchiveRoot:  filepath.Join(uploads, "site-backup-zip"),
			ScheduleRoot: filepath.Join(uploads, "site-backup-cron-manager"),
		},
		PluginsDir:    filepath.Join(content, "plugins"),
		ThemesDir:     filepath.Join(content, "themes"),
		UploadsDir:    uploads,
		OwnPluginName: "wp-backup",
		SiteURL:       "https://example.test",
		TablePrefix:   "wp_",
		AuthorEmail:   "admin@example.test",
		ChunkRows:     2,
		LockStale:     time.Hour,
	}

	f := &fixture{
		content: content,
		cfg:     cfg,
		clock:   testclock.NewClock(testEpoch),
		source:  newMemSource(),
		events:  &recorder{},
	}
	all := append([]Option{WithSource(f.source), WithNotifier(f.events), WithClock(f.clock)}, opts...)
	f.svc = NewService(cfg, store.NewFileStore(), archive.NewWriter(zerolog.Nop()), zerolog.Nop(), all...)
	return f
}

// drive advances a manual job until it completes.
func (f *fixture) drive(t *testing.T, sc StepContext, token string) (StepContext, []int) {
	t.Helper()
	var steps []int
	for i := 0; i < 50 && !sc.Completed; i++ {
		next, err := f.svc.Advance(context.Background(), sc.Job.Folder, token)
		require.NoError(t, err)
		steps = append(steps, next.Step)
		sc = next
	}
	require.True(t, sc.Completed, "job did not complete")
	return sc, steps
}

func zipNames(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			names = append(names, f.Name)
		}
	}
	sort.Strings(names)
	return names
}

func writeJobDoc(t *testing.T, cfg Config, folder, name string, created time.Time) {
	t.Helper()
	doc := fmt.Sprintf(`{"backup_id":%q,"backup_name":%q,"backup_types":"uploads","backup_date":%q,"backup_status":"completed","backup_size":"1 KiB"}`,
		folder, name, created.Format(time.RFC3339))
	writeFile(t, cfg.ConfigPath(folder), doc)
}

// Package backup defines the backup job: its ordered steps, the runner that
// executes one step at a time and the operations on finished job folders.
package backup

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"github.com/miketropi/wp-backup/internal/archive"
	"github.com/miketropi/wp-backup/internal/dump"
	"github.com/miketropi/wp-backup/internal/metrics"
	"github.com/miketropi/wp-backup/internal/store"
)

// Config describes the site being backed up and how steps behave.
type Config struct {
	Layout

	PluginsDir string
	ThemesDir  string
	UploadsDir string
	// OwnPluginName is the plugin directory of this tool; it is left out of
	// the plugins archive.
	OwnPluginName string

	SiteURL     string
	TablePrefix string
	AuthorEmail string

	// ChunkRows is the number of rows dumped per chunk.
	ChunkRows int
	// StepBudget bounds how long the database step drains chunks in one
	// invocation. Zero drains until done.
	StepBudget time.Duration
	// LockStale is the age after which an abandoned job lock is broken. A
	// running advance refreshes its lock every LockStale/3.
	LockStale time.Duration
}

// Service executes backup steps and manages job folders.
type Service struct {
	cfg      Config
	store    store.Store
	archiver *archive.Writer
	source   dump.Source
	notifier Notifier
	clock    clock.Clock
	logger   zerolog.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

// Option customizes a Service.
type Option func(*Service)

// WithSource sets the database the database step dumps. Without one, a job
// that includes the database type fails at that step.
func WithSource(src dump.Source) Option {
	return func(s *Service) { s.source = src }
}

// WithNotifier sets who hears about finished jobs.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// NewService creates a Service.
func NewService(cfg Config, st store.Store, archiver *archive.Writer, logger zerolog.Logger, opts ...Option) *Service {
	if cfg.ChunkRows <= 0 {
		cfg.ChunkRows = dump.DefaultChunkRows
	}
	s := &Service{
		cfg:      cfg,
		store:    st,
		archiver: archiver,
		clock:    clock.WallClock,
		logger:   logger.With().Str("component", "backup").Logger(),
		inflight: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Layout returns the engine's file layout.
func (s *Service) Layout() Layout { return s.cfg.Layout }

// Clock returns the clock steps are timed with.
func (s *Service) Clock() clock.Clock { return s.clock }

func (s *Service) notify(ctx context.Context, ev Event) {
	metrics.ObserveJobFinished(ev.Job.Status)
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event", ev.Kind).Str("folder", ev.Job.Folder).Msg("notify failed")
	}
}

// claim marks folder as being advanced in this process. It returns false
// when another advance of the same folder is already running.
func (s *Service) claim(folder string) (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[folder] {
		return nil, false
	}
	s.inflight[folder] = true
	return func() {
		s.mu.Lock()
		delete(s.inflight, folder)
		s.mu.Unlock()
	}, true
}

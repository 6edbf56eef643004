package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/miketropi/wp-backup/internal/api/handler"
	mw "github.com/miketropi/wp-backup/internal/api/middleware"
	"github.com/miketropi/wp-backup/internal/backup"
)

// ReadyCheck reports whether a dependency is usable.
type ReadyCheck func(ctx context.Context) error

// Deps are the services the API routes to.
type Deps struct {
	Backups   handler.BackupService
	Artifacts handler.Artifacts
	Layout    backup.Layout
	Schedule  handler.ScheduleService
	// Checks run on /readyz, keyed by name.
	Checks map[string]ReadyCheck
}

type Server struct {
	router chi.Router
	logger zerolog.Logger
	deps   Deps
}

func NewServer(logger zerolog.Logger, deps Deps) *Server {
	s := &Server{
		router: chi.NewRouter(),
		logger: logger,
		deps:   deps,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	s.router.Route("/api/v1", func(r chi.Router) {
		schedule := handler.NewSchedule(s.deps.Schedule)
		r.Post("/tick", schedule.Tick)
		r.Get("/schedule", schedule.Get)
		r.Put("/schedule", schedule.Update)

		backups := handler.NewBackup(s.deps.Backups, s.deps.Artifacts, s.deps.Layout)
		r.Get("/backups", backups.List)
		r.Post("/backups", backups.Create)
		r.Get("/backups/{folder}", backups.Get)
		r.Delete("/backups/{folder}", backups.Delete)
		r.Post("/backups/{folder}/step", backups.Advance)
		r.Post("/backups/{folder}/download", backups.Download)

		r.Post("/backups/{folder}/lock", backups.CreateLock)
		r.Post("/backups/{folder}/lock/validate", backups.ValidateLock)
		r.Delete("/backups/{folder}/lock", backups.DeleteLock)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.deps.Checks))
	for name := range s.deps.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := map[string]string{}
	healthy := true
	for _, name := range names {
		if err := s.deps.Checks[name](ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

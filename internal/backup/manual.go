package backup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/miketropi/wp-backup/internal/model"
	"github.com/miketropi/wp-backup/internal/store"
)

// CreateRequest starts a manual job.
type CreateRequest struct {
	Name        string
	Description string
	Types       []model.BackupType
}

// Create starts a manual job: it runs create_config immediately, stores the
// context in the new job folder and issues the process token that every
// Advance must present. The token is removed once the job completes or
// fails, and is empty when create_config itself failed.
func (s *Service) Create(ctx context.Context, req CreateRequest) (StepContext, string, error) {
	types, err := model.NormalizeTypes(req.Types)
	if err != nil {
		return StepContext{}, "", err
	}
	name := strings.TrimSpace(req.Name)
	if strings.HasPrefix(name, model.ScheduledNamePrefix) {
		return StepContext{}, "", fmt.Errorf("%w: name %q is reserved for scheduled backups", model.ErrConfigInvalid, name)
	}

	sc, err := s.Run(ctx, StepContext{
		Types:       types,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		return StepContext{}, "", err
	}
	if err := s.saveContext(sc); err != nil {
		return StepContext{}, "", err
	}
	if sc.Completed || sc.Job.Folder == "" {
		return sc, "", nil
	}
	token, err := s.CreateLock(sc.Job.Folder)
	if err != nil {
		return sc, "", err
	}
	return sc, token, nil
}

// Advance runs the next step of a manual job. token must match the process
// token issued by Create, otherwise model.ErrLockMismatch is returned and
// nothing runs. Concurrent advances of the same job get model.ErrTickBusy.
func (s *Service) Advance(ctx context.Context, folder, token string) (StepContext, error) {
	if err := s.requireJobDir(folder); err != nil {
		return StepContext{}, err
	}
	if err := s.ValidateLock(token, folder); err != nil {
		return StepContext{}, err
	}
	release, ok := s.claim(folder)
	if !ok {
		return StepContext{}, fmt.Errorf("advance %s: %w", folder, model.ErrTickBusy)
	}
	defer release()

	lock, err := store.TryLock(s.cfg.LockPath("job-"+folder), s.clock.Now(), s.cfg.LockStale)
	if err != nil {
		return StepContext{}, fmt.Errorf("advance %s: %w", folder, err)
	}
	lock.KeepAlive(s.clock, s.cfg.LockStale/3)
	defer lock.Release()

	sc, err := s.LoadContext(folder)
	if err != nil {
		return StepContext{}, err
	}
	if sc.Completed {
		return sc, nil
	}
	next, err := s.Run(ctx, sc)
	if err != nil {
		return sc, err
	}
	if err := s.saveContext(next); err != nil {
		return sc, err
	}
	return next, nil
}

// LoadContext reads the stored context of a manual job.
func (s *Service) LoadContext(folder string) (StepContext, error) {
	var sc StepContext
	err := store.LoadJSON(s.store, s.cfg.StepContextPath(folder), &sc)
	if errors.Is(err, model.ErrNotFound) {
		return StepContext{}, fmt.Errorf("backup %s has no step context (not a manual job): %w", folder, model.ErrNotFound)
	}
	if err != nil {
		return StepContext{}, err
	}
	return sc, nil
}

func (s *Service) saveContext(sc StepContext) error {
	if sc.Job.Folder == "" {
		return nil
	}
	if err := store.SaveJSON(s.store, s.cfg.StepContextPath(sc.Job.Folder), sc); err != nil {
		return fmt.Errorf("save step context: %w", err)
	}
	return nil
}

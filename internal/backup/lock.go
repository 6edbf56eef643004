package backup

import (
	"fmt"
	"strings"

	"github.com/miketropi/wp-backup/internal/model"
	"github.com/miketropi/wp-backup/internal/platform"
)

// CreateLock issues a one-shot process token for folder and stores it in
// the job folder. Any earlier token is replaced.
func (s *Service) CreateLock(folder string) (string, error) {
	if err := s.requireJobDir(folder); err != nil {
		return "", err
	}
	token := platform.NewProcessToken()
	if err := s.store.Write(s.cfg.ProcessLockPath(folder), []byte(token)); err != nil {
		return "", fmt.Errorf("create lock for %s: %w", folder, err)
	}
	return token, nil
}

// ValidateLock checks token against the one stored for folder. A missing or
// different token is model.ErrLockMismatch.
func (s *Service) ValidateLock(token, folder string) error {
	if err := s.requireJobDir(folder); err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: empty token", model.ErrLockMismatch)
	}
	data, err := s.store.Read(s.cfg.ProcessLockPath(folder))
	if err != nil {
		return fmt.Errorf("%w: no lock for %s", model.ErrLockMismatch, folder)
	}
	if strings.TrimSpace(string(data)) != token {
		return fmt.Errorf("%w: token does not match %s", model.ErrLockMismatch, folder)
	}
	return nil
}

// DeleteLock removes the process token of folder.
func (s *Service) DeleteLock(folder string) error {
	if err := s.requireJobDir(folder); err != nil {
		return err
	}
	path := s.cfg.ProcessLockPath(folder)
	if !s.store.Exists(path) {
		return fmt.Errorf("lock for %s: %w", folder, model.ErrNotFound)
	}
	return s.store.Delete(path, false)
}

// releaseProcessLock drops the token of a job that reached a terminal
// state. Jobs without a token are left alone.
func (s *Service) releaseProcessLock(folder string) {
	if folder == "" {
		return
	}
	path := s.cfg.ProcessLockPath(folder)
	if !s.store.Exists(path) {
		return
	}
	if err := s.store.Delete(path, false); err != nil {
		s.logger.Warn().Err(err).Str("folder", folder).Msg("could not remove process lock")
	}
}

func (s *Service) requireJobDir(folder string) error {
	if err := ValidateFolder(folder); err != nil {
		return err
	}
	if !s.store.Exists(s.cfg.JobDir(folder)) {
		return fmt.Errorf("backup %s: %w", folder, model.ErrNotFound)
	}
	return nil
}

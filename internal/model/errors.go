package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a job, its config.json or a schedule
	// document is absent, empty or unreadable.
	ErrNotFound = errors.New("not found")
	// ErrConfigInvalid is returned for corrupt or schema-invalid documents.
	ErrConfigInvalid = errors.New("invalid config")
	// ErrStorage wraps filesystem failures.
	ErrStorage = errors.New("storage error")
	// ErrStepFailure marks a step whose own logic failed. The job is terminal.
	ErrStepFailure = errors.New("step failed")
	// ErrLockMismatch is returned when a process lock token is absent or wrong.
	ErrLockMismatch = errors.New("process lock mismatch")
	// ErrArchiveSourceMissing is returned when an archive source directory is gone.
	ErrArchiveSourceMissing = errors.New("archive source missing")
	// ErrStatusRegression is returned when a status update would leave a terminal status.
	ErrStatusRegression = errors.New("status cannot change once terminal")
	// ErrTickBusy is returned when another tick or step holds the engine lock.
	ErrTickBusy = errors.New("another tick is in progress")
)

// StorageError carries the operation and path of a failed filesystem call.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStorage) match any StorageError.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

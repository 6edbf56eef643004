package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/juju/clock"

	"github.com/miketropi/wp-backup/internal/model"
)

// Lock is a held advisory lock file.
type Lock struct {
	path string
	stop chan struct{}
	done chan struct{}
}

// TryLock takes an advisory lock by exclusively creating lockPath. It never
// waits: a held lock returns model.ErrTickBusy. A lock whose recorded time is
// older than stale is considered abandoned and is broken, so holders that may
// run longer than stale must call KeepAlive.
func TryLock(lockPath string, now time.Time, stale time.Duration) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, &model.StorageError{Op: "mkdir", Path: filepath.Dir(lockPath), Err: err}
	}
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := f.WriteString(strconv.FormatInt(now.Unix(), 10))
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(lockPath)
				return nil, &model.StorageError{Op: "lock", Path: lockPath, Err: errors.Join(werr, cerr)}
			}
			return &Lock{path: lockPath}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, &model.StorageError{Op: "lock", Path: lockPath, Err: err}
		}
		if stale <= 0 || !lockIsStale(lockPath, now, stale) {
			return nil, fmt.Errorf("%s: %w", lockPath, model.ErrTickBusy)
		}
		if err := os.Remove(lockPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, &model.StorageError{Op: "unlock", Path: lockPath, Err: err}
		}
	}
	return nil, fmt.Errorf("%s: %w", lockPath, model.ErrTickBusy)
}

// Refresh records now as the lock time. A lock file that is gone is not
// recreated.
func (l *Lock) Refresh(now time.Time) error {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return &model.StorageError{Op: "refresh lock", Path: l.path, Err: err}
	}
	_, werr := f.WriteString(strconv.FormatInt(now.Unix(), 10))
	if err := errors.Join(werr, f.Close()); err != nil {
		return &model.StorageError{Op: "refresh lock", Path: l.path, Err: err}
	}
	return nil
}

// KeepAlive refreshes the lock every interval until Release. Pick an
// interval well under the stale age other callers pass to TryLock.
func (l *Lock) KeepAlive(clk clock.Clock, interval time.Duration) {
	if interval <= 0 || l.stop != nil {
		return
	}
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		for {
			select {
			case <-l.stop:
				return
			case t := <-clk.After(interval):
				if err := l.Refresh(t); err != nil {
					return
				}
			}
		}
	}()
}

// Release stops any keep-alive and removes the lock file.
func (l *Lock) Release() {
	if l.stop != nil {
		close(l.stop)
		<-l.done
		l.stop = nil
	}
	_ = os.Remove(l.path)
}

func lockIsStale(lockPath string, now time.Time, stale time.Duration) bool {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return false
	}
	sec, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		// Unreadable content: fall back to the file's modification time.
		info, statErr := os.Stat(lockPath)
		if statErr != nil {
			return false
		}
		return now.Sub(info.ModTime()) > stale
	}
	return now.Sub(time.Unix(sec, 0)) > stale
}

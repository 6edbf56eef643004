// Package store is the engine's narrow document store. Every write replaces
// the whole file through a temp file and a rename so readers never observe a
// half-written document.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/miketropi/wp-backup/internal/model"
)

// Store persists and enumerates files for the backup engine.
type Store interface {
	Read(path string) ([]byte, error)
	Write(path string, data []byte) error
	MkdirAll(path string) error
	Delete(path string, recursive bool) error
	List(dir string) ([]Entry, error)
	Exists(path string) bool
}

// Entry is one directory entry returned by List.
type Entry struct {
	Name    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// FileStore implements Store on the local filesystem.
type FileStore struct {
	perm    fs.FileMode
	dirPerm fs.FileMode
}

// NewFileStore creates a FileStore writing 0644 files and 0755 directories.
func NewFileStore() *FileStore {
	return &FileStore{perm: 0o644, dirPerm: 0o755}
}

// Read returns the file contents or model.ErrNotFound when it does not exist.
func (s *FileStore) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, model.ErrNotFound)
		}
		return nil, &model.StorageError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

// Write atomically replaces path with data, creating parent directories.
func (s *FileStore) Write(path string, data []byte) error {
	if err := s.MkdirAll(filepath.Dir(path)); err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.tmp-%d", path, time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, s.perm); err != nil {
		_ = os.Remove(tmp)
		return &model.StorageError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return &model.StorageError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

func (s *FileStore) MkdirAll(path string) error {
	if err := os.MkdirAll(path, s.dirPerm); err != nil {
		return &model.StorageError{Op: "mkdir", Path: path, Err: err}
	}
	return nil
}

// Delete removes path. Deleting something that does not exist succeeds.
func (s *FileStore) Delete(path string, recursive bool) error {
	var err error
	if recursive {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &model.StorageError{Op: "delete", Path: path, Err: err}
	}
	return nil
}

// List returns the entries of dir sorted by name. A missing dir yields no
// entries. Symlinks are reported with IsDir false.
func (s *FileStore) List(dir string) ([]Entry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &model.StorageError{Op: "list", Path: dir, Err: err}
	}
	out := make([]Entry, 0, len(des))
	for _, de := range des {
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Name:    de.Name(),
			IsDir:   de.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *FileStore) Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// LoadJSON decodes the document at path into v. Absent or empty documents
// are model.ErrNotFound; undecodable ones are model.ErrConfigInvalid.
func LoadJSON(s Store, path string, v any) error {
	data, err := s.Read(path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("%s is empty: %w", path, model.ErrNotFound)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: parse %s: %v", model.ErrConfigInvalid, path, err)
	}
	return nil
}

// SaveJSON writes v as indented JSON, replacing the whole document.
func SaveJSON(s Store, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return s.Write(path, data)
}

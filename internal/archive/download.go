package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/miketropi/wp-backup/internal/model"
)

// DownloadPath returns where the downloadable artifact for folder lives and
// whether it has been built.
func DownloadPath(archiveRoot, folder string) (string, bool) {
	p := filepath.Join(archiveRoot, folder+".zip")
	info, err := os.Stat(p)
	return p, err == nil && info.Mode().IsRegular()
}

// BuildDownload zips the whole job folder into archiveRoot/<folder>.zip. An
// artifact that already exists is returned as is. The zip is assembled under
// a temporary name so a crashed build is never mistaken for a finished one.
func (w *Writer) BuildDownload(ctx context.Context, backupRoot, archiveRoot, folder string) (string, error) {
	dest, ok := DownloadPath(archiveRoot, folder)
	if ok {
		return dest, nil
	}

	src := filepath.Join(backupRoot, folder)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("backup folder %s: %w", folder, model.ErrNotFound)
		}
		return "", &model.StorageError{Op: "stat", Path: src, Err: err}
	}

	tmp := fmt.Sprintf("%s.tmp-%d", dest, time.Now().UnixNano())
	if _, err := w.Write(ctx, Options{Source: src, Destination: tmp, SkipStateFiles: true}); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", &model.StorageError{Op: "rename", Path: dest, Err: err}
	}
	return dest, nil
}

// Package archive streams directory trees into zip files.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/miketropi/wp-backup/internal/model"
)

// Options describes one archive run.
type Options struct {
	// Source is the directory whose contents are archived.
	Source string
	// Destination is the zip file to create. An existing file is overwritten.
	Destination string
	// Exclude lists source-relative paths (usually single top-level
	// segments) that are skipped together with everything beneath them.
	Exclude []string
	// SkipStateFiles leaves out engine state files found directly under
	// Source. Set when Source is a job folder.
	SkipStateFiles bool
}

// Result reports what a Write produced.
type Result struct {
	Path  string
	Files int
	Bytes int64
}

// Writer builds zip archives.
type Writer struct {
	logger zerolog.Logger
}

// NewWriter creates a Writer.
func NewWriter(logger zerolog.Logger) *Writer {
	return &Writer{logger: logger.With().Str("component", "archive-writer").Logger()}
}

// Write walks opts.Source depth-first and streams every regular file into
// opts.Destination under its source-relative path. Symlinks are never
// followed or stored.
func (w *Writer) Write(ctx context.Context, opts Options) (*Result, error) {
	info, err := os.Stat(opts.Source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", model.ErrArchiveSourceMissing, opts.Source)
		}
		return nil, &model.StorageError{Op: "stat", Path: opts.Source, Err: err}
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", model.ErrArchiveSourceMissing, opts.Source)
	}

	if err := os.MkdirAll(filepath.Dir(opts.Destination), 0o755); err != nil {
		return nil, &model.StorageError{Op: "mkdir", Path: filepath.Dir(opts.Destination), Err: err}
	}

	w.logger.Info().Str("source", opts.Source).Str("destination", opts.Destination).Strs("exclude", opts.Exclude).Msg("writing archive")

	f, err := os.Create(opts.Destination)
	if err != nil {
		return nil, &model.StorageError{Op: "create", Path: opts.Destination, Err: err}
	}
	res, err := writeTree(ctx, f, opts.Source, normalizeExcludes(opts.Exclude), opts.SkipStateFiles)
	closeErr := f.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, &model.StorageError{Op: "close", Path: opts.Destination, Err: closeErr}
	}
	res.Path = opts.Destination
	return res, nil
}

func writeTree(ctx context.Context, out io.Writer, root string, exclude []string, skipState bool) (*Result, error) {
	zw := zip.NewWriter(out)
	res := &Result{}

	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return &model.StorageError{Op: "walk", Path: p, Err: err}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if isExcluded(rel, exclude) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if skipState && !d.IsDir() && !strings.Contains(rel, "/") && model.IsJobStateFile(rel) {
			return nil
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return &model.StorageError{Op: "stat", Path: p, Err: err}
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = rel
		if d.IsDir() {
			header.Name += "/"
			_, err = zw.CreateHeader(header)
			return err
		}
		header.Method = zip.Deflate
		entry, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		n, err := copyFile(entry, p)
		if err != nil {
			return err
		}
		res.Files++
		res.Bytes += n
		return nil
	})
	if walkErr != nil {
		_ = zw.Close()
		return nil, walkErr
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize zip: %w", err)
	}
	return res, nil
}

func copyFile(dst io.Writer, src string) (int64, error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, &model.StorageError{Op: "open", Path: src, Err: err}
	}
	n, err := io.Copy(dst, f)
	closeErr := f.Close()
	if err != nil {
		return n, &model.StorageError{Op: "copy", Path: src, Err: err}
	}
	if closeErr != nil {
		return n, &model.StorageError{Op: "close", Path: src, Err: closeErr}
	}
	return n, nil
}

func normalizeExcludes(exclude []string) []string {
	out := make([]string, 0, len(exclude))
	for _, e := range exclude {
		e = strings.Trim(filepath.ToSlash(strings.TrimSpace(e)), "/")
		if e != "" && e != "." {
			out = append(out, e)
		}
	}
	return out
}

func isExcluded(rel string, exclude []string) bool {
	for _, e := range exclude {
		if rel == e || strings.HasPrefix(rel, e+"/") {
			return true
		}
	}
	return false
}

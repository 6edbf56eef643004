package dump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"github.com/miketropi/wp-backup/internal/model"
	"github.com/miketropi/wp-backup/internal/store"
)

// DefaultChunkRows is the number of rows dumped per chunk.
const DefaultChunkRows = 5000

const dumpFooter = "\n-- Dump completed\n"

// Cursor is the dumper's resumable position. It is checkpointed next to the
// dump file after every chunk.
type Cursor struct {
	JobID  string   `json:"job_id"`
	Tables []string `json:"tables"`
	// Table indexes Tables; Offset is the next row to read from it.
	Table  int   `json:"table"`
	Offset int64 `json:"offset"`
	// Bytes is the dump file length covered by this cursor. Anything past
	// it was written by an interrupted chunk and is discarded on resume.
	Bytes     int64     `json:"bytes"`
	Chunks    int       `json:"chunks"`
	Done      bool      `json:"done"`
	Finished  bool      `json:"finished"`
	StartedAt time.Time `json:"started_at"`
}

// Options configures a Dumper.
type Options struct {
	Source Source
	Store  store.Store
	// Dir is the job folder receiving the dump file and cursor checkpoint.
	Dir   string
	JobID string
	// ChunkRows bounds how many rows a single ProcessChunk reads.
	ChunkRows int
	// TablePrefix limits the dump to tables whose names start with it.
	TablePrefix string
	Clock       clock.Clock
	Logger      zerolog.Logger
}

// Dumper writes one job's database dump.
type Dumper struct {
	source      Source
	store       store.Store
	dir         string
	jobID       string
	chunkRows   int
	tablePrefix string
	clock       clock.Clock
	logger      zerolog.Logger

	cursor *Cursor
}

// NewDumper creates a Dumper. Nothing touches the disk until Start or
// ProcessChunk is called.
func NewDumper(opts Options) *Dumper {
	if opts.ChunkRows <= 0 {
		opts.ChunkRows = DefaultChunkRows
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	return &Dumper{
		source:      opts.Source,
		store:       opts.Store,
		dir:         opts.Dir,
		jobID:       opts.JobID,
		chunkRows:   opts.ChunkRows,
		tablePrefix: opts.TablePrefix,
		clock:       opts.Clock,
		logger:      opts.Logger.With().Str("component", "dumper").Str("job_id", opts.JobID).Logger(),
	}
}

// DumpPath is the SQL file being written.
func (d *Dumper) DumpPath() string { return filepath.Join(d.dir, model.DumpFileName) }

func (d *Dumper) cursorPath() string { return filepath.Join(d.dir, model.DumpCursorFileName) }

// Cursor returns a copy of the current cursor, loading the checkpoint if needed.
func (d *Dumper) Cursor() (Cursor, error) {
	if err := d.load(); err != nil {
		return Cursor{}, err
	}
	return *d.cursor, nil
}

// Start creates the dump file, writes the header and positions the cursor
// at the first table. Calling it again before any chunk has been processed
// starts over; once chunks exist it leaves the progress alone.
func (d *Dumper) Start(ctx context.Context) error {
	if err := d.load(); err == nil {
		if d.cursor.Chunks > 0 || d.cursor.Finished {
			return nil
		}
	} else if !errors.Is(err, model.ErrNotFound) {
		return err
	}

	tables, err := d.source.Tables(ctx)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	var selected []string
	for _, t := range tables {
		if strings.HasPrefix(t, d.tablePrefix) {
			selected = append(selected, t)
		}
	}

	now := d.clock.Now().UTC()
	var header bytes.Buffer
	fmt.Fprintf(&header, "-- Site backup SQL dump\n")
	fmt.Fprintf(&header, "-- Job: %s\n", d.jobID)
	fmt.Fprintf(&header, "-- Dialect: %s\n", d.source.Dialect().Name())
	fmt.Fprintf(&header, "-- Started: %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&header, "-- Tables: %d\n", len(selected))

	if err := d.store.MkdirAll(d.dir); err != nil {
		return err
	}
	if err := os.WriteFile(d.DumpPath(), header.Bytes(), 0o644); err != nil {
		return &model.StorageError{Op: "write", Path: d.DumpPath(), Err: err}
	}

	d.cursor = &Cursor{
		JobID:     d.jobID,
		Tables:    selected,
		Bytes:     int64(header.Len()),
		Done:      len(selected) == 0,
		StartedAt: now,
	}
	d.logger.Info().Int("tables", len(selected)).Msg("database dump started")
	return d.save()
}

// ProcessChunk dumps up to ChunkRows rows of the current table and advances
// the cursor. It reports whether every table has been dumped. Any error
// aborts the chunk; the cursor still points at the last completed chunk.
func (d *Dumper) ProcessChunk(ctx context.Context) (bool, error) {
	if err := d.load(); err != nil {
		return false, err
	}
	c := d.cursor
	if c.Done || c.Table >= len(c.Tables) {
		c.Done = true
		return true, nil
	}

	table := c.Tables[c.Table]
	var buf bytes.Buffer
	dialect := d.source.Dialect()

	if c.Offset == 0 {
		schema, err := d.source.Schema(ctx, table)
		if err != nil {
			return false, fmt.Errorf("schema for %s: %w", table, err)
		}
		fmt.Fprintf(&buf, "\n--\n-- Table: %s\n--\n", table)
		if schema != "" {
			fmt.Fprintf(&buf, "DROP TABLE IF EXISTS %s;\n%s;\n", dialect.QuoteIdent(table), strings.TrimRight(schema, "; \n"))
		}
	}

	columns, rows, err := d.source.Rows(ctx, table, c.Offset, d.chunkRows)
	if err != nil {
		return false, fmt.Errorf("read %s at offset %d: %w", table, c.Offset, err)
	}
	if len(rows) > 0 {
		quoted := make([]string, len(columns))
		for i, col := range columns {
			quoted[i] = dialect.QuoteIdent(col)
		}
		colList := strings.Join(quoted, ", ")
		for _, row := range rows {
			vals := make([]string, len(row))
			for i, v := range row {
				vals[i] = dialect.Literal(v)
			}
			fmt.Fprintf(&buf, "INSERT INTO %s (%s) VALUES (%s);\n", dialect.QuoteIdent(table), colList, strings.Join(vals, ", "))
		}
	}

	if err := d.appendAt(c.Bytes, buf.Bytes()); err != nil {
		return false, err
	}

	next := *c
	next.Bytes += int64(buf.Len())
	next.Chunks++
	if len(rows) < d.chunkRows {
		next.Table++
		next.Offset = 0
	} else {
		next.Offset += int64(len(rows))
	}
	next.Done = next.Table >= len(next.Tables)
	d.cursor = &next
	if err := d.save(); err != nil {
		// Keep the in-memory cursor in step with the checkpoint.
		d.cursor = c
		return false, err
	}

	d.logger.Debug().Str("table", table).Int("rows", len(rows)).Int64("offset", next.Offset).Bool("done", next.Done).Msg("dump chunk written")
	return next.Done, nil
}

// Finish writes the footer. It is a no-op once the dump is finished.
func (d *Dumper) Finish(ctx context.Context) error {
	if err := d.load(); err != nil {
		return err
	}
	c := d.cursor
	if c.Finished {
		return nil
	}
	if !c.Done {
		return fmt.Errorf("finish dump: %d of %d tables still pending", len(c.Tables)-c.Table, len(c.Tables))
	}
	if err := d.appendAt(c.Bytes, []byte(dumpFooter)); err != nil {
		return err
	}
	next := *c
	next.Bytes += int64(len(dumpFooter))
	next.Finished = true
	d.cursor = &next
	if err := d.save(); err != nil {
		d.cursor = c
		return err
	}
	d.logger.Info().Int("chunks", next.Chunks).Int64("bytes", next.Bytes).Msg("database dump finished")
	return nil
}

// appendAt truncates the dump file to offset and appends data.
func (d *Dumper) appendAt(offset int64, data []byte) error {
	path := d.DumpPath()
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return &model.StorageError{Op: "open", Path: path, Err: err}
	}
	if err := f.Truncate(offset); err != nil {
		f.Close()
		return &model.StorageError{Op: "truncate", Path: path, Err: err}
	}
	if _, err := f.WriteAt(data, offset); err != nil {
		f.Close()
		return &model.StorageError{Op: "write", Path: path, Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return &model.StorageError{Op: "sync", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &model.StorageError{Op: "close", Path: path, Err: err}
	}
	return nil
}

func (d *Dumper) load() error {
	if d.cursor != nil {
		return nil
	}
	var c Cursor
	if err := store.LoadJSON(d.store, d.cursorPath(), &c); err != nil {
		return fmt.Errorf("load dump cursor: %w", err)
	}
	d.cursor = &c
	return nil
}

func (d *Dumper) save() error {
	return store.SaveJSON(d.store, d.cursorPath(), d.cursor)
}

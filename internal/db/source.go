package db

import (
	"context"
	"fmt"

	"github.com/miketropi/wp-backup/internal/dump"
	"github.com/miketropi/wp-backup/internal/metrics"
)

// Source is an opened dump source with its connection lifecycle.
type Source struct {
	dump.Source
	Ping  func(ctx context.Context) error
	Close func()
}

// OpenSource connects the dump source for driver. The "none" driver returns
// nil and no error: the site has no database to back up.
func OpenSource(ctx context.Context, driver, databaseURL, schema string) (*Source, error) {
	switch driver {
	case "", "none":
		return nil, nil
	case "postgres":
		pool, err := NewPostgresPool(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		metrics.RegisterPgxPool(pool)
		return &Source{
			Source: dump.NewPostgresSource(pool, schema),
			Ping:   pool.Ping,
			Close:  pool.Close,
		}, nil
	case "mysql":
		src, err := dump.OpenMySQL(databaseURL)
		if err != nil {
			return nil, err
		}
		if err := src.Ping(ctx); err != nil {
			src.Close()
			return nil, fmt.Errorf("ping site db: %w", err)
		}
		metrics.RegisterSQLStats("mysql", src.Stats)
		return &Source{
			Source: src,
			Ping:   src.Ping,
			Close:  func() { _ = src.Close() },
		}, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

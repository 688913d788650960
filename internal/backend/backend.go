// Package backend opens the local database and the configured query executor
// and assembles an experts.Finder over them.
package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	dbfiles "github.com/garnizeh/experts/db"
	"github.com/garnizeh/experts/internal/config"
	"github.com/garnizeh/experts/internal/db"
	"github.com/garnizeh/experts/internal/experts"
	"github.com/garnizeh/experts/internal/repository/bigquery"
	"github.com/garnizeh/experts/internal/repository/sqlite"
	"github.com/garnizeh/experts/pkg/warehouse"
)

// Backend owns the resources behind a running finder.
type Backend struct {
	DB     *db.DB
	Repo   *sqlite.SQLiteRepo
	Finder *experts.Finder

	bq *bigquery.Executor
}

// Open connects to cfg.DatabasePath, applies migrations when
// cfg.MigrateOnStart is set and builds the finder for cfg.Finder.Backend.
// cfg must already be validated.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	conn, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	b := &Backend{DB: conn, Repo: sqlite.New(conn, logger)}

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, conn, dbfiles.Migrations); err != nil {
			b.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	if cfg.Seed {
		if err := db.Seed(ctx, conn, dbfiles.SeedFiles); err != nil {
			b.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	var exec warehouse.Executor
	switch cfg.Finder.Backend {
	case config.BackendBigQuery:
		bq, err := bigquery.New(ctx, cfg.BigQuery, logger)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.bq = bq
		exec = bq
	case config.BackendSQLite, "":
		exec = b.Repo
	default:
		b.Close()
		return nil, fmt.Errorf("unknown finder backend %q", cfg.Finder.Backend)
	}

	f, err := experts.NewFinder(exec, cfg.Finder.Relations)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.Finder = f

	logger.Info("backend ready", slog.String("backend", exec.Dialect().Name()), slog.String("database", cfg.DatabasePath))
	return b, nil
}

// Close releases the executor and the database. It is safe to call on a
// partially opened Backend.
func (b *Backend) Close() error {
	var firstErr error
	if b.bq != nil {
		if err := b.bq.Close(); err != nil {
			firstErr = err
		}
	}
	if b.DB != nil {
		if err := b.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

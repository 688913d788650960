package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Backup writes a consistent copy of the database to dest using VACUUM INTO.
// dest must not exist yet.
func (db *DB) Backup(ctx context.Context, dest string) error {
	if dest == "" {
		return errors.New("backup destination is required")
	}
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("backup destination %s already exists", dest)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat backup destination: %w", err)
	}

	if _, err := db.conn.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}

	db.logger.Info("db backup written", slog.String("dest", dest))
	return nil
}

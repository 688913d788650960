package sqlite

import (
	"io"
	"log/slog"
	"time"

	"github.com/garnizeh/experts/internal/db"
	"github.com/garnizeh/experts/pkg/repository"
	"github.com/garnizeh/experts/pkg/warehouse"
)

// SQLiteRepo implements the repository interfaces and the warehouse executor
// on top of the internal DB wrapper.
type SQLiteRepo struct {
	conn   *db.DB
	logger *slog.Logger
}

// Ensure SQLiteRepo implements the public interfaces.
var _ repository.ClientRepo = (*SQLiteRepo)(nil)
var _ repository.PostRepo = (*SQLiteRepo)(nil)
var _ warehouse.Executor = (*SQLiteRepo)(nil)

func New(conn *db.DB, logger *slog.Logger) *SQLiteRepo {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &SQLiteRepo{conn: conn, logger: logger}
}

func now() int64 {
	return time.Now().UTC().UnixMilli()
}

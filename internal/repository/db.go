package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/courtdata/scrapecoord/internal/common"
)

// Config holds shared-store connection settings.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// Open opens the coordinator's SQLite database. Write transactions take the
// lock immediately (_txlock=immediate) so a claim's read-check-write runs as
// one indivisible unit even with other processes on the same file.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*sql.DB, error) {
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	dsn := fmt.Sprintf(
		"file:%s?_txlock=immediate&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)",
		cfg.Path, cfg.BusyTimeout.Milliseconds(),
	)
	logger.Info("opening coordinator store", "path", cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		logger.Error("failed to open coordinator store", "path", cfg.Path, "error", err)
		return nil, classify(err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		logger.Error("coordinator store unreachable", "path", cfg.Path, "error", err)
		return nil, classify(err)
	}
	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		logger.Error("coordinator schema setup failed", "path", cfg.Path, "error", err)
		return nil, err
	}
	return db, nil
}

// Close closes the database connection gracefully
func Close(db *sql.DB, logger *slog.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		logger.Error("failed to close coordinator store", "error", err)
		return
	}
	logger.Info("coordinator store closed")
}

// HealthCheck pings the store to catch path/mount issues early.
func HealthCheck(ctx context.Context, db *sql.DB, timeout time.Duration, logger *slog.Logger) error {
	logger.Debug("pinging coordinator store")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		return classify(err)
	}
	logger.Debug("coordinator store ping successful")
	return nil
}

// classify maps driver-level failures onto the application taxonomy. Lock
// contention and I/O faults surface as ErrStoreUnavailable so callers know
// the page was not lost and a retry is safe.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR,
			sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_PROTOCOL:
			return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
		}
	}
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	return err
}

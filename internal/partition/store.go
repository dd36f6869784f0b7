// Package partition implements the worker-private result store. Each worker
// writes records and completed-page markers into its own SQLite file; nothing
// reads it until the run is over and the merge picks it up by path.
package partition

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/courtdata/scrapecoord/internal/entity"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	case_number TEXT PRIMARY KEY,
	page_number INTEGER NOT NULL,
	payload     TEXT NOT NULL,
	fetched_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_page ON records(page_number);

CREATE TABLE IF NOT EXISTS completed_pages (
	page_number  INTEGER PRIMARY KEY,
	completed_at INTEGER NOT NULL
);
`

// Store is one worker's partition for one record type.
type Store struct {
	db         *sql.DB
	path       string
	workerID   string
	recordType string
	log        *slog.Logger
	now        func() time.Time
}

// PathFor builds the deterministic partition filename the merge discovers
// by convention: <dir>/<record_type>_<worker_id>.db.
func PathFor(dir, recordType, workerID string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.db", recordType, workerID))
}

// Discover lists the partition files for a record type in lexical order.
// Lexical order is the default merge input order, so re-running a merge over
// the same directory sees the same sequence.
func Discover(dir, recordType string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, recordType+"_*.db"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// Open opens (creating if needed) the partition for a worker.
func Open(ctx context.Context, dir, recordType, workerID string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := PathFor(dir, recordType, workerID)
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("partition opened", "path", path, "worker_id", workerID)
	return &Store{db: db, path: path, workerID: workerID, recordType: recordType, log: logger, now: time.Now}, nil
}

// OpenRead opens an existing partition file read-only for the merge. A
// missing or unopenable file fails here; a corrupt one may not fail until
// the first read.
func OpenRead(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: path, log: logger, now: time.Now}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error { return s.db.Close() }

// AddRecord stores one extracted record. The partition is append-only during
// a run: if the same case number shows up again (the portal repeats rows at
// page boundaries), the first write stays.
func (s *Store) AddRecord(ctx context.Context, rec entity.CaseRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (case_number, page_number, payload, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(case_number) DO NOTHING`,
		rec.CaseNumber, rec.PageNumber, string(rec.Payload), s.now().Unix())
	return err
}

// MarkPageCompleted records this partition's claim that it finished a page.
func (s *Store) MarkPageCompleted(ctx context.Context, pageNumber int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO completed_pages (page_number, completed_at)
		VALUES (?, ?)
		ON CONFLICT(page_number) DO NOTHING`,
		pageNumber, s.now().Unix())
	return err
}

// DropPage removes a page's records and its completed marker. Called when a
// completion came back ErrStaleLease: another worker may own the page now,
// so this partition must not claim it.
func (s *Store) DropPage(ctx context.Context, pageNumber int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE page_number = ?`, pageNumber); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM completed_pages WHERE page_number = ?`, pageNumber); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Warn("dropped page after stale lease", "path", s.path, "page", pageNumber)
	return nil
}

// CompletedPages returns the partition's self-reported completed set in
// ascending order.
func (s *Store) CompletedPages(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT page_number FROM completed_pages ORDER BY page_number`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var pages []int
	for rows.Next() {
		var page int
		if err := rows.Scan(&page); err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

// Records returns every record in the partition ordered by case number.
func (s *Store) Records(ctx context.Context) ([]entity.CaseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT case_number, page_number, payload, fetched_at
		FROM records ORDER BY case_number`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []entity.CaseRecord
	for rows.Next() {
		var (
			rec       entity.CaseRecord
			payload   string
			fetchedAt int64
		)
		if err := rows.Scan(&rec.CaseNumber, &rec.PageNumber, &payload, &fetchedAt); err != nil {
			return nil, err
		}
		rec.Payload = []byte(payload)
		rec.FetchedAt = time.Unix(fetchedAt, 0).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/courtdata/scrapecoord/constants"
	"github.com/courtdata/scrapecoord/internal/common"
	"github.com/courtdata/scrapecoord/internal/entity"
)

// PageRepository owns the ledgers and pages tables. Every mutation of a page
// row goes through here; no other code path touches the table.
type PageRepository interface {
	Initialize(ctx context.Context, recordType string, totalPages int) error
	Ledger(ctx context.Context, recordType string) (*entity.Ledger, error)
	Claim(ctx context.Context, recordType, workerID string) (*entity.PageUnit, error)
	Complete(ctx context.Context, recordType string, pageNumber int, workerID string) error
	SweepExpired(ctx context.Context, recordType string) (int, error)
	Snapshot(ctx context.Context, recordType string) (*entity.Snapshot, error)
	CompletedPages(ctx context.Context, recordType string) ([]int, error)
}

type pageRepo struct {
	db           *sql.DB
	leaseTimeout time.Duration
	log          *slog.Logger
	now          func() time.Time
}

func NewPageRepository(db *sql.DB, leaseTimeout time.Duration, log *slog.Logger) PageRepository {
	if log == nil {
		log = slog.Default()
	}
	if leaseTimeout <= 0 {
		leaseTimeout = 30 * time.Minute
	}
	return &pageRepo{db: db, leaseTimeout: leaseTimeout, log: log, now: time.Now}
}

func (r *pageRepo) Initialize(ctx context.Context, recordType string, totalPages int) error {
	if recordType == "" || totalPages <= 0 {
		return common.NewAppError("INIT_ERROR", "record type and positive page count required", common.ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledgers WHERE record_type = ?`, recordType).Scan(&existing)
	if err != nil {
		return classify(err)
	}
	if existing > 0 {
		return common.ErrAlreadyInitialized
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledgers (record_type, total_pages, created_at) VALUES (?, ?, ?)`,
		recordType, totalPages, r.now().Unix()); err != nil {
		return classify(err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO pages (record_type, page_number, status) VALUES (?, ?, ?)`)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = stmt.Close() }()
	for page := 1; page <= totalPages; page++ {
		if _, err := stmt.ExecContext(ctx, recordType, page, constants.PageStatusPending); err != nil {
			return classify(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	r.log.Info("initialized pages", "record_type", recordType, "total_pages", totalPages)
	return nil
}

func (r *pageRepo) Ledger(ctx context.Context, recordType string) (*entity.Ledger, error) {
	var (
		ledger    entity.Ledger
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT record_type, total_pages, created_at FROM ledgers WHERE record_type = ?`,
		recordType).Scan(&ledger.RecordType, &ledger.TotalPages, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotInitialized
	}
	if err != nil {
		return nil, classify(err)
	}
	ledger.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &ledger, nil
}

func (r *pageRepo) requireLedger(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, recordType string) error {
	var total int
	err := q.QueryRowContext(ctx,
		`SELECT total_pages FROM ledgers WHERE record_type = ?`, recordType).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotInitialized
	}
	if err != nil {
		return classify(err)
	}
	return nil
}

// Claim atomically picks the lowest eligible page and assigns it to workerID.
// Expired leases are swept back to PENDING in the same transaction, so
// abandonment heals lazily without a maintenance daemon. The transaction
// opens in immediate mode; two concurrent claims serialize on the store and
// can never hand out the same page.
func (r *pageRepo) Claim(ctx context.Context, recordType, workerID string) (*entity.PageUnit, error) {
	if workerID == "" {
		return nil, common.NewAppError("CLAIM_ERROR", "worker id required", common.ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.requireLedger(ctx, tx, recordType); err != nil {
		return nil, err
	}

	now := r.now()
	cutoff := now.Add(-r.leaseTimeout).Unix()

	swept, err := tx.ExecContext(ctx, `
		UPDATE pages
		SET status = ?, assigned_to = NULL, assigned_at = NULL, retry_count = retry_count + 1
		WHERE record_type = ? AND status = ? AND assigned_at < ?`,
		constants.PageStatusPending, recordType, constants.PageStatusAssigned, cutoff)
	if err != nil {
		return nil, classify(err)
	}
	if n, _ := swept.RowsAffected(); n > 0 {
		r.log.Warn("revoked expired leases", "record_type", recordType, "count", n)
	}

	var (
		pageNumber int
		retryCount int
	)
	err = tx.QueryRowContext(ctx, `
		SELECT page_number, retry_count
		FROM pages
		WHERE record_type = ? AND status = ?
		ORDER BY page_number
		LIMIT 1`,
		recordType, constants.PageStatusPending).Scan(&pageNumber, &retryCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNoEligiblePages
	}
	if err != nil {
		return nil, classify(err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE pages
		SET status = ?, assigned_to = ?, assigned_at = ?
		WHERE record_type = ? AND page_number = ? AND status = ?`,
		constants.PageStatusAssigned, workerID, now.Unix(),
		recordType, pageNumber, constants.PageStatusPending)
	if err != nil {
		return nil, classify(err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return nil, common.NewAppError("CLAIM_ERROR", "page changed state mid-claim", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}

	assignedAt := now.UTC()
	r.log.Info("page claimed", "record_type", recordType, "page", pageNumber, "worker_id", workerID)
	return &entity.PageUnit{
		RecordType: recordType,
		PageNumber: pageNumber,
		Status:     constants.PageStatusAssigned,
		AssignedTo: &workerID,
		AssignedAt: &assignedAt,
		RetryCount: retryCount,
	}, nil
}

// Complete marks a page COMPLETED, but only while workerID still owns the
// lease. A late completion from a revoked worker gets ErrStaleLease and must
// discard its result; some other worker may already own the page.
func (r *pageRepo) Complete(ctx context.Context, recordType string, pageNumber int, workerID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.requireLedger(ctx, tx, recordType); err != nil {
		return err
	}

	now := r.now().Unix()
	res, err := tx.ExecContext(ctx, `
		UPDATE pages
		SET status = ?, completed_at = ?, assigned_to = NULL, assigned_at = NULL
		WHERE record_type = ? AND page_number = ? AND status = ? AND assigned_to = ?`,
		constants.PageStatusCompleted, now,
		recordType, pageNumber, constants.PageStatusAssigned, workerID)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		var status string
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM pages WHERE record_type = ? AND page_number = ?`,
			recordType, pageNumber).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrNotFound
		}
		if err != nil {
			return classify(err)
		}
		r.log.Warn("stale completion rejected",
			"record_type", recordType, "page", pageNumber, "worker_id", workerID, "current_status", status)
		return common.ErrStaleLease
	}

	// Worker bookkeeping rides in the same transaction; a registered worker
	// gets its tally bumped, an unregistered one is simply not counted.
	if _, err := tx.ExecContext(ctx, `
		UPDATE workers SET pages_completed = pages_completed + 1, last_heartbeat = ?
		WHERE worker_id = ?`, now, workerID); err != nil {
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	r.log.Info("page completed", "record_type", recordType, "page", pageNumber, "worker_id", workerID)
	return nil
}

// SweepExpired reverts every expired lease to PENDING. Claim performs the
// same check lazily; this exists for operators who want the table tidy now.
func (r *pageRepo) SweepExpired(ctx context.Context, recordType string) (int, error) {
	if err := r.requireLedger(ctx, r.db, recordType); err != nil {
		return 0, err
	}
	cutoff := r.now().Add(-r.leaseTimeout).Unix()
	res, err := r.db.ExecContext(ctx, `
		UPDATE pages
		SET status = ?, assigned_to = NULL, assigned_at = NULL, retry_count = retry_count + 1
		WHERE record_type = ? AND status = ? AND assigned_at < ?`,
		constants.PageStatusPending, recordType, constants.PageStatusAssigned, cutoff)
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err)
	}
	if n > 0 {
		r.log.Warn("swept expired leases", "record_type", recordType, "count", n)
	}
	return int(n), nil
}

// Snapshot is a pure read; it takes no transaction and never blocks a
// concurrent claim or complete.
func (r *pageRepo) Snapshot(ctx context.Context, recordType string) (*entity.Snapshot, error) {
	ledger, err := r.Ledger(ctx, recordType)
	if err != nil {
		return nil, err
	}

	snap := &entity.Snapshot{
		RecordType: recordType,
		Total:      ledger.TotalPages,
		PerWorker:  make(map[string]entity.WorkerSnapshot),
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM pages WHERE record_type = ? GROUP BY status`, recordType)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, classify(err)
		}
		switch constants.PageStatus(status) {
		case constants.PageStatusPending:
			snap.Pending = count
		case constants.PageStatusAssigned:
			snap.Assigned = count
		case constants.PageStatusCompleted:
			snap.Completed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	now := r.now()
	assigned, err := r.db.QueryContext(ctx, `
		SELECT assigned_to, COUNT(*), MIN(assigned_at)
		FROM pages
		WHERE record_type = ? AND status = ? AND assigned_to IS NOT NULL
		GROUP BY assigned_to`, recordType, constants.PageStatusAssigned)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = assigned.Close() }()
	for assigned.Next() {
		var (
			workerID string
			count    int
			oldest   int64
		)
		if err := assigned.Scan(&workerID, &count, &oldest); err != nil {
			return nil, classify(err)
		}
		ws := snap.PerWorker[workerID]
		ws.AssignedCount = count
		ws.OldestAssignmentAge = now.Sub(time.Unix(oldest, 0))
		snap.PerWorker[workerID] = ws
	}
	if err := assigned.Err(); err != nil {
		return nil, classify(err)
	}

	workers, err := r.db.QueryContext(ctx,
		`SELECT worker_id, hostname, pages_completed, last_heartbeat FROM workers`)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = workers.Close() }()
	for workers.Next() {
		var (
			workerID  string
			hostname  string
			completed int
			heartbeat int64
		)
		if err := workers.Scan(&workerID, &hostname, &completed, &heartbeat); err != nil {
			return nil, classify(err)
		}
		ws := snap.PerWorker[workerID]
		ws.CompletedCount = completed
		ws.Hostname = hostname
		ws.LastHeartbeat = time.Unix(heartbeat, 0).UTC()
		snap.PerWorker[workerID] = ws
	}
	if err := workers.Err(); err != nil {
		return nil, classify(err)
	}

	return snap, nil
}

// CompletedPages returns the coordinator's completed-page ledger in
// ascending order. The merge reconciler diffs this against what the worker
// partitions actually contain.
func (r *pageRepo) CompletedPages(ctx context.Context, recordType string) ([]int, error) {
	if err := r.requireLedger(ctx, r.db, recordType); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT page_number FROM pages
		WHERE record_type = ? AND status = ?
		ORDER BY page_number`, recordType, constants.PageStatusCompleted)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()

	var pages []int
	for rows.Next() {
		var page int
		if err := rows.Scan(&page); err != nil {
			return nil, classify(err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return pages, nil
}

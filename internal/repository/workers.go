package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/courtdata/scrapecoord/constants"
	"github.com/courtdata/scrapecoord/internal/entity"
)

// WorkerRepository owns the worker registry: who has been seen, from where,
// and how much they have finished. Purely informational; lease correctness
// never depends on it.
type WorkerRepository interface {
	Register(ctx context.Context, workerID, hostname string) error
	Heartbeat(ctx context.Context, workerID string) error
	MarkDone(ctx context.Context, workerID string) error
	List(ctx context.Context) ([]entity.Worker, error)
}

type workerRepo struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

func NewWorkerRepository(db *sql.DB, log *slog.Logger) WorkerRepository {
	if log == nil {
		log = slog.Default()
	}
	return &workerRepo{db: db, log: log, now: time.Now}
}

func (r *workerRepo) Register(ctx context.Context, workerID, hostname string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workers (worker_id, hostname, last_heartbeat, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(worker_id) DO UPDATE SET
			hostname = excluded.hostname,
			last_heartbeat = excluded.last_heartbeat,
			status = excluded.status`,
		workerID, hostname, r.now().Unix(), constants.WorkerStatusActive)
	if err != nil {
		r.log.Error("worker register failed", "worker_id", workerID, "error", err)
		return classify(err)
	}
	r.log.Info("worker registered", "worker_id", workerID, "hostname", hostname)
	return nil
}

func (r *workerRepo) Heartbeat(ctx context.Context, workerID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE workers SET last_heartbeat = ? WHERE worker_id = ?`,
		r.now().Unix(), workerID)
	if err != nil {
		return classify(err)
	}
	return nil
}

func (r *workerRepo) MarkDone(ctx context.Context, workerID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE workers SET status = ?, last_heartbeat = ? WHERE worker_id = ?`,
		constants.WorkerStatusDone, r.now().Unix(), workerID)
	if err != nil {
		return classify(err)
	}
	return nil
}

func (r *workerRepo) List(ctx context.Context) ([]entity.Worker, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT worker_id, hostname, last_heartbeat, pages_completed, status
		FROM workers
		ORDER BY pages_completed DESC`)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()

	var workers []entity.Worker
	for rows.Next() {
		var (
			w         entity.Worker
			heartbeat int64
			status    string
		)
		if err := rows.Scan(&w.ID, &w.Hostname, &heartbeat, &w.PagesCompleted, &status); err != nil {
			return nil, classify(err)
		}
		w.LastHeartbeat = time.Unix(heartbeat, 0).UTC()
		w.Status = constants.WorkerStatus(status)
		workers = append(workers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return workers, nil
}

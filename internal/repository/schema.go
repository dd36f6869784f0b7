package repository

import (
	"context"
	"database/sql"
)

// Coordinator DDL. Timestamps are unix seconds so lease-expiry arithmetic
// stays inside SQL. Mirrors of this schema may already exist on the shared
// mount, so everything is IF NOT EXISTS.
const schema = `
CREATE TABLE IF NOT EXISTS ledgers (
	record_type TEXT PRIMARY KEY,
	total_pages INTEGER NOT NULL,
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pages (
	record_type  TEXT NOT NULL,
	page_number  INTEGER NOT NULL,
	status       TEXT NOT NULL DEFAULT 'PENDING',
	assigned_to  TEXT,
	assigned_at  INTEGER,
	completed_at INTEGER,
	retry_count  INTEGER NOT NULL DEFAULT 0,
	UNIQUE(record_type, page_number)
);

CREATE INDEX IF NOT EXISTS idx_pages_claim ON pages(record_type, status, page_number);
CREATE INDEX IF NOT EXISTS idx_pages_worker ON pages(assigned_to) WHERE assigned_to IS NOT NULL;

CREATE TABLE IF NOT EXISTS workers (
	worker_id       TEXT PRIMARY KEY,
	hostname        TEXT NOT NULL DEFAULT '',
	last_heartbeat  INTEGER NOT NULL DEFAULT 0,
	pages_completed INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL DEFAULT 'ACTIVE'
);
`

// EnsureSchema creates the coordinator tables if they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return classify(err)
	}
	return nil
}

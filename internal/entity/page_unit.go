package entity

import (
	"time"

	"github.com/courtdata/scrapecoord/constants"
)

// PageUnit represents one page of remotely-paginated work for data transfer
// between layers. Exactly one row exists per (record type, page number).
type PageUnit struct {
	RecordType  string               `json:"record_type"`
	PageNumber  int                  `json:"page_number"`
	Status      constants.PageStatus `json:"status"`
	AssignedTo  *string              `json:"assigned_to,omitempty"`
	AssignedAt  *time.Time           `json:"assigned_at,omitempty"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	RetryCount  int                  `json:"retry_count"`
}

// Ledger is the per-record-type coordination ledger, created once at
// initialization and immutable thereafter.
type Ledger struct {
	RecordType string    `json:"record_type"`
	TotalPages int       `json:"total_pages"`
	CreatedAt  time.Time `json:"created_at"`
}

// Worker is one row in the worker registry.
type Worker struct {
	ID             string                 `json:"worker_id"`
	Hostname       string                 `json:"hostname"`
	LastHeartbeat  time.Time              `json:"last_heartbeat"`
	PagesCompleted int                    `json:"pages_completed"`
	Status         constants.WorkerStatus `json:"status"`
}

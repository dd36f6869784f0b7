package entity

import "time"

// Snapshot is a point-in-time progress view over one record type's pages.
// It is assembled from committed rows only; an assignment in flight shows up
// as whichever state it last committed to.
type Snapshot struct {
	RecordType string                    `json:"record_type"`
	Total      int                       `json:"total"`
	Pending    int                       `json:"pending"`
	Assigned   int                       `json:"assigned"`
	Completed  int                       `json:"completed"`
	PerWorker  map[string]WorkerSnapshot `json:"per_worker"`
}

// WorkerSnapshot is the per-worker slice of a Snapshot.
type WorkerSnapshot struct {
	AssignedCount       int           `json:"assigned_count"`
	CompletedCount      int           `json:"completed_count"`
	OldestAssignmentAge time.Duration `json:"oldest_assignment_age"`
	Hostname            string        `json:"hostname,omitempty"`
	LastHeartbeat       time.Time     `json:"last_heartbeat,omitempty"`
}

// Done reports whether every page has reached COMPLETED.
func (s *Snapshot) Done() bool {
	return s.Total > 0 && s.Completed == s.Total
}

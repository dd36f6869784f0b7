package entity

import (
	"encoding/json"
	"time"
)

// CaseRecord is one extracted court record as stored in a worker partition.
// CaseNumber is the domain record key the merge deduplicates on.
type CaseRecord struct {
	CaseNumber string          `json:"case_number"`
	PageNumber int             `json:"page_number"`
	Payload    json.RawMessage `json:"payload"`
	FetchedAt  time.Time       `json:"fetched_at,omitempty"`
}

package constants

// PageStatus is the canonical status for rows in pages.
type PageStatus string

// Stable values (store these exact strings in DB).
const (
	PageStatusPending   PageStatus = "PENDING"   // never assigned, or lease revoked
	PageStatusAssigned  PageStatus = "ASSIGNED"  // held under a live lease
	PageStatusCompleted PageStatus = "COMPLETED" // terminal
)

// WorkerStatus is the canonical status for rows in workers.
type WorkerStatus string

const (
	WorkerStatusActive WorkerStatus = "ACTIVE"
	WorkerStatusDone   WorkerStatus = "DONE"
)

// Record types the upstream portal exposes. The coordinator treats the
// record type as an opaque key; these are the values operators actually use.
const (
	RecordTypeConviction  = "conviction"
	RecordTypePending     = "pending"
	RecordTypeDailyDocket = "daily_docket"
)

// RecordTypes lists the accepted record type values.
var RecordTypes = []string{RecordTypeConviction, RecordTypePending, RecordTypeDailyDocket}

// ValidRecordType reports whether t is one of the known record types.
func ValidRecordType(t string) bool {
	for _, known := range RecordTypes {
		if t == known {
			return true
		}
	}
	return false
}

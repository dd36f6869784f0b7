package constants

// ConflictPolicy decides which record wins when the same record key shows up
// in more than one worker partition during a merge.
type ConflictPolicy string

const (
	// ConflictFirstWins keeps the record from the earliest partition in the
	// merge's input order. Default.
	ConflictFirstWins ConflictPolicy = "first"
	// ConflictLastWins keeps the record from the latest partition.
	ConflictLastWins ConflictPolicy = "last"
	// ConflictFail aborts the merge on the first key whose payloads differ
	// across partitions.
	ConflictFail ConflictPolicy = "fail"
)

// ConflictPolicies lists the accepted --policy values.
var ConflictPolicies = []ConflictPolicy{ConflictFirstWins, ConflictLastWins, ConflictFail}

// Valid reports whether p is one of the known policies.
func (p ConflictPolicy) Valid() bool {
	for _, known := range ConflictPolicies {
		if p == known {
			return true
		}
	}
	return false
}

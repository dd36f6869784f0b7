package merge

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/courtdata/scrapecoord/constants"
	"github.com/courtdata/scrapecoord/internal/entity"
)

// PartitionStatus records how one input partition fared during the merge.
type PartitionStatus struct {
	Path           string `json:"path"`
	Records        int    `json:"records"`
	CompletedPages int    `json:"completed_pages"`
	Error          string `json:"error,omitempty"`
}

// Collision is one record key found in more than one partition. It is
// reported regardless of which policy resolved it, so operators can audit
// the resolution.
type Collision struct {
	CaseNumber     string   `json:"case_number"`
	Partitions     []string `json:"partitions"`
	ChosenFrom     string   `json:"chosen_from"`
	PayloadsDiffer bool     `json:"payloads_differ"`
}

// SchemaViolation is a record payload that failed the optional JSON Schema
// check. The record still merges; the violation is flagged, never dropped.
type SchemaViolation struct {
	CaseNumber string `json:"case_number"`
	Partition  string `json:"partition"`
	Message    string `json:"message"`
}

// GapReport is the machine-readable reconciliation report. It deliberately
// carries no timestamps: re-running the merge on unchanged inputs must
// produce byte-identical output.
type GapReport struct {
	RecordType string                   `json:"record_type"`
	Policy     constants.ConflictPolicy `json:"policy"`
	// Partial is set when at least one partition could not be read and the
	// merge proceeded without it.
	Partial    bool              `json:"partial"`
	Partitions []PartitionStatus `json:"partitions"`
	// MissingFromPartitions: pages the coordinator marked COMPLETED that no
	// partition claims.
	MissingFromPartitions []int `json:"missing_from_partitions"`
	// UnknownToCoordinator: pages some partition claims completed that the
	// coordinator never recorded.
	UnknownToCoordinator []int             `json:"unknown_to_coordinator"`
	Collisions           []Collision       `json:"collisions"`
	SchemaViolations     []SchemaViolation `json:"schema_violations"`
}

// Result is the consolidated dataset plus its report.
type Result struct {
	Records []entity.CaseRecord `json:"records"`
	Report  GapReport           `json:"report"`
}

const (
	ConsolidatedFile = "consolidated.json"
	GapReportFile    = "gap_report.json"
)

// Write emits consolidated.json and gap_report.json under outDir. Output is
// fully sorted and timestamp-free, so identical inputs give identical bytes.
func (res *Result) Write(outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	records, err := json.MarshalIndent(res.Records, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(outDir, ConsolidatedFile), append(records, '\n'), 0o644); err != nil {
		return err
	}
	report, err := json.MarshalIndent(res.Report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, GapReportFile), append(report, '\n'), 0o644)
}

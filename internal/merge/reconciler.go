// Package merge implements the offline reconciler that folds N worker
// partitions plus the coordinator's completed-page ledger into one
// consolidated dataset with a gap and collision report.
package merge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/courtdata/scrapecoord/constants"
	"github.com/courtdata/scrapecoord/internal/common"
	"github.com/courtdata/scrapecoord/internal/entity"
	"github.com/courtdata/scrapecoord/internal/partition"
)

// LedgerSource supplies the coordinator's completed-page set. The
// coordinator service satisfies this.
type LedgerSource interface {
	CompletedPages(ctx context.Context, recordType string) ([]int, error)
}

// Options configure a merge run.
type Options struct {
	Policy constants.ConflictPolicy
	// SchemaPath optionally points at a JSON Schema every record payload is
	// checked against. Violations are flagged, not fatal.
	SchemaPath string
}

type Reconciler struct {
	ledger LedgerSource
	policy constants.ConflictPolicy
	schema *jsonschema.Schema
	logger *slog.Logger
}

func NewReconciler(ledger LedgerSource, opts Options, logger *slog.Logger) (*Reconciler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Policy == "" {
		opts.Policy = constants.ConflictFirstWins
	}
	if !opts.Policy.Valid() {
		return nil, common.NewAppError("MERGE_ERROR",
			fmt.Sprintf("unknown conflict policy %q", opts.Policy), common.ErrInvalidInput)
	}
	r := &Reconciler{ledger: ledger, policy: opts.Policy, logger: logger}
	if opts.SchemaPath != "" {
		compiled, err := compileSchema(opts.SchemaPath)
		if err != nil {
			return nil, common.NewAppError("MERGE_ERROR", "record schema did not compile", err)
		}
		r.schema = compiled
	}
	return r, nil
}

func compileSchema(path string) (*jsonschema.Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("record.schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("record.schema.json")
}

type chosenRecord struct {
	record entity.CaseRecord
	path   string
}

// Merge runs the reconciliation. Partition order is the caller's input order
// and decides first/last-wins resolution. A partition that cannot be read is
// isolated: its failure lands in the report, the merge carries on, and the
// report is flagged partial.
func (r *Reconciler) Merge(ctx context.Context, recordType string, partitionPaths []string) (*Result, error) {
	coordPages, err := r.ledger.CompletedPages(ctx, recordType)
	if err != nil {
		return nil, err
	}

	report := GapReport{
		RecordType:            recordType,
		Policy:                r.policy,
		Partitions:            make([]PartitionStatus, 0, len(partitionPaths)),
		MissingFromPartitions: []int{},
		UnknownToCoordinator:  []int{},
		Collisions:            []Collision{},
		SchemaViolations:      []SchemaViolation{},
	}

	chosen := make(map[string]chosenRecord)
	collisions := make(map[string]*Collision)
	claimedPages := make(map[int]bool)

	for _, path := range partitionPaths {
		status, err := r.mergePartition(ctx, path, chosen, collisions, claimedPages, &report)
		if err != nil {
			return nil, err
		}
		report.Partitions = append(report.Partitions, status)
		if status.Error != "" {
			report.Partial = true
		}
	}

	coordSet := make(map[int]bool, len(coordPages))
	for _, page := range coordPages {
		coordSet[page] = true
		if !claimedPages[page] {
			report.MissingFromPartitions = append(report.MissingFromPartitions, page)
		}
	}
	for page := range claimedPages {
		if !coordSet[page] {
			report.UnknownToCoordinator = append(report.UnknownToCoordinator, page)
		}
	}
	sort.Ints(report.MissingFromPartitions)
	sort.Ints(report.UnknownToCoordinator)

	for _, c := range collisions {
		report.Collisions = append(report.Collisions, *c)
	}
	sort.Slice(report.Collisions, func(i, j int) bool {
		return report.Collisions[i].CaseNumber < report.Collisions[j].CaseNumber
	})

	records := make([]entity.CaseRecord, 0, len(chosen))
	for _, c := range chosen {
		records = append(records, c.record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CaseNumber < records[j].CaseNumber
	})

	r.logger.Info("merge finished",
		"record_type", recordType,
		"partitions", len(partitionPaths),
		"records", len(records),
		"collisions", len(report.Collisions),
		"missing_pages", len(report.MissingFromPartitions),
		"unknown_pages", len(report.UnknownToCoordinator),
		"partial", report.Partial,
	)
	return &Result{Records: records, Report: report}, nil
}

func (r *Reconciler) mergePartition(
	ctx context.Context,
	path string,
	chosen map[string]chosenRecord,
	collisions map[string]*Collision,
	claimedPages map[int]bool,
	report *GapReport,
) (PartitionStatus, error) {
	status := PartitionStatus{Path: path}

	store, err := partition.OpenRead(ctx, path, r.logger)
	if err != nil {
		r.logger.Error("partition unreadable, skipping",
			"path", path, "error", common.WrapError(err, common.ErrPartitionUnreadable.Error()))
		status.Error = err.Error()
		return status, nil
	}
	defer func() { _ = store.Close() }()

	records, err := store.Records(ctx)
	if err != nil {
		r.logger.Error("partition unreadable, skipping",
			"path", path, "error", common.WrapError(err, common.ErrPartitionUnreadable.Error()))
		status.Error = err.Error()
		return status, nil
	}
	completed, err := store.CompletedPages(ctx)
	if err != nil {
		r.logger.Error("partition unreadable, skipping",
			"path", path, "error", common.WrapError(err, common.ErrPartitionUnreadable.Error()))
		status.Error = err.Error()
		return status, nil
	}

	for _, rec := range records {
		r.validate(rec, path, report)

		prev, seen := chosen[rec.CaseNumber]
		if !seen {
			chosen[rec.CaseNumber] = chosenRecord{record: rec, path: path}
			continue
		}

		differ := !bytes.Equal(normalizeJSON(prev.record.Payload), normalizeJSON(rec.Payload))
		c, ok := collisions[rec.CaseNumber]
		if !ok {
			c = &Collision{
				CaseNumber: rec.CaseNumber,
				Partitions: []string{prev.path},
				ChosenFrom: prev.path,
			}
			collisions[rec.CaseNumber] = c
		}
		c.Partitions = append(c.Partitions, path)
		c.PayloadsDiffer = c.PayloadsDiffer || differ

		switch r.policy {
		case constants.ConflictFail:
			if differ {
				return status, common.NewAppError("MERGE_ERROR",
					fmt.Sprintf("record %q differs between %s and %s", rec.CaseNumber, prev.path, path),
					common.ErrMergeConflict)
			}
		case constants.ConflictLastWins:
			chosen[rec.CaseNumber] = chosenRecord{record: rec, path: path}
			c.ChosenFrom = path
		case constants.ConflictFirstWins:
			// keep prev
		}
	}

	for _, page := range completed {
		claimedPages[page] = true
	}

	status.Records = len(records)
	status.CompletedPages = len(completed)
	return status, nil
}

func (r *Reconciler) validate(rec entity.CaseRecord, path string, report *GapReport) {
	if r.schema == nil {
		return
	}
	var doc any
	if err := json.Unmarshal(rec.Payload, &doc); err != nil {
		report.SchemaViolations = append(report.SchemaViolations, SchemaViolation{
			CaseNumber: rec.CaseNumber,
			Partition:  path,
			Message:    "payload is not valid JSON: " + err.Error(),
		})
		return
	}
	if err := r.schema.Validate(doc); err != nil {
		report.SchemaViolations = append(report.SchemaViolations, SchemaViolation{
			CaseNumber: rec.CaseNumber,
			Partition:  path,
			Message:    err.Error(),
		})
	}
}

// normalizeJSON compacts a payload so formatting differences between two
// scrapes of the same record do not count as a conflict.
func normalizeJSON(b []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return b
	}
	return buf.Bytes()
}

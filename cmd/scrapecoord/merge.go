package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/courtdata/scrapecoord/constants"
	"github.com/courtdata/scrapecoord/internal/merge"
	"github.com/courtdata/scrapecoord/internal/partition"
	"github.com/courtdata/scrapecoord/internal/repository"
)

var (
	mergeRecordType string
	mergeOutDir     string
	mergePolicy     string
	mergeSchemaPath string
)

var mergeCmd = &cobra.Command{
	Use:   "merge [partition files...]",
	Short: "Consolidate worker partitions into one dataset",
	Long: `Folds worker partitions into a single consolidated dataset and writes a
gap report diffing them against the coordinator's completed-page ledger.

Partitions may be listed explicitly (their order drives first/last-wins
conflict resolution) or discovered from the partition directory by naming
convention. Re-running on unchanged inputs reproduces identical output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Env config fills in whatever the flags left at their defaults.
		if !cmd.Flags().Changed("policy") && cfg.Merge.Policy != "" {
			mergePolicy = cfg.Merge.Policy
		}
		if !cmd.Flags().Changed("schema") && cfg.Merge.SchemaPath != "" {
			mergeSchemaPath = cfg.Merge.SchemaPath
		}
		if !cmd.Flags().Changed("out") && cfg.Merge.OutDir != "" {
			mergeOutDir = cfg.Merge.OutDir
		}

		paths := args
		if len(paths) == 0 {
			discovered, err := partition.Discover(cfg.Partition.Dir, mergeRecordType)
			if err != nil {
				return err
			}
			if len(discovered) == 0 {
				return fmt.Errorf("no partitions for %q under %s", mergeRecordType, cfg.Partition.Dir)
			}
			paths = discovered
		}

		db, coord, err := openCoordinator(ctx)
		if err != nil {
			return err
		}
		defer repository.Close(db, logger)

		reconciler, err := merge.NewReconciler(coord, merge.Options{
			Policy:     constants.ConflictPolicy(mergePolicy),
			SchemaPath: mergeSchemaPath,
		}, logger)
		if err != nil {
			return err
		}

		result, err := reconciler.Merge(ctx, mergeRecordType, paths)
		if err != nil {
			return err
		}
		if err := result.Write(mergeOutDir); err != nil {
			return err
		}

		fmt.Printf("Merged %d partitions: %d records, %d collisions\n",
			len(paths), len(result.Records), len(result.Report.Collisions))
		if len(result.Report.MissingFromPartitions) > 0 {
			fmt.Printf("WARNING: %d completed pages missing from every partition\n",
				len(result.Report.MissingFromPartitions))
		}
		if len(result.Report.UnknownToCoordinator) > 0 {
			fmt.Printf("WARNING: %d partition pages unknown to the coordinator\n",
				len(result.Report.UnknownToCoordinator))
		}
		if result.Report.Partial {
			fmt.Println("WARNING: merge is PARTIAL; one or more partitions were unreadable")
		}
		fmt.Printf("Wrote %s and %s\n",
			filepath.Join(mergeOutDir, merge.ConsolidatedFile),
			filepath.Join(mergeOutDir, merge.GapReportFile))
		return nil
	},
}

func init() {
	mergeCmd.Flags().StringVar(&mergeRecordType, "type", "", "record type")
	mergeCmd.Flags().StringVar(&mergeOutDir, "out", "merged", "output directory")
	mergeCmd.Flags().StringVar(&mergePolicy, "policy", string(constants.ConflictFirstWins),
		"conflict policy: first, last, or fail")
	mergeCmd.Flags().StringVar(&mergeSchemaPath, "schema", "",
		"optional JSON Schema to validate record payloads against")
	_ = mergeCmd.MarkFlagRequired("type")
}

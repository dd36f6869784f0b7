package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/courtdata/scrapecoord/internal/partition"
	"github.com/courtdata/scrapecoord/internal/repository"
	"github.com/courtdata/scrapecoord/internal/worker"
)

var (
	workRecordType string
	workWorkerID   string
	workReplayFile string
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Run a worker loop against the coordinator",
	Long: `Claims pages from the coordinator, fetches them, writes results into this
worker's partition store, and reports completion until no work remains.

The built-in fetcher replays pages from a JSON file (--replay), which is how
coordination drills and rehearsals run. Production scrapers embed
worker.Runner with their own PageFetcher instead of this command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		workerID := workWorkerID
		if workerID == "" {
			workerID = "worker-" + uuid.NewString()[:8]
		}

		fetcher, err := worker.NewReplayFetcher(workReplayFile)
		if err != nil {
			return err
		}

		db, coord, err := openCoordinator(ctx)
		if err != nil {
			return err
		}
		defer repository.Close(db, logger)

		store, err := partition.Open(ctx, cfg.Partition.Dir, workRecordType, workerID, logger)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		wcfg := cfg.Worker
		wcfg.ID = workerID
		runner := worker.NewRunner(coord, store, fetcher, workRecordType, wcfg, logger)
		if err := runner.Run(ctx); err != nil {
			return err
		}
		fmt.Printf("Worker %s finished; partition at %s\n", workerID, store.Path())
		return nil
	},
}

func init() {
	workCmd.Flags().StringVar(&workRecordType, "type", "", "record type")
	workCmd.Flags().StringVar(&workWorkerID, "worker", "", "worker id (default: generated)")
	workCmd.Flags().StringVar(&workReplayFile, "replay", "", "JSON replay file mapping pages to records")
	_ = workCmd.MarkFlagRequired("type")
	_ = workCmd.MarkFlagRequired("replay")
}

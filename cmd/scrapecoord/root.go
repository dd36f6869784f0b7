package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/courtdata/scrapecoord/internal/common"
	"github.com/courtdata/scrapecoord/internal/coordinator"
	"github.com/courtdata/scrapecoord/internal/repository"
)

var (
	dbPath       string
	partitionDir string
	logLevel     string

	cfg    *common.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "scrapecoord",
	Short: "Lease-based coordinator for distributed page scraping",
	Long: `scrapecoord coordinates a fixed set of numbered pages across any number
of worker machines through one shared SQLite database. Workers claim pages
under a time-bounded lease, write results into private partition stores,
and report completion; abandoned leases expire back into the pool. After a
run, the merge subcommand folds the partitions into one dataset and reports
every gap and collision it finds.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = common.LoadConfig()
		if dbPath != "" {
			cfg.Coordinator.Path = dbPath
		}
		if partitionDir != "" {
			cfg.Partition.Dir = partitionDir
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		level := slog.LevelInfo
		switch strings.ToLower(cfg.Log.Level) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&dbPath, "db", "", "coordinator database path (default: $COORDINATOR_DB or scraping_coordinator.db)",
	)
	rootCmd.PersistentFlags().StringVar(
		&partitionDir, "partitions", "", "worker partition directory (default: $PARTITION_DIR or ./partitions)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "log level: debug, info, warn, error",
	)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(workCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(exportCmd)
}

// openCoordinator wires the shared store and the lease manager service.
func openCoordinator(ctx context.Context) (*sql.DB, *coordinator.Service, error) {
	db, err := repository.Open(ctx, repository.Config{
		Path:        cfg.Coordinator.Path,
		BusyTimeout: cfg.Coordinator.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	pages := repository.NewPageRepository(db, cfg.Coordinator.LeaseTimeout, logger)
	workers := repository.NewWorkerRepository(db, logger)
	return db, coordinator.NewService(pages, workers, logger), nil
}

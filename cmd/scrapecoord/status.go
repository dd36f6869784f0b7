package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/courtdata/scrapecoord/internal/repository"
)

var statusRecordType string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show progress and worker statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, coord, err := openCoordinator(ctx)
		if err != nil {
			return err
		}
		defer repository.Close(db, logger)

		if err := repository.HealthCheck(ctx, db, 5*time.Second, logger); err != nil {
			return err
		}

		snap, err := coord.Snapshot(ctx, statusRecordType)
		if err != nil {
			return err
		}

		fmt.Printf("\n%s Progress:\n", strings.ToUpper(snap.RecordType))
		fmt.Printf("  Total pages: %d\n", snap.Total)
		pct := 0.0
		if snap.Total > 0 {
			pct = float64(snap.Completed) / float64(snap.Total) * 100
		}
		fmt.Printf("  Completed: %d (%.1f%%)\n", snap.Completed, pct)
		fmt.Printf("  Assigned:  %d\n", snap.Assigned)
		fmt.Printf("  Pending:   %d\n", snap.Pending)

		workers, err := coord.Workers(ctx)
		if err != nil {
			return err
		}
		fmt.Println("\nWorker Statistics:")
		for _, w := range workers {
			line := fmt.Sprintf("  %s (%s): %d pages, last seen %s",
				w.ID, w.Hostname, w.PagesCompleted, w.LastHeartbeat.Format(time.RFC3339))
			if ws, ok := snap.PerWorker[w.ID]; ok && ws.AssignedCount > 0 {
				line += fmt.Sprintf(", holding %d (oldest %s)",
					ws.AssignedCount, ws.OldestAssignmentAge.Round(time.Second))
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusRecordType, "type", "", "record type")
	_ = statusCmd.MarkFlagRequired("type")
}

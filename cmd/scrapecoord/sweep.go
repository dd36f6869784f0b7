package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/courtdata/scrapecoord/internal/repository"
)

var sweepRecordType string

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Revert expired leases to pending",
	Long: `Reverts every lease past the timeout back to PENDING immediately. Claims
already do this lazily; sweep is for operators who want abandoned pages back
in the pool without waiting for the next claim.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, coord, err := openCoordinator(ctx)
		if err != nil {
			return err
		}
		defer repository.Close(db, logger)

		revoked, err := coord.SweepExpired(ctx, sweepRecordType)
		if err != nil {
			return err
		}
		fmt.Printf("Revoked %d expired leases for %s\n", revoked, sweepRecordType)
		return nil
	},
}

func init() {
	sweepCmd.Flags().StringVar(&sweepRecordType, "type", "", "record type")
	_ = sweepCmd.MarkFlagRequired("type")
}

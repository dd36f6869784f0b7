package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/courtdata/scrapecoord/constants"
	"github.com/courtdata/scrapecoord/internal/repository"
)

var (
	initRecordType string
	initTotalPages int
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the page table for a record type",
	Long: `Creates the ledger and one PENDING page row per page number. Run once per
record type before starting workers; re-running against an existing record
type fails rather than resetting progress.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if !constants.ValidRecordType(initRecordType) {
			return fmt.Errorf("unknown record type %q (accepted: %s)",
				initRecordType, strings.Join(constants.RecordTypes, ", "))
		}
		db, coord, err := openCoordinator(ctx)
		if err != nil {
			return err
		}
		defer repository.Close(db, logger)

		if err := coord.Initialize(ctx, initRecordType, initTotalPages); err != nil {
			return err
		}
		fmt.Printf("Initialized %d pages for %s\n", initTotalPages, initRecordType)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initRecordType, "type", "",
		"record type: "+strings.Join(constants.RecordTypes, ", "))
	initCmd.Flags().IntVar(&initTotalPages, "pages", 0, "total number of pages")
	_ = initCmd.MarkFlagRequired("type")
	_ = initCmd.MarkFlagRequired("pages")
}

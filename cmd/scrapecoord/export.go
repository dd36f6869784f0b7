package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/courtdata/scrapecoord/internal/entity"
	"github.com/courtdata/scrapecoord/internal/export"
)

var (
	exportIn  string
	exportOut string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Render a consolidated dataset to XLSX or CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(exportIn)
		if err != nil {
			return err
		}
		var records []entity.CaseRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return fmt.Errorf("parsing %s: %w", exportIn, err)
		}

		svc := export.NewService(logger)
		var out []byte
		switch strings.ToLower(filepath.Ext(exportOut)) {
		case ".xlsx":
			out, err = svc.XLSX(records)
		case ".csv":
			out, err = svc.CSV(records)
		default:
			return fmt.Errorf("unsupported output extension %q (use .xlsx or .csv)", filepath.Ext(exportOut))
		}
		if err != nil {
			return err
		}
		if err := os.WriteFile(exportOut, out, 0o644); err != nil {
			return err
		}
		fmt.Printf("Wrote %d records to %s\n", len(records), exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportIn, "in", filepath.Join("merged", "consolidated.json"), "consolidated.json path")
	exportCmd.Flags().StringVar(&exportOut, "out", "records.xlsx", "output file (.xlsx or .csv)")
}

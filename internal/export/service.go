package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/courtdata/scrapecoord/internal/entity"
)

// Service renders a consolidated dataset to operator-facing formats. The
// JSON artifacts from the merge stay canonical; these are for humans and
// spreadsheets.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// XLSX returns an XLSX workbook (as bytes) for the consolidated records.
func (s *Service) XLSX(records []entity.CaseRecord) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const sheet = "Records"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Case Number",
		"Page",
		"Fetched At",
		"Payload",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, rec := range records {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, rec.CaseNumber)
		write(2, rec.PageNumber)
		if !rec.FetchedAt.IsZero() {
			write(3, rec.FetchedAt.UTC().Format(time.RFC3339))
		} else {
			write(3, "")
		}
		write(4, truncate(string(rec.Payload), 500))
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 20) // case number
	_ = f.SetColWidth(sheet, "B", "B", 8)  // page
	_ = f.SetColWidth(sheet, "C", "C", 22) // fetched at
	_ = f.SetColWidth(sheet, "D", "D", 80) // payload

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// CSV returns the consolidated records as CSV bytes with a header row.
func (s *Service) CSV(records []entity.CaseRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"case_number", "page_number", "fetched_at", "payload"}); err != nil {
		return nil, err
	}
	for _, rec := range records {
		fetched := ""
		if !rec.FetchedAt.IsZero() {
			fetched = rec.FetchedAt.UTC().Format(time.RFC3339)
		}
		row := []string{
			rec.CaseNumber,
			fmt.Sprintf("%d", rec.PageNumber),
			fetched,
			string(rec.Payload),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	s.logger.Info("export.csv.ok", "rows", len(records))
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}

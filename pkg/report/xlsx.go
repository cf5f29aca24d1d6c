package report

import (
	"fmt"

	"github.com/mchmarny/specqc/pkg/batch"
	"github.com/xuri/excelize/v2"
)

const (
	sheetResults  = "Results"
	sheetFailures = "Failures"
	xlsxNumFmt    = "0.0000"
)

var (
	resultHeader  = []any{"Filename", "Batch ID", "Instrument S/N", "Prediction", "T2", "Q Residual", "Test Time", "Out of Control"}
	failureHeader = []any{"Filename", "Kind", "Error"}
)

// WriteXLSX writes the batch results and failures as a workbook.
func WriteXLSX(path string, r *batch.Report) error {
	if r == nil {
		return fmt.Errorf("report required")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetResults); err != nil {
		return fmt.Errorf("naming results sheet: %w", err)
	}
	if err := f.SetSheetRow(sheetResults, "A1", &resultHeader); err != nil {
		return fmt.Errorf("writing results header: %w", err)
	}

	for i, row := range r.Rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := []any{
			row.Source,
			row.Result.BatchID,
			row.Result.InstrumentSN,
			row.Result.Prediction,
			row.Result.T2,
			row.Result.Q,
			row.Result.TestTime,
			row.OutOfControl(),
		}
		if err := f.SetSheetRow(sheetResults, cell, &values); err != nil {
			return fmt.Errorf("writing result row %d: %w", i, err)
		}
	}

	if len(r.Rows) > 0 {
		numFmt := xlsxNumFmt
		style, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
		if err != nil {
			return fmt.Errorf("creating number style: %w", err)
		}
		end, _ := excelize.CoordinatesToCellName(6, len(r.Rows)+1)
		if err := f.SetCellStyle(sheetResults, "D2", end, style); err != nil {
			return fmt.Errorf("styling results: %w", err)
		}
	}

	if _, err := f.NewSheet(sheetFailures); err != nil {
		return fmt.Errorf("creating failures sheet: %w", err)
	}
	if err := f.SetSheetRow(sheetFailures, "A1", &failureHeader); err != nil {
		return fmt.Errorf("writing failures header: %w", err)
	}
	for i, fl := range r.Failures {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := []any{fl.Source, string(fl.Kind), fl.Message}
		if err := f.SetSheetRow(sheetFailures, cell, &values); err != nil {
			return fmt.Errorf("writing failure row %d: %w", i, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("writing xlsx %s: %w", path, err)
	}
	return nil
}

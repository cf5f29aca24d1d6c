package report

import (
	"bytes"
	"fmt"

	"codeberg.org/go-pdf/fpdf"
	"github.com/mchmarny/specqc/pkg/batch"
)

const (
	pdfTitle = "PLS Test Report"
	pdfFont  = "Arial"
	rowH     = 10.0
	chartW   = 190.0
	chartH   = 70.0
)

var resultColumns = []struct {
	name  string
	width float64
}{
	{"Filename", 40},
	{"Prediction", 30},
	{"T2", 30},
	{"Q Residual", 30},
	{"Test Time", 60},
}

// WritePDF writes the batch report to path. Rows above a control limit are
// shaded and the T2 and Q charts are appended when there is at least one
// result.
func WritePDF(path string, r *batch.Report) error {
	if r == nil {
		return fmt.Errorf("report required")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(pdfTitle+" "+r.BatchID, true)
	pdf.AddPage()
	// core fonts are cp1252
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont(pdfFont, "", 12)
	pdf.CellFormat(200, rowH, pdfTitle, "", 1, "C", false, 0, "")
	pdf.Ln(rowH)
	pdf.CellFormat(200, rowH, tr("Batch ID: "+r.BatchID), "", 1, "", false, 0, "")
	pdf.CellFormat(200, rowH, tr("Instrument S/N: "+r.InstrumentSN), "", 1, "", false, 0, "")
	if r.Model != "" {
		pdf.CellFormat(200, rowH, tr("Model: "+r.Model), "", 1, "", false, 0, "")
	}
	pdf.Ln(rowH)

	pdf.SetFont(pdfFont, "", 10)
	for _, c := range resultColumns {
		pdf.CellFormat(c.width, rowH, c.name, "1", 0, "", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFillColor(255, 220, 220)
	for _, row := range r.Rows {
		fill := row.OutOfControl()
		cells := []string{
			tr(truncate(row.Source, sourceWidth)),
			num(row.Result.Prediction),
			num(row.Result.T2),
			num(row.Result.Q),
			row.Result.TestTime,
		}
		for i, c := range resultColumns {
			pdf.CellFormat(c.width, rowH, cells[i], "1", 0, "", fill, 0, "")
		}
		pdf.Ln(-1)
	}

	if len(r.Failures) > 0 {
		pdf.Ln(rowH)
		pdf.SetFont(pdfFont, "B", 10)
		pdf.CellFormat(200, rowH, fmt.Sprintf("Failed spectra: %d", len(r.Failures)), "", 1, "", false, 0, "")
		pdf.SetFont(pdfFont, "", 10)
		pdf.CellFormat(60, rowH, "Filename", "1", 0, "", false, 0, "")
		pdf.CellFormat(130, rowH, "Error", "1", 1, "", false, 0, "")
		for _, fl := range r.Failures {
			pdf.CellFormat(60, rowH, tr(truncate(fl.Source, sourceWidth)), "1", 0, "", false, 0, "")
			pdf.CellFormat(130, rowH, tr(truncate(fl.Message, 80)), "1", 1, "", false, 0, "")
		}
	}

	if len(r.Rows) > 0 {
		if err := addCharts(pdf, r); err != nil {
			return err
		}
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("writing pdf %s: %w", path, err)
	}
	return nil
}

func addCharts(pdf *fpdf.Fpdf, r *batch.Report) error {
	t2 := make([]float64, len(r.Rows))
	q := make([]float64, len(r.Rows))
	for i, row := range r.Rows {
		t2[i] = row.Result.T2
		q[i] = row.Result.Q
	}

	charts := []struct {
		name   string
		title  string
		values []float64
		limit  float64
	}{
		{"t2", "Hotelling T2", t2, r.Limits.T2},
		{"q", "Q Residual", q, r.Limits.Q},
	}

	pdf.AddPage()
	for _, c := range charts {
		b, err := ControlChart(c.title, c.values, c.limit)
		if err != nil {
			return err
		}
		opt := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(c.name, opt, bytes.NewReader(b))
		pdf.ImageOptions(c.name, 10, pdf.GetY(), chartW, chartH, true, opt, 0, "")
		pdf.Ln(5)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("embedding charts: %w", err)
	}
	return nil
}

// Package report renders batch reports as PDF and XLSX documents.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mchmarny/specqc/pkg/batch"
)

const (
	FormatPDF  = "pdf"
	FormatXLSX = "xlsx"

	// longest file name shown in a report table
	sourceWidth = 38
	// numeric cells in reports
	numberFormat = "%.4f"
)

// Formats lists the supported report formats.
var Formats = []string{FormatPDF, FormatXLSX}

// FileName returns the report file name for a batch, e.g. B100.pdf.
func FileName(batchID, format string) string {
	return fmt.Sprintf("%s.%s", batchID, format)
}

// Write renders r into dir once per format and returns the written paths
// in format order.
func Write(dir string, r *batch.Report, formats []string) ([]string, error) {
	if r == nil {
		return nil, fmt.Errorf("report required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating report dir %s: %w", dir, err)
	}

	paths := make([]string, 0, len(formats))
	for _, format := range formats {
		format = strings.ToLower(strings.TrimSpace(format))

		var render func(string, *batch.Report) error
		switch format {
		case FormatPDF:
			render = WritePDF
		case FormatXLSX:
			render = WriteXLSX
		default:
			return paths, fmt.Errorf("unsupported report format: %q", format)
		}

		path := filepath.Join(dir, FileName(r.BatchID, format))
		if err := writeAtomic(path, r, render); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	return paths, nil
}

// writeAtomic renders into a temp file next to path and renames it into
// place, so concurrent runs of one batch never leave a torn report.
func writeAtomic(path string, r *batch.Report, render func(string, *batch.Report) error) error {
	dir, name := filepath.Split(path)
	ext := filepath.Ext(name)

	f, err := os.CreateTemp(dir, "."+strings.TrimSuffix(name, ext)+"-*"+ext)
	if err != nil {
		return fmt.Errorf("creating temp report for %s: %w", name, err)
	}
	tmp := f.Name()
	f.Close()

	if err := render(tmp, r); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming report %s: %w", name, err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func num(v float64) string {
	return fmt.Sprintf(numberFormat, v)
}

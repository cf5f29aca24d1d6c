// Package spectrum reads raw instrument spectra and turns them into the
// feature vectors a PLS model is scored against.
package spectrum

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mchmarny/specqc/pkg/qcerr"
	"github.com/xuri/excelize/v2"
)

const (
	// TimeFormat is the layout of test_time in results.
	TimeFormat = "2006-01-02 15:04:05"

	extCSV  = ".csv"
	extXLSX = ".xlsx"

	// column holding the intensities; column 0 is the wavelength axis
	valueColumn = 1
)

// Spectrum is one raw reading. It is not modified after it is read.
type Spectrum struct {
	Source   string    `json:"source" yaml:"source"`
	Captured time.Time `json:"captured" yaml:"captured"`
	Values   []float64 `json:"values" yaml:"values"`
}

// Len returns the number of channels.
func (s *Spectrum) Len() int {
	return len(s.Values)
}

// TestTime returns the capture time in result format.
func (s *Spectrum) TestTime() string {
	return s.Captured.Format(TimeFormat)
}

// Match returns the paths of the spectrum files in dir whose name contains
// batchID, sorted by name.
func Match(dir, batchID string) ([]string, error) {
	if strings.TrimSpace(batchID) == "" {
		return nil, qcerr.Validation("match", "batch id required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading data dir %s: %w", dir, err)
	}

	// os.ReadDir returns entries sorted by filename
	list := make([]string, 0)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if !strings.Contains(name, batchID) || !supported(name) {
			continue
		}
		list = append(list, filepath.Join(dir, name))
	}

	if len(list) == 0 {
		return nil, qcerr.Validation("match", "no spectrum files found for batch %q in %s", batchID, dir)
	}
	return list, nil
}

func supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == extCSV || ext == extXLSX
}

// ReadFile reads a CSV or XLSX spectrum file. The capture time is the
// file's modification time.
func ReadFile(path string) (*Spectrum, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	var values []float64
	switch strings.ToLower(filepath.Ext(path)) {
	case extCSV:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		values, err = ReadCSV(f)
		if err != nil {
			return nil, err
		}
	case extXLSX:
		values, err = readXLSX(path)
		if err != nil {
			return nil, err
		}
	default:
		return nil, qcerr.Validation("read", "unsupported spectrum file type: %s", filepath.Base(path))
	}

	return &Spectrum{
		Source:   filepath.Base(path),
		Captured: info.ModTime(),
		Values:   values,
	}, nil
}

// ReadCSV parses a headerless CSV and returns its second column.
func ReadCSV(r io.Reader) ([]float64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	values := make([]float64, 0)
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, qcerr.Validation("read", "csv line %d: %v", line, err)
		}
		v, err := parseValue(rec, line)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	if len(values) == 0 {
		return nil, qcerr.Validation("read", "no intensities in file")
	}
	return values, nil
}

func readXLSX(path string) ([]float64, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, qcerr.Validation("read", "workbook %s has no sheets", filepath.Base(path))
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}

	values := make([]float64, 0, len(rows))
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		v, err := parseValue(row, i+1)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	if len(values) == 0 {
		return nil, qcerr.Validation("read", "no intensities in %s", filepath.Base(path))
	}
	return values, nil
}

func parseValue(rec []string, line int) (float64, error) {
	if len(rec) <= valueColumn {
		return 0, qcerr.Validation("read", "line %d: expected at least %d columns, got %d", line, valueColumn+1, len(rec))
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rec[valueColumn]), 64)
	if err != nil {
		return 0, qcerr.Validation("read", "line %d: invalid intensity %q", line, rec[valueColumn])
	}
	return v, nil
}

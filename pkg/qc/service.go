// Package qc ties the scoring pipeline to its collaborators: spectrum file
// discovery, persistence and report rendering. Both the CLI and the web
// front end go through Service.Process.
package qc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mchmarny/specqc/pkg/batch"
	"github.com/mchmarny/specqc/pkg/data"
	"github.com/mchmarny/specqc/pkg/model"
	"github.com/mchmarny/specqc/pkg/qcerr"
	"github.com/mchmarny/specqc/pkg/report"
	"github.com/mchmarny/specqc/pkg/spectrum"
)

// Service processes batches against one model.
type Service struct {
	Model     *model.TrainedModel
	DB        *sqlx.DB
	DataDir   string
	ReportDir string
	Formats   []string
	Workers   int
}

// Outcome is what a processed batch produced.
type Outcome struct {
	Report  *batch.Report `json:"report" yaml:"report"`
	Summary batch.Summary `json:"summary" yaml:"summary"`
	// Files are the written report paths in format order.
	Files []string `json:"files,omitempty" yaml:"files,omitempty"`
}

// Failed reports whether any spectrum of the batch could not be scored.
func (o *Outcome) Failed() bool {
	return o != nil && o.Report != nil && len(o.Report.Failures) > 0
}

// Process scores every spectrum of the batch found in the data dir,
// persists the run and writes the reports. Per-spectrum failures are part
// of the outcome, not an error: successful rows are still saved and
// reported.
func (s *Service) Process(ctx context.Context, batchID, sn string) (*Outcome, error) {
	if s.Model == nil {
		return nil, qcerr.Validation("process", "model required")
	}
	batchID = strings.TrimSpace(batchID)
	sn = strings.TrimSpace(sn)
	if batchID == "" {
		return nil, qcerr.Validation("process", "batch id required")
	}
	if sn == "" {
		return nil, qcerr.Validation("process", "instrument serial number required")
	}

	paths, err := spectrum.Match(s.DataDir, batchID)
	if err != nil {
		return nil, err
	}
	slog.Info("spectra matched", "batch", batchID, "files", len(paths))

	r, err := batch.RunFiles(ctx, s.Model, paths, batchID, sn, batch.Options{Workers: s.Workers})
	if err != nil {
		return nil, err
	}

	out := &Outcome{Report: r, Summary: r.Summary()}

	if s.DB != nil {
		if err := data.SaveRun(ctx, s.DB, r); err != nil {
			return out, fmt.Errorf("saving batch %s: %w", batchID, err)
		}
	}

	if len(s.Formats) > 0 {
		files, err := report.Write(s.ReportDir, r, s.Formats)
		out.Files = files
		if err != nil {
			return out, fmt.Errorf("writing reports for batch %s: %w", batchID, err)
		}
	}

	return out, nil
}

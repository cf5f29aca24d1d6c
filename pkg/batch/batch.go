// Package batch runs the preprocess, score and diagnose pipeline over the
// spectra of one batch.
//
// Failure policy is best-effort: a spectrum that fails validation,
// dimension or numeric checks becomes a Failure in the report and the
// remaining spectra are still scored. Nothing is dropped silently; every
// input yields exactly one Row or one Failure. Only context cancellation
// aborts the whole batch.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/specqc/pkg/model"
	"github.com/mchmarny/specqc/pkg/pls"
	"github.com/mchmarny/specqc/pkg/qcerr"
	"github.com/mchmarny/specqc/pkg/spectrum"
	"golang.org/x/sync/errgroup"
)

// Options tune a batch run.
type Options struct {
	// Workers is the number of spectra processed concurrently; values
	// below 1 mean sequential.
	Workers int
}

// Evaluate runs one spectrum through the pipeline.
func Evaluate(m *model.TrainedModel, s *spectrum.Spectrum, batchID, sn string) (*Row, error) {
	if s == nil {
		return nil, qcerr.Validation("evaluate", "nil spectrum")
	}
	if s.Len() != m.RawLength() {
		return nil, qcerr.Dimension("evaluate", "spectrum has %d channels, model expects %d", s.Len(), m.RawLength())
	}

	pre, err := spectrum.Preprocess(s, m.Preprocessing())
	if err != nil {
		return nil, err
	}

	score, err := pls.Score(m, pre)
	if err != nil {
		return nil, err
	}

	d, err := pls.Diagnose(m, score.X, score.T)
	if err != nil {
		return nil, err
	}

	limits := m.Limits()
	return &Row{
		Source: s.Source,
		Result: PredictionResult{
			BatchID:      batchID,
			InstrumentSN: sn,
			Prediction:   score.Prediction,
			T2:           d.T2,
			Q:            d.Q,
			TestTime:     s.TestTime(),
		},
		T2Exceeded: limits.T2Exceeded(d.T2),
		QExceeded:  limits.QExceeded(d.Q),
	}, nil
}

// Run scores already loaded spectra.
func Run(ctx context.Context, m *model.TrainedModel, spectra []*spectrum.Spectrum, batchID, sn string, opt Options) (*Report, error) {
	return run(ctx, m, len(spectra), batchID, sn, opt, func(i int) (string, *Row, error) {
		s := spectra[i]
		if s == nil {
			return fmt.Sprintf("#%d", i), nil, qcerr.Validation("run", "nil spectrum at %d", i)
		}
		row, err := Evaluate(m, s, batchID, sn)
		return s.Source, row, err
	})
}

// RunFiles reads and scores spectrum files. A file that cannot be read is
// a failure of that file only.
func RunFiles(ctx context.Context, m *model.TrainedModel, paths []string, batchID, sn string, opt Options) (*Report, error) {
	return run(ctx, m, len(paths), batchID, sn, opt, func(i int) (string, *Row, error) {
		source := filepath.Base(paths[i])
		s, err := spectrum.ReadFile(paths[i])
		if err != nil {
			return source, nil, err
		}
		row, err := Evaluate(m, s, batchID, sn)
		return source, row, err
	})
}

type itemFunc func(i int) (source string, row *Row, err error)

func run(ctx context.Context, m *model.TrainedModel, n int, batchID, sn string, opt Options, fn itemFunc) (*Report, error) {
	if m == nil {
		return nil, qcerr.Validation("run", "model required")
	}
	if strings.TrimSpace(batchID) == "" {
		return nil, qcerr.Validation("run", "batch id required")
	}
	if n == 0 {
		return nil, qcerr.Validation("run", "no spectra for batch %q", batchID)
	}

	r := &Report{
		RunID:        uuid.New(),
		BatchID:      batchID,
		InstrumentSN: sn,
		Model:        m.Name(),
		Started:      time.Now(),
		Total:        n,
		Limits:       m.Limits(),
	}
	log := slog.With("run", r.RunID.String(), "batch", batchID)
	log.Debug("batch started", "spectra", n, "workers", opt.Workers)

	// each slot is written by exactly one goroutine
	rows := make([]*Row, n)
	failures := make([]*Failure, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, opt.Workers))

	for i := range n {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			source, row, err := fn(i)
			if err != nil {
				log.Warn("spectrum failed", "source", source, "kind", qcerr.KindOf(err), "error", err)
				failures[i] = newFailure(i, source, err)
				return nil
			}
			row.Index = i
			row.Source = source
			rows[i] = row
			log.Debug("spectrum scored", "source", source,
				"prediction", row.Result.Prediction, "t2", row.Result.T2, "q", row.Result.Q)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch %s cancelled: %w", batchID, err)
	}

	r.Rows = make([]*Row, 0, n)
	r.Failures = make([]*Failure, 0)
	for i := range n {
		if rows[i] != nil {
			r.Rows = append(r.Rows, rows[i])
		}
		if failures[i] != nil {
			r.Failures = append(r.Failures, failures[i])
		}
	}
	r.Duration = time.Since(r.Started)

	log.Info("batch completed", "scored", len(r.Rows), "failed", len(r.Failures), "duration", r.Duration.String())
	return r, nil
}

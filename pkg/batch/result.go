package batch

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/specqc/pkg/model"
	"github.com/mchmarny/specqc/pkg/qcerr"
	"github.com/montanaflynn/stats"
)

// PredictionResult is the record handed to persistence and reporting.
// batch_id, instrument_sn and test_time together identify a record.
type PredictionResult struct {
	BatchID      string  `json:"batch_id" yaml:"batch_id" db:"batch_id"`
	InstrumentSN string  `json:"instrument_sn" yaml:"instrument_sn" db:"instrument_sn"`
	Prediction   float64 `json:"prediction" yaml:"prediction" db:"prediction"`
	T2           float64 `json:"t2" yaml:"t2" db:"t2"`
	Q            float64 `json:"q_residual" yaml:"q_residual" db:"q_residual"`
	TestTime     string  `json:"test_time" yaml:"test_time" db:"test_time"`
}

// Row is a successfully scored spectrum.
type Row struct {
	Index      int              `json:"index" yaml:"index"`
	Source     string           `json:"source" yaml:"source"`
	Result     PredictionResult `json:"result" yaml:"result"`
	T2Exceeded bool             `json:"t2_exceeded,omitempty" yaml:"t2_exceeded,omitempty"`
	QExceeded  bool             `json:"q_exceeded,omitempty" yaml:"q_exceeded,omitempty"`
}

// OutOfControl reports whether either statistic is above its limit.
func (r *Row) OutOfControl() bool {
	return r.T2Exceeded || r.QExceeded
}

// Failure is a spectrum that could not be scored.
type Failure struct {
	Index  int        `json:"index" yaml:"index"`
	Source string     `json:"source" yaml:"source"`
	Kind   qcerr.Kind `json:"kind,omitempty" yaml:"kind,omitempty"`
	Err    error      `json:"-" yaml:"-"`
	// Message mirrors Err for encoders.
	Message string `json:"error" yaml:"error"`
}

func newFailure(i int, source string, err error) *Failure {
	return &Failure{
		Index:   i,
		Source:  source,
		Kind:    qcerr.KindOf(err),
		Err:     err,
		Message: err.Error(),
	}
}

// Report is the outcome of one batch run: one Row or one Failure per
// input, each list in input order.
type Report struct {
	RunID        uuid.UUID     `json:"run_id" yaml:"run_id"`
	BatchID      string        `json:"batch_id" yaml:"batch_id"`
	InstrumentSN string        `json:"instrument_sn" yaml:"instrument_sn"`
	Model        string        `json:"model,omitempty" yaml:"model,omitempty"`
	Started      time.Time     `json:"started" yaml:"started"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
	Total        int           `json:"total" yaml:"total"`
	Limits       model.Limits  `json:"limits" yaml:"limits"`
	Rows         []*Row        `json:"rows" yaml:"rows"`
	Failures     []*Failure    `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// Results returns the prediction records in input order.
func (r *Report) Results() []PredictionResult {
	list := make([]PredictionResult, 0, len(r.Rows))
	for _, row := range r.Rows {
		list = append(list, row.Result)
	}
	return list
}

// Err joins all per-spectrum failures, or returns nil when there are none.
func (r *Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("%s: %w", f.Source, f.Err))
	}
	return errors.Join(errs...)
}

// Summary describes the predictions of a batch.
type Summary struct {
	Count        int     `json:"count" yaml:"count"`
	Failed       int     `json:"failed" yaml:"failed"`
	OutOfControl int     `json:"out_of_control" yaml:"out_of_control"`
	Mean         float64 `json:"mean" yaml:"mean"`
	StdDev       float64 `json:"std_dev" yaml:"std_dev"`
	Min          float64 `json:"min" yaml:"min"`
	Max          float64 `json:"max" yaml:"max"`
}

// Summary computes prediction statistics over the successful rows.
func (r *Report) Summary() Summary {
	s := Summary{Count: len(r.Rows), Failed: len(r.Failures)}
	if len(r.Rows) == 0 {
		return s
	}

	data := make(stats.Float64Data, 0, len(r.Rows))
	for _, row := range r.Rows {
		data = append(data, row.Result.Prediction)
		if row.OutOfControl() {
			s.OutOfControl++
		}
	}

	// errors only occur for empty input, handled above
	s.Mean, _ = data.Mean()
	if len(data) > 1 {
		s.StdDev, _ = data.StandardDeviationSample()
	}
	s.Min, _ = data.Min()
	s.Max, _ = data.Max()
	return s
}

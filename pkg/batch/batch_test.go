package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mchmarny/specqc/internal/testutil"
	"github.com/mchmarny/specqc/pkg/model"
	"github.com/mchmarny/specqc/pkg/qcerr"
	"github.com/mchmarny/specqc/pkg/spectrum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var captured = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

func newSpectrum(name string, seed uint64, n int) *spectrum.Spectrum {
	return &spectrum.Spectrum{
		Source:   name,
		Captured: captured,
		Values:   testutil.Spectrum(seed, n),
	}
}

func identityModel(t *testing.T) *model.TrainedModel {
	t.Helper()
	m, err := model.New(testutil.IdentityArtifact())
	require.NoError(t, err)
	return m
}

func TestRun_PartialFailure(t *testing.T) {
	m := identityModel(t)
	list := []*spectrum.Spectrum{
		newSpectrum("B100_1.csv", 1, m.RawLength()),
		newSpectrum("B100_2.csv", 2, m.RawLength()+3),
		newSpectrum("B100_3.csv", 3, m.RawLength()),
	}

	r, err := Run(context.Background(), m, list, "B100", "SN-7", Options{Workers: 2})
	require.NoError(t, err)
	require.Len(t, r.Rows, 2)
	require.Len(t, r.Failures, 1)
	assert.Equal(t, 3, r.Total)
	assert.Equal(t, "identity", r.Model)

	assert.Equal(t, "B100_1.csv", r.Rows[0].Source)
	assert.Equal(t, 0, r.Rows[0].Index)
	assert.Equal(t, "B100_3.csv", r.Rows[1].Source)
	assert.Equal(t, 2, r.Rows[1].Index)

	f := r.Failures[0]
	assert.Equal(t, 1, f.Index)
	assert.Equal(t, "B100_2.csv", f.Source)
	assert.Equal(t, qcerr.KindDimension, f.Kind)
	assert.ErrorIs(t, f.Err, qcerr.ErrDimension)
	assert.NotEmpty(t, f.Message)

	for _, res := range r.Results() {
		assert.Equal(t, "B100", res.BatchID)
		assert.Equal(t, "SN-7", res.InstrumentSN)
		assert.Equal(t, "2024-03-09 14:05:07", res.TestTime)
		assert.GreaterOrEqual(t, res.T2, 0.0)
		assert.GreaterOrEqual(t, res.Q, 0.0)
	}

	assert.ErrorIs(t, r.Err(), qcerr.ErrDimension)
}

func TestRun_NumericFailure(t *testing.T) {
	m := identityModel(t)
	flat := &spectrum.Spectrum{Source: "flat.csv", Captured: captured, Values: make([]float64, m.RawLength())}

	r, err := Run(context.Background(), m, []*spectrum.Spectrum{flat}, "B1", "", Options{})
	require.NoError(t, err)
	assert.Empty(t, r.Rows)
	require.Len(t, r.Failures, 1)
	assert.Equal(t, qcerr.KindNumeric, r.Failures[0].Kind)
}

func TestRun_NilSpectrum(t *testing.T) {
	m := identityModel(t)
	r, err := Run(context.Background(), m, []*spectrum.Spectrum{nil}, "B1", "", Options{})
	require.NoError(t, err)
	require.Len(t, r.Failures, 1)
	assert.Equal(t, "#0", r.Failures[0].Source)
	assert.ErrorIs(t, r.Failures[0].Err, qcerr.ErrValidation)
}

func TestRun_Validation(t *testing.T) {
	m := identityModel(t)
	one := []*spectrum.Spectrum{newSpectrum("a.csv", 1, m.RawLength())}

	_, err := Run(context.Background(), nil, one, "B1", "", Options{})
	assert.ErrorIs(t, err, qcerr.ErrValidation)

	_, err = Run(context.Background(), m, one, " ", "", Options{})
	assert.ErrorIs(t, err, qcerr.ErrValidation)

	_, err = Run(context.Background(), m, nil, "B1", "", Options{})
	assert.ErrorIs(t, err, qcerr.ErrValidation)
}

func TestRun_Cancelled(t *testing.T) {
	m := identityModel(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := Run(ctx, m, []*spectrum.Spectrum{newSpectrum("a.csv", 1, m.RawLength())}, "B1", "", Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, r)
}

func TestRun_ConcurrencyMatchesSequential(t *testing.T) {
	m, err := model.New(testutil.RandomArtifact(5, 40, 3))
	require.NoError(t, err)

	list := make([]*spectrum.Spectrum, 50)
	for i := range list {
		list[i] = newSpectrum(fmt.Sprintf("B7_%02d.csv", i), uint64(i+1), m.RawLength())
	}

	seq, err := Run(context.Background(), m, list, "B7", "SN", Options{Workers: 1})
	require.NoError(t, err)
	par, err := Run(context.Background(), m, list, "B7", "SN", Options{Workers: 8})
	require.NoError(t, err)

	require.Len(t, par.Rows, len(list))
	assert.Equal(t, seq.Results(), par.Results())
	for i, row := range par.Rows {
		assert.Equal(t, i, row.Index)
		assert.Equal(t, list[i].Source, row.Source)
	}
	assert.NotEqual(t, seq.RunID, par.RunID)
}

func TestEvaluate_MatchesRun(t *testing.T) {
	m := identityModel(t)
	s := newSpectrum("a.csv", 9, m.RawLength())

	row, err := Evaluate(m, s, "B9", "SN")
	require.NoError(t, err)

	r, err := Run(context.Background(), m, []*spectrum.Spectrum{s}, "B9", "SN", Options{})
	require.NoError(t, err)
	require.Len(t, r.Rows, 1)
	assert.Equal(t, row.Result, r.Rows[0].Result)

	_, err = Evaluate(m, nil, "B9", "SN")
	assert.ErrorIs(t, err, qcerr.ErrValidation)
}

func TestEvaluate_FlagsLimits(t *testing.T) {
	a := testutil.IdentityArtifact()
	a.NTrain = 30
	a.Limits = model.LimitSpec{T2: 1e-9, Q: 1e-9}
	m, err := model.New(a)
	require.NoError(t, err)

	row, err := Evaluate(m, newSpectrum("a.csv", 4, m.RawLength()), "B", "")
	require.NoError(t, err)
	assert.True(t, row.T2Exceeded)
	assert.True(t, row.OutOfControl())
}

func TestRunFiles(t *testing.T) {
	m := identityModel(t)
	dir := t.TempDir()

	good, err := testutil.WriteCSV(dir, "B200_a.csv", testutil.Spectrum(1, m.RawLength()))
	require.NoError(t, err)
	bad := filepath.Join(dir, "B200_b.csv")
	require.NoError(t, os.WriteFile(bad, []byte("1,abc\n"), 0600))
	missing := filepath.Join(dir, "B200_c.csv")

	r, err := RunFiles(context.Background(), m, []string{good, bad, missing}, "B200", "SN", Options{Workers: 3})
	require.NoError(t, err)
	require.Len(t, r.Rows, 1)
	assert.Equal(t, "B200_a.csv", r.Rows[0].Source)

	require.Len(t, r.Failures, 2)
	assert.Equal(t, "B200_b.csv", r.Failures[0].Source)
	assert.Equal(t, qcerr.KindValidation, r.Failures[0].Kind)
	assert.Equal(t, "B200_c.csv", r.Failures[1].Source)
	assert.Error(t, r.Failures[1].Err)
}

func TestReportSummary(t *testing.T) {
	r := &Report{
		Rows: []*Row{
			{Result: PredictionResult{Prediction: 1}},
			{Result: PredictionResult{Prediction: 3}, QExceeded: true},
		},
		Failures: []*Failure{{Source: "x"}},
	}
	s := r.Summary()
	assert.Equal(t, 2, s.Count)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.OutOfControl)
	assert.InDelta(t, 2, s.Mean, 1e-12)
	assert.InDelta(t, 1.41421356, s.StdDev, 1e-6)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 3.0, s.Max)

	one := (&Report{Rows: r.Rows[:1]}).Summary()
	assert.Zero(t, one.StdDev)

	empty := (&Report{}).Summary()
	assert.Zero(t, empty.Count)
	assert.NoError(t, (&Report{}).Err())
}

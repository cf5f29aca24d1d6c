// Package model holds the trained PLS regression artifact.
//
// A TrainedModel is built once (Load or New), validated, and then shared
// read-only by every scoring call; nothing in this package mutates a model
// after construction, and accessors expose matrices only through gonum's
// read-only interfaces.
package model

import (
	"math"

	"github.com/mchmarny/specqc/pkg/qcerr"
	"github.com/mchmarny/specqc/pkg/spectrum"
	"gonum.org/v1/gonum/mat"
)

// Space tells which vector the regression coefficients apply to.
type Space int

const (
	// SpaceX applies coefficients to the standardized feature vector.
	SpaceX Space = iota
	// SpaceScores applies coefficients to the latent score vector.
	SpaceScores
)

func (s Space) String() string {
	if s == SpaceScores {
		return "scores"
	}
	return "x"
}

// TrainedModel is an immutable, validated PLS model.
type TrainedModel struct {
	name      string
	target    string
	rawLength int
	prep      spectrum.Params

	mean     *mat.VecDense
	std      *mat.VecDense
	weights  *mat.Dense
	loadings *mat.Dense
	scoreVar *mat.VecDense

	coef      *mat.VecDense
	space     Space
	intercept float64

	nTrain int
	limits Limits
}

// New validates a and builds a model from a copy of its data.
func New(a *Artifact) (*TrainedModel, error) {
	if a == nil {
		return nil, qcerr.Validation("model", "artifact required")
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	prep := a.Preprocessing.WithDefaults()
	features := len(a.XMean)
	k := len(a.ScoreVariance)

	raw := a.RawLength
	if raw == 0 {
		raw = prep.InputLength(features)
	}

	m := &TrainedModel{
		name:      a.Name,
		target:    a.Target,
		rawLength: raw,
		prep:      prep,
		mean:      vec(a.XMean),
		std:       vec(a.XStd),
		weights:   dense(a.XWeights, features, k),
		loadings:  dense(a.XLoadings, features, k),
		scoreVar:  vec(a.ScoreVariance),
		intercept: a.Intercept,
		nTrain:    a.NTrain,
	}

	if len(a.Coef) > 0 {
		m.coef = vec(a.Coef)
		m.space = SpaceX
	} else {
		m.coef = vec(a.YLoadings)
		m.space = SpaceScores
	}

	limits, err := deriveLimits(a.Limits, k, a.NTrain)
	if err != nil {
		return nil, err
	}
	m.limits = limits

	return m, nil
}

// Validate checks dimension agreement and value domains of the artifact.
func (a *Artifact) Validate() error {
	const op = "model"

	prep := a.Preprocessing.WithDefaults()
	if err := prep.Validate(); err != nil {
		return err
	}

	features := len(a.XMean)
	k := len(a.ScoreVariance)
	if features == 0 {
		return qcerr.Dimension(op, "x_mean is empty")
	}
	if k == 0 {
		return qcerr.Dimension(op, "score_variance is empty")
	}
	if k > features {
		return qcerr.Dimension(op, "components %d exceed features %d", k, features)
	}
	if len(a.XStd) != features {
		return qcerr.Dimension(op, "x_std length %d != x_mean length %d", len(a.XStd), features)
	}
	if err := checkMatrix("x_weights", a.XWeights, features, k); err != nil {
		return err
	}
	if err := checkMatrix("x_loadings", a.XLoadings, features, k); err != nil {
		return err
	}

	switch {
	case len(a.Coef) > 0 && len(a.YLoadings) > 0:
		return qcerr.Validation(op, "only one of coef and y_loadings may be set")
	case len(a.Coef) > 0:
		if len(a.Coef) != features {
			return qcerr.Dimension(op, "coef length %d != features %d", len(a.Coef), features)
		}
	case len(a.YLoadings) > 0:
		if len(a.YLoadings) != k {
			return qcerr.Dimension(op, "y_loadings length %d != components %d", len(a.YLoadings), k)
		}
	default:
		return qcerr.Validation(op, "one of coef and y_loadings is required")
	}

	if a.RawLength != 0 && prep.OutputLength(a.RawLength) != features {
		return qcerr.Dimension(op, "raw_length %d preprocesses to %d features, model has %d",
			a.RawLength, prep.OutputLength(a.RawLength), features)
	}
	if prep.InputLength(features) < prep.Window {
		return qcerr.Dimension(op, "raw input length %d is shorter than window %d", prep.InputLength(features), prep.Window)
	}

	for i, s := range a.XStd {
		if !(s > 0) || math.IsInf(s, 0) {
			return qcerr.Numeric(op, "x_std[%d] must be positive and finite, got %v", i, s)
		}
	}
	for i, v := range a.ScoreVariance {
		if !(v > 0) || math.IsInf(v, 0) {
			return qcerr.Numeric(op, "score_variance[%d] must be positive and finite, got %v", i, v)
		}
	}

	for name, v := range map[string][]float64{
		"x_mean":     a.XMean,
		"coef":       a.Coef,
		"y_loadings": a.YLoadings,
		"intercept":  {a.Intercept},
	} {
		if err := checkFinite(name, v); err != nil {
			return err
		}
	}

	return nil
}

func checkMatrix(name string, rows [][]float64, r, c int) error {
	if len(rows) != r {
		return qcerr.Dimension("model", "%s has %d rows, want %d", name, len(rows), r)
	}
	for i, row := range rows {
		if len(row) != c {
			return qcerr.Dimension("model", "%s row %d has %d columns, want %d", name, i, len(row), c)
		}
		if err := checkFinite(name, row); err != nil {
			return err
		}
	}
	return nil
}

func checkFinite(name string, v []float64) error {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return qcerr.Numeric("model", "%s[%d] is not finite", name, i)
		}
	}
	return nil
}

func vec(v []float64) *mat.VecDense {
	return mat.NewVecDense(len(v), append([]float64(nil), v...))
}

func dense(rows [][]float64, r, c int) *mat.Dense {
	d := mat.NewDense(r, c, nil)
	for i, row := range rows {
		d.SetRow(i, row)
	}
	return d
}

// Name returns the model name from the artifact.
func (m *TrainedModel) Name() string { return m.name }

// Target returns the predicted attribute name.
func (m *TrainedModel) Target() string { return m.target }

// RawLength is the expected number of channels in a raw spectrum.
func (m *TrainedModel) RawLength() int { return m.rawLength }

// Features is the preprocessed feature dimension L'.
func (m *TrainedModel) Features() int { return m.mean.Len() }

// Components is the number of latent components k.
func (m *TrainedModel) Components() int { return m.scoreVar.Len() }

// Preprocessing returns the preprocessing settings of the model.
func (m *TrainedModel) Preprocessing() spectrum.Params { return m.prep }

func (m *TrainedModel) Mean() mat.Vector          { return m.mean }
func (m *TrainedModel) Std() mat.Vector           { return m.std }
func (m *TrainedModel) Weights() mat.Matrix       { return m.weights }
func (m *TrainedModel) Loadings() mat.Matrix      { return m.loadings }
func (m *TrainedModel) ScoreVariance() mat.Vector { return m.scoreVar }

// Regression returns the coefficient vector, the space it applies to and
// the intercept.
func (m *TrainedModel) Regression() (mat.Vector, Space, float64) {
	return m.coef, m.space, m.intercept
}

// NTrain is the number of training samples, 0 when unknown.
func (m *TrainedModel) NTrain() int { return m.nTrain }

// Limits returns the control limits; zero values mean unknown.
func (m *TrainedModel) Limits() Limits { return m.limits }

// Artifact returns a copy of the model in portable form.
func (m *TrainedModel) Artifact() *Artifact {
	a := &Artifact{
		Name:          m.name,
		Target:        m.target,
		RawLength:     m.rawLength,
		Preprocessing: m.prep,
		XMean:         rawVec(m.mean),
		XStd:          rawVec(m.std),
		XWeights:      rows(m.weights),
		XLoadings:     rows(m.loadings),
		Intercept:     m.intercept,
		ScoreVariance: rawVec(m.scoreVar),
		NTrain:        m.nTrain,
		Limits: LimitSpec{
			Alpha: m.limits.Alpha,
			T2:    m.limits.T2,
			Q:     m.limits.Q,
		},
	}
	if m.space == SpaceX {
		a.Coef = rawVec(m.coef)
	} else {
		a.YLoadings = rawVec(m.coef)
	}
	return a
}

func rawVec(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

func rows(d *mat.Dense) [][]float64 {
	r, _ := d.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, d)
	}
	return out
}

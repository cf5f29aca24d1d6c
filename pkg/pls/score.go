// Package pls projects preprocessed spectra through a trained PLS model and
// computes the Hotelling T2 and Q residual (SPE) diagnostics.
//
// All functions are pure: they read the model and their arguments and
// return new values, so one model may be shared by any number of
// goroutines.
package pls

import (
	"github.com/mchmarny/specqc/pkg/model"
	"github.com/mchmarny/specqc/pkg/qcerr"
	"gonum.org/v1/gonum/mat"
)

// Projection is one standardized sample projected through the model.
type Projection struct {
	// X is the standardized feature vector (pre - mean) / std.
	X *mat.VecDense
	// T holds the latent scores X W.
	T *mat.VecDense
	// Prediction is the regression output.
	Prediction float64
}

// Standardize returns (pre - mean) / std using the model's statistics.
func Standardize(m *model.TrainedModel, pre []float64) (*mat.VecDense, error) {
	if m == nil {
		return nil, qcerr.Validation("standardize", "model required")
	}
	mean, std := m.Mean(), m.Std()
	if len(pre) != mean.Len() {
		return nil, qcerr.Dimension("standardize", "preprocessed length %d != model features %d", len(pre), mean.Len())
	}

	x := mat.NewVecDense(len(pre), nil)
	for i, v := range pre {
		x.SetVec(i, (v-mean.AtVec(i))/std.AtVec(i))
	}
	return x, nil
}

// Score standardizes pre, projects it onto the latent components and
// applies the regression.
func Score(m *model.TrainedModel, pre []float64) (*Projection, error) {
	x, err := Standardize(m, pre)
	if err != nil {
		return nil, err
	}

	t, err := Project(m, x)
	if err != nil {
		return nil, err
	}

	coef, space, intercept := m.Regression()
	var y float64
	switch space {
	case model.SpaceScores:
		if coef.Len() != t.Len() {
			return nil, qcerr.Dimension("score", "y_loadings length %d != components %d", coef.Len(), t.Len())
		}
		y = intercept + mat.Dot(t, coef)
	default:
		if coef.Len() != x.Len() {
			return nil, qcerr.Dimension("score", "coef length %d != features %d", coef.Len(), x.Len())
		}
		y = intercept + mat.Dot(x, coef)
	}

	return &Projection{X: x, T: t, Prediction: y}, nil
}

// Project returns the latent scores t = x W.
func Project(m *model.TrainedModel, x mat.Vector) (*mat.VecDense, error) {
	w := m.Weights()
	rows, k := w.Dims()
	if x.Len() != rows {
		return nil, qcerr.Dimension("project", "x length %d != weight rows %d", x.Len(), rows)
	}

	t := mat.NewVecDense(k, nil)
	t.MulVec(w.T(), x)
	return t, nil
}

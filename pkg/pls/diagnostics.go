package pls

import (
	"github.com/mchmarny/specqc/pkg/model"
	"github.com/mchmarny/specqc/pkg/qcerr"
	"gonum.org/v1/gonum/mat"
)

// Diagnostics are the multivariate control statistics of one sample.
type Diagnostics struct {
	T2 float64
	Q  float64
	// Residual is x - t P^T.
	Residual *mat.VecDense
}

// Diagnose computes Hotelling's T2 = sum(t_i^2 / v_i) over the training
// score variances v, and Q = |x - t P^T|^2.
func Diagnose(m *model.TrainedModel, x, t mat.Vector) (*Diagnostics, error) {
	t2, err := HotellingT2(t, m.ScoreVariance())
	if err != nil {
		return nil, err
	}

	r, err := Residual(m.Loadings(), x, t)
	if err != nil {
		return nil, err
	}

	return &Diagnostics{
		T2:       t2,
		Q:        mat.Dot(r, r),
		Residual: r,
	}, nil
}

// HotellingT2 returns sum(t_i^2 / v_i). Every v_i must be positive.
func HotellingT2(t, v mat.Vector) (float64, error) {
	if t.Len() != v.Len() {
		return 0, qcerr.Dimension("t2", "scores length %d != variance length %d", t.Len(), v.Len())
	}

	var sum float64
	for i := range t.Len() {
		vi := v.AtVec(i)
		if !(vi > 0) {
			return 0, qcerr.Numeric("t2", "training score variance %d is %v", i, vi)
		}
		ti := t.AtVec(i)
		sum += ti * ti / vi
	}
	return sum, nil
}

// Residual returns x - t P^T for the loading matrix p (features x k).
func Residual(p mat.Matrix, x, t mat.Vector) (*mat.VecDense, error) {
	rows, k := p.Dims()
	if x.Len() != rows {
		return nil, qcerr.Dimension("q", "x length %d != loading rows %d", x.Len(), rows)
	}
	if t.Len() != k {
		return nil, qcerr.Dimension("q", "scores length %d != loading columns %d", t.Len(), k)
	}

	xhat := mat.NewVecDense(rows, nil)
	xhat.MulVec(p, t)

	r := mat.NewVecDense(rows, nil)
	r.SubVec(x, xhat)
	return r, nil
}

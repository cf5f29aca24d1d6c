package pls

import (
	"math"
	"testing"

	"github.com/mchmarny/specqc/internal/testutil"
	"github.com/mchmarny/specqc/pkg/model"
	"github.com/mchmarny/specqc/pkg/qcerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const tolerance = 1e-12

func identityModel(t *testing.T) *model.TrainedModel {
	t.Helper()
	m, err := model.New(testutil.IdentityArtifact())
	require.NoError(t, err)
	return m
}

func TestScoreAndDiagnose_Identity(t *testing.T) {
	tests := []struct {
		name string
		x    []float64
		t    []float64
		t2   float64
		pred float64
	}{
		{"three four", []float64{3, 4}, []float64{3, 4}, 25, 10 + 1.5 + 1},
		{"unit", []float64{1, 0}, []float64{1, 0}, 1, 10.5},
		{"origin", []float64{0, 0}, []float64{0, 0}, 0, 10},
	}

	m := identityModel(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Score(m, tt.x)
			require.NoError(t, err)
			assert.Equal(t, tt.x, s.X.RawVector().Data)
			assert.Equal(t, tt.t, s.T.RawVector().Data)
			assert.InDelta(t, tt.pred, s.Prediction, tolerance)

			d, err := Diagnose(m, s.X, s.T)
			require.NoError(t, err)
			assert.InDelta(t, tt.t2, d.T2, tolerance)
			assert.InDelta(t, 0, d.Q, tolerance)
			assert.Equal(t, []float64{0, 0}, d.Residual.RawVector().Data)
		})
	}
}

func TestScore_ScoresSpace(t *testing.T) {
	a := testutil.IdentityArtifact()
	a.Coef = nil
	a.YLoadings = []float64{2, -1}
	a.Intercept = 1
	m, err := model.New(a)
	require.NoError(t, err)

	s, err := Score(m, []float64{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 1+6-4, s.Prediction, tolerance)
}

func TestScore_Standardizes(t *testing.T) {
	a := testutil.IdentityArtifact()
	a.XMean = []float64{1, 2}
	a.XStd = []float64{2, 4}
	m, err := model.New(a)
	require.NoError(t, err)

	s, err := Score(m, []float64{5, 10})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2}, s.X.RawVector().Data)
}

func TestScore_DimensionMismatch(t *testing.T) {
	m := identityModel(t)
	for _, pre := range [][]float64{{1}, {1, 2, 3}, nil} {
		s, err := Score(m, pre)
		assert.ErrorIs(t, err, qcerr.ErrDimension)
		assert.Nil(t, s)
	}
}

func TestProject_DimensionMismatch(t *testing.T) {
	m := identityModel(t)
	_, err := Project(m, mat.NewVecDense(3, nil))
	assert.ErrorIs(t, err, qcerr.ErrDimension)
}

func TestHotellingT2(t *testing.T) {
	got, err := HotellingT2(mat.NewVecDense(2, []float64{2, -3}), mat.NewVecDense(2, []float64{4, 9}))
	require.NoError(t, err)
	assert.InDelta(t, 1+1, got, tolerance)

	_, err = HotellingT2(mat.NewVecDense(2, []float64{1, 1}), mat.NewVecDense(2, []float64{1, 0}))
	assert.ErrorIs(t, err, qcerr.ErrNumeric)

	_, err = HotellingT2(mat.NewVecDense(2, []float64{1, 1}), mat.NewVecDense(2, []float64{1, -2}))
	assert.ErrorIs(t, err, qcerr.ErrNumeric)

	_, err = HotellingT2(mat.NewVecDense(1, []float64{1}), mat.NewVecDense(2, []float64{1, 1}))
	assert.ErrorIs(t, err, qcerr.ErrDimension)
}

func TestResidual_DimensionMismatch(t *testing.T) {
	p := mat.NewDense(3, 2, nil)
	_, err := Residual(p, mat.NewVecDense(2, nil), mat.NewVecDense(2, nil))
	assert.ErrorIs(t, err, qcerr.ErrDimension)
	_, err = Residual(p, mat.NewVecDense(3, nil), mat.NewVecDense(1, nil))
	assert.ErrorIs(t, err, qcerr.ErrDimension)
}

func TestDiagnose_InSubspaceHasZeroQ(t *testing.T) {
	m, err := model.New(testutil.RandomArtifact(11, 24, 3))
	require.NoError(t, err)

	// x = t P^T lies in the span of the loadings; choose t, build x, then
	// check the residual against that same t.
	tt := mat.NewVecDense(3, []float64{0.7, -1.2, 2.5})
	x := mat.NewVecDense(24, nil)
	x.MulVec(m.Loadings(), tt)

	r, err := Residual(m.Loadings(), x, tt)
	require.NoError(t, err)
	assert.InDelta(t, 0, mat.Dot(r, r), 1e-24)
}

// T2 is a sum of (t_i / sqrt(v_i))^2 and Q a sum of r_j^2, so both are
// non-negative whenever v > 0. Check the identities themselves, not only
// the sign, over many random models and samples.
func TestDiagnose_NonNegativeBySumOfSquares(t *testing.T) {
	for seed := uint64(1); seed <= 25; seed++ {
		m, err := model.New(testutil.RandomArtifact(seed, 20, 1+int(seed%4)))
		require.NoError(t, err)

		pre := testutil.Spectrum(seed, 20)
		for i := range pre {
			pre[i] = (pre[i] - 0.5) * 40
		}

		s, err := Score(m, pre)
		require.NoError(t, err)
		d, err := Diagnose(m, s.X, s.T)
		require.NoError(t, err)

		var t2, q float64
		v := m.ScoreVariance()
		for i := range s.T.Len() {
			z := s.T.AtVec(i) / math.Sqrt(v.AtVec(i))
			t2 += z * z
		}
		for j := range d.Residual.Len() {
			q += d.Residual.AtVec(j) * d.Residual.AtVec(j)
		}

		assert.InEpsilon(t, t2, d.T2, 1e-9)
		assert.InDelta(t, q, d.Q, 1e-9*math.Max(1, q))
		assert.GreaterOrEqual(t, d.T2, 0.0)
		assert.GreaterOrEqual(t, d.Q, 0.0)
	}
}

func TestScore_Reproducible(t *testing.T) {
	m, err := model.New(testutil.RandomArtifact(3, 32, 2))
	require.NoError(t, err)
	pre := testutil.Spectrum(3, 32)

	s1, err := Score(m, pre)
	require.NoError(t, err)
	d1, err := Diagnose(m, s1.X, s1.T)
	require.NoError(t, err)

	s2, err := Score(m, pre)
	require.NoError(t, err)
	d2, err := Diagnose(m, s2.X, s2.T)
	require.NoError(t, err)

	assert.Equal(t, s1.Prediction, s2.Prediction)
	assert.Equal(t, d1.T2, d2.T2)
	assert.Equal(t, d1.Q, d2.Q)
}

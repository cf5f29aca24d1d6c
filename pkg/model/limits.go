package model

import (
	"math"

	"github.com/mchmarny/specqc/pkg/qcerr"
	"gonum.org/v1/gonum/stat/distuv"
)

// AlphaDefault is the significance level used when the artifact has none.
const AlphaDefault = 0.05

// Limits are the upper control limits for T2 and Q. A zero limit is
// unknown and never flags a sample.
type Limits struct {
	Alpha float64 `json:"alpha" yaml:"alpha"`
	T2    float64 `json:"t2" yaml:"t2"`
	Q     float64 `json:"q" yaml:"q"`
}

// T2Exceeded reports whether t2 is above a known T2 limit.
func (l Limits) T2Exceeded(t2 float64) bool {
	return l.T2 > 0 && t2 > l.T2
}

// QExceeded reports whether q is above a known Q limit.
func (l Limits) QExceeded(q float64) bool {
	return l.Q > 0 && q > l.Q
}

func deriveLimits(s LimitSpec, k, n int) (Limits, error) {
	l := Limits{Alpha: s.Alpha}
	if l.Alpha == 0 {
		l.Alpha = AlphaDefault
	}
	if !(l.Alpha > 0 && l.Alpha < 1) {
		return Limits{}, qcerr.Validation("limits", "alpha must be in (0, 1), got %v", s.Alpha)
	}
	if s.T2 < 0 || s.Q < 0 || s.QMean < 0 || s.QVar < 0 {
		return Limits{}, qcerr.Validation("limits", "limits and training statistics must not be negative")
	}

	l.T2 = s.T2
	if l.T2 == 0 && n > k+1 {
		l.T2 = T2Limit(k, n, l.Alpha)
	}

	l.Q = s.Q
	if l.Q == 0 && s.QMean > 0 && s.QVar > 0 {
		l.Q = QLimit(s.QMean, s.QVar, l.Alpha)
	}

	return l, nil
}

// T2Limit is the Hotelling T2 upper limit for a new observation given k
// components and n training samples:
//
//	k(n-1)(n+1) / (n(n-k)) * F(1-alpha; k, n-k)
func T2Limit(k, n int, alpha float64) float64 {
	if k < 1 || n <= k {
		return 0
	}
	kf, nf := float64(k), float64(n)
	f := fQuantile(1-alpha, kf, nf-kf)
	return kf * (nf - 1) * (nf + 1) / (nf * (nf - kf)) * f
}

// QLimit is Box's approximation of the Q upper limit from the mean and
// variance of the training Q statistic: g * chi2(1-alpha; h) with
// g = var/(2 mean) and h = 2 mean^2/var.
func QLimit(mean, variance, alpha float64) float64 {
	if mean <= 0 || variance <= 0 {
		return 0
	}
	g := variance / (2 * mean)
	h := 2 * mean * mean / variance
	return g * distuv.ChiSquared{K: h}.Quantile(1-alpha)
}

// fQuantile inverts the F distribution through its Beta relation:
// X ~ Beta(d1/2, d2/2) gives d2 X / (d1 (1 - X)) ~ F(d1, d2).
func fQuantile(p, d1, d2 float64) float64 {
	x := distuv.Beta{Alpha: d1 / 2, Beta: d2 / 2}.Quantile(p)
	if x >= 1 {
		return math.Inf(1)
	}
	return d2 * x / (d1 * (1 - x))
}

package spectrum

import (
	"math"

	"github.com/mchmarny/specqc/pkg/qcerr"
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Edge selects how the derivative filter treats the first and last
// Window/2 samples.
type Edge string

const (
	// EdgeInterp keeps the input length; edge samples come from a
	// polynomial fitted to the first/last window.
	EdgeInterp Edge = "interp"
	// EdgeValid keeps only fully overlapping windows (n - window + 1).
	EdgeValid Edge = "valid"
)

const (
	WindowDefault = 7
	OrderDefault  = 2
	DerivDefault  = 1
)

// Params are the preprocessing settings a model was trained against.
type Params struct {
	Window int  `json:"window" yaml:"window"`
	Order  int  `json:"order" yaml:"order"`
	Deriv  int  `json:"deriv" yaml:"deriv"`
	Edge   Edge `json:"edge" yaml:"edge"`
}

// DefaultParams returns window 7, order 2, first derivative, interp edges.
func DefaultParams() Params {
	return Params{
		Window: WindowDefault,
		Order:  OrderDefault,
		Deriv:  DerivDefault,
		Edge:   EdgeInterp,
	}
}

// WithDefaults fills in the filter when none was given (Window 0) and
// the edge mode when it is empty. Once Window is set, Order and Deriv are
// taken as given, so 0 stays a valid order or derivative.
func (p Params) WithDefaults() Params {
	d := DefaultParams()
	if p.Window == 0 {
		p.Window = d.Window
		p.Order = d.Order
		p.Deriv = d.Deriv
	}
	if p.Edge == "" {
		p.Edge = d.Edge
	}
	return p
}

// Validate checks the filter settings themselves, not any input.
func (p Params) Validate() error {
	if p.Window < 1 || p.Window%2 == 0 {
		return qcerr.Validation("params", "window must be a positive odd number, got %d", p.Window)
	}
	if p.Order < 0 || p.Order >= p.Window {
		return qcerr.Validation("params", "order must be in [0, %d), got %d", p.Window, p.Order)
	}
	if p.Deriv < 0 || p.Deriv > p.Order {
		return qcerr.Validation("params", "deriv must be in [0, %d], got %d", p.Order, p.Deriv)
	}
	if p.Edge != EdgeInterp && p.Edge != EdgeValid {
		return qcerr.Validation("params", "unknown edge mode %q", p.Edge)
	}
	return nil
}

// OutputLength is the preprocessed length for a raw spectrum of n samples.
func (p Params) OutputLength(n int) int {
	if p.Edge == EdgeValid {
		return n - p.Window + 1
	}
	return n
}

// InputLength is the raw length that yields n preprocessed features.
func (p Params) InputLength(n int) int {
	if p.Edge == EdgeValid {
		return n + p.Window - 1
	}
	return n
}

// Preprocess applies SNV normalization followed by the Savitzky-Golay
// derivative. It does not modify s.
func Preprocess(s *Spectrum, p Params) ([]float64, error) {
	if s == nil {
		return nil, qcerr.Validation("preprocess", "nil spectrum")
	}
	norm, err := SNV(s.Values)
	if err != nil {
		return nil, err
	}
	return SavitzkyGolay(norm, p)
}

// SNV returns (v - mean(v)) / std(v) using the population standard
// deviation of v itself.
func SNV(v []float64) ([]float64, error) {
	if len(v) == 0 {
		return nil, qcerr.Validation("snv", "empty spectrum")
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, qcerr.Numeric("snv", "non-finite intensity at index %d", i)
		}
	}

	// a constant signal has no spread; its computed sd need not be exactly 0
	if floats.Min(v) == floats.Max(v) {
		return nil, qcerr.Numeric("snv", "zero standard deviation (constant signal)")
	}

	mean, err := stats.Mean(v)
	if err != nil {
		return nil, qcerr.Numeric("snv", "mean: %v", err)
	}
	sd, err := stats.StandardDeviationPopulation(v)
	if err != nil {
		return nil, qcerr.Numeric("snv", "standard deviation: %v", err)
	}
	if sd == 0 || math.IsNaN(sd) {
		return nil, qcerr.Numeric("snv", "zero standard deviation (constant signal)")
	}
	if math.IsInf(sd, 0) || math.IsInf(mean, 0) {
		return nil, qcerr.Numeric("snv", "intensities overflow the standard deviation")
	}

	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = (x - mean) / sd
	}
	return out, nil
}

// SavitzkyGolay smooths/differentiates v with a least-squares polynomial
// filter. Sample spacing is 1.
func SavitzkyGolay(v []float64, p Params) ([]float64, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := len(v)
	if n < p.Window {
		return nil, qcerr.Validation("savgol", "spectrum length %d is shorter than window %d", n, p.Window)
	}

	h, err := savgolCoeffs(p.Window, p.Order, p.Deriv)
	if err != nil {
		return nil, err
	}

	half := p.Window / 2
	interior := make([]float64, n-p.Window+1)
	for i := range interior {
		interior[i] = floats.Dot(h, v[i:i+p.Window])
	}

	if p.Edge == EdgeValid {
		return interior, nil
	}

	out := make([]float64, n)
	copy(out[half:], interior)

	left, err := fitEdge(v[:p.Window], p.Order, p.Deriv, 0, half)
	if err != nil {
		return nil, err
	}
	copy(out, left)

	right, err := fitEdge(v[n-p.Window:], p.Order, p.Deriv, half+1, p.Window)
	if err != nil {
		return nil, err
	}
	copy(out[n-half:], right)

	return out, nil
}

// savgolCoeffs returns the correlation kernel h such that
// y[i] = sum_j h[j] * v[i-half+j] is the deriv-th derivative at the window
// center of the order-degree least-squares polynomial.
func savgolCoeffs(window, order, deriv int) ([]float64, error) {
	half := window / 2
	a := mat.NewDense(window, order+1, nil)
	for r := range window {
		pos := float64(r - half)
		for c := 0; c <= order; c++ {
			a.Set(r, c, math.Pow(pos, float64(c)))
		}
	}

	eye := mat.NewDense(window, window, nil)
	for i := range window {
		eye.Set(i, i, 1)
	}

	// rows of the pseudo-inverse map samples to polynomial coefficients
	var pinv mat.Dense
	if err := pinv.Solve(a, eye); err != nil {
		return nil, qcerr.Numeric("savgol", "solving filter coefficients: %v", err)
	}

	scale := factorial(deriv)
	h := make([]float64, window)
	for j := range window {
		h[j] = pinv.At(deriv, j) * scale
	}
	return h, nil
}

// fitEdge fits an order-degree polynomial to seg (positions 0..len-1) and
// returns its deriv-th derivative evaluated at positions [from, to).
func fitEdge(seg []float64, order, deriv, from, to int) ([]float64, error) {
	w := len(seg)
	a := mat.NewDense(w, order+1, nil)
	for r := range w {
		for c := 0; c <= order; c++ {
			a.Set(r, c, math.Pow(float64(r), float64(c)))
		}
	}
	b := mat.NewVecDense(w, append([]float64(nil), seg...))

	var coef mat.VecDense
	if err := coef.SolveVec(a, b); err != nil {
		return nil, qcerr.Numeric("savgol", "fitting edge polynomial: %v", err)
	}

	out := make([]float64, 0, to-from)
	for pos := from; pos < to; pos++ {
		var y float64
		for c := deriv; c <= order; c++ {
			// d^k/dx^k of x^c = c!/(c-k)! x^(c-k)
			y += coef.AtVec(c) * factorial(c) / factorial(c-deriv) * math.Pow(float64(pos), float64(c-deriv))
		}
		out = append(out, y)
	}
	return out, nil
}

func factorial(n int) float64 {
	f := 1.0
	for i := 2; i <= n; i++ {
		f *= float64(i)
	}
	return f
}

// Package testutil provides deterministic model and spectrum fixtures for
// tests.
package testutil

import (
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/mchmarny/specqc/pkg/model"
	"github.com/mchmarny/specqc/pkg/spectrum"
)

// IdentityArtifact is the two-feature, two-component model with zero
// mean, unit std, identity weights/loadings and unit score variance.
func IdentityArtifact() *model.Artifact {
	return &model.Artifact{
		Name:          "identity",
		Target:        "brix",
		Preprocessing: spectrum.Params{Window: 7, Order: 2, Deriv: 1, Edge: spectrum.EdgeValid},
		XMean:         []float64{0, 0},
		XStd:          []float64{1, 1},
		XWeights:      [][]float64{{1, 0}, {0, 1}},
		XLoadings:     [][]float64{{1, 0}, {0, 1}},
		Coef:          []float64{0.5, 0.25},
		Intercept:     10,
		ScoreVariance: []float64{1, 1},
	}
}

// RandomArtifact returns a valid model with the given dimensions whose
// parameters are drawn from a seeded generator.
func RandomArtifact(seed uint64, features, k int) *model.Artifact {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	a := &model.Artifact{
		Name:          fmt.Sprintf("random-%d", seed),
		Target:        "brix",
		Preprocessing: spectrum.DefaultParams(),
		XMean:         make([]float64, features),
		XStd:          make([]float64, features),
		XWeights:      make([][]float64, features),
		XLoadings:     make([][]float64, features),
		YLoadings:     make([]float64, k),
		Intercept:     rng.Float64() * 10,
		ScoreVariance: make([]float64, k),
		NTrain:        40,
	}

	for i := range features {
		a.XMean[i] = rng.NormFloat64() * 0.1
		a.XStd[i] = 0.05 + rng.Float64()
		a.XWeights[i] = make([]float64, k)
		a.XLoadings[i] = make([]float64, k)
		for j := range k {
			a.XWeights[i][j] = rng.NormFloat64() / math.Sqrt(float64(features))
			a.XLoadings[i][j] = rng.NormFloat64() / math.Sqrt(float64(features))
		}
	}
	for j := range k {
		a.YLoadings[j] = rng.NormFloat64()
		a.ScoreVariance[j] = 0.1 + rng.Float64()*5
	}
	return a
}

// Spectrum returns a deterministic absorbance-like signal of n channels.
func Spectrum(seed uint64, n int) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	out := make([]float64, n)
	for i := range out {
		x := float64(i) / float64(n)
		out[i] = 0.4 + 0.3*x + 0.2*math.Exp(-math.Pow((x-0.45)/0.08, 2)) + 0.01*rng.NormFloat64()
	}
	return out
}

// WriteCSV writes values as a headerless two-column spectrum file
// (channel, intensity) and returns its path.
func WriteCSV(dir, name string, values []float64) (string, error) {
	var b strings.Builder
	for i, v := range values {
		fmt.Fprintf(&b, "%d,%g\n", 900+2*i, v)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(b.String()), 0600); err != nil {
		return "", fmt.Errorf("writing %s: %w", p, err)
	}
	return p, nil
}

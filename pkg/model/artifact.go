package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/mchmarny/specqc/pkg/net"
	"github.com/mchmarny/specqc/pkg/spectrum"
	"gopkg.in/yaml.v3"
)

const (
	fileMode = 0600

	formatJSON = "json"
	formatYAML = "yaml"
)

// Artifact is the portable on-disk form of a trained PLS model.
//
// Shapes, with L' the preprocessed feature count and k the number of
// latent components:
//
//	x_mean, x_std          [L']
//	x_weights, x_loadings  [L'][k] (row per feature)
//	coef                   [L']   regression over standardized x, or
//	y_loadings             [k]    regression over latent scores
//	score_variance         [k]
//
// Exactly one of coef and y_loadings must be set.
type Artifact struct {
	Name          string          `json:"name,omitempty" yaml:"name,omitempty"`
	Target        string          `json:"target,omitempty" yaml:"target,omitempty"`
	RawLength     int             `json:"raw_length,omitempty" yaml:"raw_length,omitempty"`
	Preprocessing spectrum.Params `json:"preprocessing" yaml:"preprocessing"`
	XMean         []float64       `json:"x_mean" yaml:"x_mean"`
	XStd          []float64       `json:"x_std" yaml:"x_std"`
	XWeights      [][]float64     `json:"x_weights" yaml:"x_weights"`
	XLoadings     [][]float64     `json:"x_loadings" yaml:"x_loadings"`
	Coef          []float64       `json:"coef,omitempty" yaml:"coef,omitempty"`
	YLoadings     []float64       `json:"y_loadings,omitempty" yaml:"y_loadings,omitempty"`
	Intercept     float64         `json:"intercept" yaml:"intercept"`
	ScoreVariance []float64       `json:"score_variance" yaml:"score_variance"`
	NTrain        int             `json:"n_train,omitempty" yaml:"n_train,omitempty"`
	Limits        LimitSpec       `json:"limits,omitempty" yaml:"limits,omitempty"`
}

// LimitSpec carries either explicit control limits or the training
// statistics they are derived from. Zero means absent.
type LimitSpec struct {
	Alpha float64 `json:"alpha,omitempty" yaml:"alpha,omitempty"`
	T2    float64 `json:"t2,omitempty" yaml:"t2,omitempty"`
	Q     float64 `json:"q,omitempty" yaml:"q,omitempty"`
	QMean float64 `json:"q_mean,omitempty" yaml:"q_mean,omitempty"`
	QVar  float64 `json:"q_var,omitempty" yaml:"q_var,omitempty"`
}

// Load reads a model artifact from a file path or an http(s) URL and
// returns the validated model.
func Load(src string) (*TrainedModel, error) {
	a, err := LoadArtifact(src)
	if err != nil {
		return nil, err
	}

	m, err := New(a)
	if err != nil {
		return nil, fmt.Errorf("invalid model %s: %w", src, err)
	}
	return m, nil
}

// LoadArtifact reads and decodes an artifact without validating it.
func LoadArtifact(src string) (*Artifact, error) {
	if src == "" {
		return nil, fmt.Errorf("model path required")
	}

	path := src
	if isURL(src) {
		dir, err := os.MkdirTemp("", "specqc-model-")
		if err != nil {
			return nil, fmt.Errorf("creating temp dir: %w", err)
		}
		defer os.RemoveAll(dir)

		u, err := url.Parse(src)
		if err != nil {
			return nil, fmt.Errorf("parsing model url %s: %w", src, err)
		}

		path = filepath.Join(dir, "model"+filepath.Ext(u.Path))
		if err := net.Download(src, path); err != nil {
			return nil, fmt.Errorf("downloading model %s: %w", src, err)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model %s: %w", src, err)
	}

	a, err := Decode(bytes.NewReader(b), formatOf(path))
	if err != nil {
		return nil, fmt.Errorf("decoding model %s: %w", src, err)
	}
	return a, nil
}

// Decode parses an artifact in the given format ("json" or "yaml").
func Decode(r io.Reader, format string) (*Artifact, error) {
	var a Artifact
	switch format {
	case formatYAML:
		if err := yaml.NewDecoder(r).Decode(&a); err != nil {
			return nil, fmt.Errorf("yaml: %w", err)
		}
	default:
		d := json.NewDecoder(r)
		d.DisallowUnknownFields()
		if err := d.Decode(&a); err != nil {
			return nil, fmt.Errorf("json: %w", err)
		}
	}
	return &a, nil
}

// Save writes the artifact to path, choosing the format from its extension.
func Save(path string, a *Artifact) error {
	if a == nil {
		return fmt.Errorf("artifact required")
	}

	var b []byte
	var err error
	if formatOf(path) == formatYAML {
		b, err = yaml.Marshal(a)
	} else {
		b, err = json.MarshalIndent(a, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encoding model: %w", err)
	}

	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("writing model %s: %w", path, err)
	}
	return nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatJSON
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

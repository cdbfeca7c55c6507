package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// ErrFeatureCount is returned when a feature vector does not match the
// model's input width.
var ErrFeatureCount = errors.New("feature count mismatch")

// Predictor is a fitted binary classifier. PredictProba returns
// [P(no whiff), P(whiff)].
type Predictor interface {
	PredictProba(features []float64) ([2]float64, error)
}

// Model is a Predictor that also names its ordered inputs.
type Model interface {
	Predictor
	FeatureNames() []string
}

// Logistic is a fitted logistic regression.
type Logistic struct {
	Features     []string  `json:"features"`
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

func (m *Logistic) FeatureNames() []string { return m.Features }

func (m *Logistic) PredictProba(x []float64) ([2]float64, error) {
	if len(x) != len(m.Coefficients) {
		return [2]float64{}, fmt.Errorf("logistic: got %d features, want %d: %w", len(x), len(m.Coefficients), ErrFeatureCount)
	}
	p := sigmoid(m.Intercept + dot(m.Coefficients, x))
	return [2]float64{1 - p, p}, nil
}

// Node is one split or leaf of a regression tree. A node with no children is a
// leaf. Samples with x[Feature] < Threshold go left.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Leaf      float64 `json:"leaf"`
}

func (n Node) isLeaf() bool { return n.Left == 0 && n.Right == 0 }

// Tree is a regression tree stored as a flat node array rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t Tree) eval(x []float64) (float64, error) {
	i := 0
	for steps := 0; steps <= len(t.Nodes); steps++ {
		if i < 0 || i >= len(t.Nodes) {
			return 0, fmt.Errorf("tree node %d out of range", i)
		}
		n := t.Nodes[i]
		if n.isLeaf() {
			return n.Leaf, nil
		}
		if n.Feature < 0 || n.Feature >= len(x) {
			return 0, fmt.Errorf("tree splits on feature %d of %d: %w", n.Feature, len(x), ErrFeatureCount)
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return 0, errors.New("tree has a cycle")
}

// Trees is a gradient-boosted tree ensemble with a logistic link: the leaf
// values of every tree are summed onto BaseMargin.
type Trees struct {
	Features   []string `json:"features"`
	BaseMargin float64  `json:"base_margin"`
	Trees      []Tree   `json:"trees"`
}

func (m *Trees) FeatureNames() []string { return m.Features }

func (m *Trees) PredictProba(x []float64) ([2]float64, error) {
	if len(x) != len(m.Features) {
		return [2]float64{}, fmt.Errorf("trees: got %d features, want %d: %w", len(x), len(m.Features), ErrFeatureCount)
	}
	margin := m.BaseMargin
	for i, t := range m.Trees {
		v, err := t.eval(x)
		if err != nil {
			return [2]float64{}, fmt.Errorf("tree %d: %w", i, err)
		}
		margin += v
	}
	p := sigmoid(margin)
	return [2]float64{1 - p, p}, nil
}

type file struct {
	Kind string `json:"kind"`
}

// Parse decodes a model document. The "kind" field selects the model type.
func Parse(data []byte) (Model, error) {
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}

	switch f.Kind {
	case "logistic":
		var m Logistic
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse logistic model: %w", err)
		}
		if len(m.Coefficients) != len(m.Features) {
			return nil, fmt.Errorf("logistic model has %d coefficients for %d features", len(m.Coefficients), len(m.Features))
		}
		return &m, nil
	case "trees":
		var m Trees
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse tree model: %w", err)
		}
		if len(m.Trees) == 0 {
			return nil, errors.New("tree model has no trees")
		}
		return &m, nil
	}
	return nil, fmt.Errorf("unknown model kind %q", f.Kind)
}

// Load reads a model document from disk.
func Load(path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

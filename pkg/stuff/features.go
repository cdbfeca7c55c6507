package stuff

import (
	"fmt"
	"math"

	"github.com/elonfeng/stuffplus/pkg/pitch"
)

var (
	baseFeatures = []string{
		"RelSpeed", "RelHeight", "RelSide", "Extension",
		"InducedVertBreak", "HorzBreak", "AdjustedVAA", "AdjustedHAA",
	}
	diffFeatures = []string{"VeloDiff", "IVBDiff", "HBDiff"}
)

// FeatureNames returns the ordered model inputs for a category.
func FeatureNames(c Category) []string {
	names := make([]string, 0, len(baseFeatures)+len(diffFeatures))
	names = append(names, baseFeatures...)
	if c.Differential() {
		names = append(names, diffFeatures...)
	}
	return names
}

// Derived holds the per-pitch values computed before feature assembly.
type Derived struct {
	AdjVAA float64
	AdjHAA float64
	StdHB  float64
}

// Features is an assembled model input.
type Features struct {
	Category Category
	Values   []float64
	// Diff is the pitch's shape minus the primary fastball's; nil for the
	// fastball model.
	Diff *Shape
}

// Build assembles the feature vector for cat. primary is required for the
// breaking-ball and offspeed models.
func Build(rec *pitch.Record, cat Category, d Derived, primary *Shape) (Features, error) {
	if missing := rec.Missing(); len(missing) > 0 {
		return Features{}, fmt.Errorf("missing %v: %w", missing, ErrIncompleteInput)
	}

	values := []float64{
		rec.RelSpeed, rec.RelHeight, rec.RelSide, rec.Extension,
		rec.IVB, d.StdHB, d.AdjVAA, d.AdjHAA,
	}
	f := Features{Category: cat, Values: values}
	if !cat.Differential() {
		return f, nil
	}

	if primary == nil {
		return Features{}, fmt.Errorf("%s pitch needs a primary fastball: %w", rec.Type, ErrIncompleteInput)
	}
	if !finite(primary.Velocity) || !finite(primary.IVB) || !finite(primary.HB) {
		return Features{}, fmt.Errorf("primary fastball shape incomplete: %w", ErrIncompleteInput)
	}

	diff := Shape{
		Velocity: rec.RelSpeed - primary.Velocity,
		IVB:      rec.IVB - primary.IVB,
		HB:       d.StdHB - primary.HB,
	}
	f.Values = append(f.Values, diff.Velocity, diff.IVB, diff.HB)
	f.Diff = &diff
	return f, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

package stuff

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/rs/zerolog"

	"github.com/elonfeng/stuffplus/pkg/model"
	"github.com/elonfeng/stuffplus/pkg/pitch"
	"github.com/elonfeng/stuffplus/pkg/reference"
)

var (
	// ErrIncompleteInput means a required measurement is missing or non-numeric.
	ErrIncompleteInput = errors.New("incomplete input")
	// ErrScoring means the category model rejected the feature vector.
	ErrScoring = errors.New("scoring error")
)

// Coordinate is the plate location used to pick baseline buckets.
type Coordinate struct {
	Height float64
	Side   float64
}

// ZoneCenter is the middle of the strike zone, used when a pitch has no
// measured plate location.
var ZoneCenter = Coordinate{Height: 2.5, Side: 0}

// ScoredPitch is a record with its derived features and Stuff+.
type ScoredPitch struct {
	pitch.Record
	Category    Category   `json:"category"`
	PrimaryType pitch.Type `json:"primary_type,omitempty"`
	AdjVAA      float64    `json:"adj_vaa"`
	AdjHAA      float64    `json:"adj_haa"`
	StdHB       float64    `json:"std_hb"`
	Diff        *Shape     `json:"diff,omitempty"`
	Probability float64    `json:"whiff_probability"`
	Index       float64    `json:"index"`
	StuffPlus   int        `json:"stuff_plus"`
}

// Engine scores pitches against the reference tables and category models
// loaded for a run. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	ref        *reference.Store
	categories map[Category]Descriptor
	center     Coordinate
	log        zerolog.Logger
}

// NewEngine builds an engine from the baseline tables and one descriptor per
// category. Predictors that name their inputs must match FeatureNames.
func NewEngine(ref *reference.Store, descriptors []Descriptor, log zerolog.Logger) (*Engine, error) {
	cats := make(map[Category]Descriptor, len(descriptors))
	for _, d := range descriptors {
		if d.Predictor == nil {
			return nil, fmt.Errorf("category %s: no model", d.Category)
		}
		if d.AvgWhiffRate <= 0 {
			return nil, fmt.Errorf("category %s: average whiff rate must be positive", d.Category)
		}
		if m, ok := d.Predictor.(model.Model); ok {
			if want := FeatureNames(d.Category); !slices.Equal(m.FeatureNames(), want) {
				return nil, fmt.Errorf("category %s: model features %v, want %v", d.Category, m.FeatureNames(), want)
			}
		}
		cats[d.Category] = d
	}
	for _, c := range Categories() {
		if _, ok := cats[c]; !ok {
			return nil, fmt.Errorf("category %s: not configured", c)
		}
	}
	return &Engine{ref: ref, categories: cats, center: ZoneCenter, log: log}, nil
}

// SetZoneCenter changes the plate location used for hand-entered pitches.
// Call it before the engine is shared.
func (e *Engine) SetZoneCenter(c Coordinate) {
	e.center = c
}

// Derive standardizes horizontal break and adjusts both approach angles
// against the baselines at the given plate location. A missing table or an
// unmatched bucket leaves the angle unadjusted.
func (e *Engine) Derive(rec *pitch.Record, at Coordinate) Derived {
	return Derived{
		AdjVAA: e.adjust(rec, reference.VAA, rec.VAA, at.Height),
		AdjHAA: e.adjust(rec, reference.HAA, rec.HAA, at.Side),
		StdHB:  pitch.StandardizeBreak(rec.HB, rec.Throws),
	}
}

func (e *Engine) adjust(rec *pitch.Record, axis reference.Axis, value, coord float64) float64 {
	tbl, err := e.ref.Table(rec.Type, axis, rec.Throws)
	if err != nil {
		e.log.Debug().Err(err).Str("pitcher", rec.Pitcher).Msg("no baseline, angle left unadjusted")
		return value
	}
	adj, err := tbl.Adjust(value, coord)
	if err != nil {
		e.log.Debug().Err(err).Str("pitcher", rec.Pitcher).Msg("coordinate outside baseline buckets, angle left unadjusted")
	}
	return adj
}

// Score routes a record to its category model and computes Stuff+. primary
// may be nil for pitchers without a fastball-family pitch, in which case only
// fastball-model pitches can be scored.
func (e *Engine) Score(rec pitch.Record, primary *Profile, at Coordinate) (ScoredPitch, error) {
	var primaryType pitch.Type
	var primaryShape *Shape
	if primary != nil {
		primaryType = primary.Type
		primaryShape = &primary.Shape
	}
	return e.score(rec, primaryType, primaryShape, at)
}

func (e *Engine) score(rec pitch.Record, primaryType pitch.Type, primary *Shape, at Coordinate) (ScoredPitch, error) {
	cat, err := Route(rec.Type, primaryType)
	if err != nil {
		return ScoredPitch{}, fmt.Errorf("%w: %v", ErrIncompleteInput, err)
	}

	d := e.Derive(&rec, at)
	f, err := Build(&rec, cat, d, primary)
	if err != nil {
		return ScoredPitch{}, err
	}

	prob, err := e.Predict(f)
	if err != nil {
		return ScoredPitch{}, err
	}
	index := Index(prob, e.categories[cat].AvgWhiffRate)

	return ScoredPitch{
		Record:      rec,
		Category:    cat,
		PrimaryType: primaryType,
		AdjVAA:      d.AdjVAA,
		AdjHAA:      d.AdjHAA,
		StdHB:       d.StdHB,
		Diff:        f.Diff,
		Probability: prob,
		Index:       index,
		StuffPlus:   StuffPlus(index),
	}, nil
}

// Predict returns the whiff probability for an assembled feature vector.
func (e *Engine) Predict(f Features) (float64, error) {
	desc, ok := e.categories[f.Category]
	if !ok {
		return 0, fmt.Errorf("category %q: %w", f.Category, ErrScoring)
	}
	if want := len(FeatureNames(f.Category)); len(f.Values) != want {
		return 0, fmt.Errorf("%s vector has %d features, want %d: %w", f.Category, len(f.Values), want, ErrScoring)
	}
	proba, err := desc.Predictor.PredictProba(f.Values)
	if err != nil {
		return 0, fmt.Errorf("%s model: %w: %v", f.Category, ErrScoring, err)
	}
	p := proba[1]
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("%s model returned probability %v: %w", f.Category, p, ErrScoring)
	}
	return p, nil
}

// Index converts a whiff probability to an unrounded Stuff+ value.
func Index(prob, avgWhiffRate float64) float64 {
	return prob / avgWhiffRate * 100
}

// StuffPlus rounds an index to the reported integer.
func StuffPlus(index float64) int {
	return int(math.Round(index))
}

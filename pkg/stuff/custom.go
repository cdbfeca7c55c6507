package stuff

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/elonfeng/stuffplus/pkg/pitch"
)

// CustomPitch is a hand-entered pitch description. Measurements that were not
// supplied are NaN. Primary fastball fields use the same raw horizontal break
// convention as HB.
type CustomPitch struct {
	Type      pitch.Type       `json:"type"`
	Throws    pitch.Handedness `json:"throws"`
	Velocity  float64          `json:"velocity"`
	RelHeight float64          `json:"rel_height"`
	RelSide   float64          `json:"rel_side"`
	Extension float64          `json:"extension"`
	IVB       float64          `json:"ivb"`
	HB        float64          `json:"hb"`
	VAA       float64          `json:"vaa"`
	HAA       float64          `json:"haa"`

	PrimaryType     pitch.Type `json:"primary_type,omitempty"`
	PrimaryVelocity float64    `json:"primary_velocity"`
	PrimaryIVB      float64    `json:"primary_ivb"`
	PrimaryHB       float64    `json:"primary_hb"`
}

// NeedsPrimary reports whether the primary-fastball shape must be supplied.
// Fastballs and sinkers never need it; a cutter does only when the pitcher's
// primary fastball is something else.
func (c CustomPitch) NeedsPrimary() bool {
	switch c.Type {
	case pitch.Fastball, pitch.Sinker:
		return false
	case pitch.Cutter:
		return c.PrimaryType != pitch.Cutter
	}
	return true
}

// Record converts the entry to a pitch record with no plate location.
func (c CustomPitch) Record() pitch.Record {
	return pitch.Record{
		Throws:      c.Throws,
		TaggedType:  string(c.Type),
		Type:        c.Type,
		RelSpeed:    c.Velocity,
		RelHeight:   c.RelHeight,
		RelSide:     c.RelSide,
		Extension:   c.Extension,
		IVB:         c.IVB,
		HB:          c.HB,
		VAA:         c.VAA,
		HAA:         c.HAA,
		PlateHeight: math.NaN(),
		PlateSide:   math.NaN(),
	}
}

// ScoreCustom scores a hand-entered pitch. Approach angles are compared with
// the baselines at the center of the strike zone.
func (e *Engine) ScoreCustom(c CustomPitch) (ScoredPitch, error) {
	if c.Throws != pitch.Left && c.Throws != pitch.Right {
		return ScoredPitch{}, fmt.Errorf("throws %q: %w", c.Throws, ErrIncompleteInput)
	}
	if c.PrimaryType != "" && !c.PrimaryType.FastballFamily() {
		return ScoredPitch{}, fmt.Errorf("primary fastball %q is not a fastball type: %w", c.PrimaryType, ErrIncompleteInput)
	}

	var primary *Shape
	if c.NeedsPrimary() {
		primary = &Shape{
			Velocity: c.PrimaryVelocity,
			IVB:      c.PrimaryIVB,
			HB:       pitch.StandardizeBreak(c.PrimaryHB, c.Throws),
		}
	}
	return e.score(c.Record(), c.PrimaryType, primary, e.center)
}

// ParseMeasurement reads a form value. Blank or non-numeric input is NaN.
func ParseMeasurement(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

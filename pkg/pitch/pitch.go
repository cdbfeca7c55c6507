package pitch

import (
	"fmt"
	"math"
	"strings"
)

// Handedness is the throwing arm of a pitcher.
type Handedness string

const (
	Left  Handedness = "Left"
	Right Handedness = "Right"
)

// ParseHandedness accepts TrackMan's PitcherThrows values ("Left", "Right")
// and the single-letter forms.
func ParseHandedness(s string) (Handedness, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left", "l":
		return Left, nil
	case "right", "r":
		return Right, nil
	}
	return "", fmt.Errorf("unknown handedness %q", s)
}

// Type is a canonical pitch type label.
type Type string

const (
	Fastball    Type = "Fastball"
	Sinker      Type = "Sinker"
	Cutter      Type = "Cutter"
	Slider      Type = "Slider"
	Curveball   Type = "Curveball"
	ChangeUp    Type = "ChangeUp"
	Splitter    Type = "Splitter"
	Knuckleball Type = "Knuckleball"
)

// AllTypes returns every canonical pitch type.
func AllTypes() []Type {
	return []Type{Fastball, Sinker, Cutter, Slider, Curveball, ChangeUp, Splitter, Knuckleball}
}

// FastballFamily reports whether t is a candidate for a pitcher's primary fastball.
func (t Type) FastballFamily() bool {
	return t == Fastball || t == Sinker || t == Cutter
}

// NormalizeType maps a tagged pitch type to its canonical label. Four-seam and
// one-seam fastballs collapse to Fastball and two-seamers to Sinker. Other,
// Undefined and unknown labels return false.
func NormalizeType(tagged string) (Type, bool) {
	switch strings.TrimSpace(tagged) {
	case "Fastball", "FourSeamFastBall", "OneSeamFastBall":
		return Fastball, true
	case "Sinker", "TwoSeamFastBall":
		return Sinker, true
	case "Cutter":
		return Cutter, true
	case "Slider":
		return Slider, true
	case "Curveball":
		return Curveball, true
	case "ChangeUp", "Changeup":
		return ChangeUp, true
	case "Splitter":
		return Splitter, true
	case "Knuckleball":
		return Knuckleball, true
	}
	return "", false
}

// Record is one pitch as measured by the tracking system or entered by hand.
// Missing or non-numeric measurements are NaN.
type Record struct {
	Date       string     `json:"date,omitempty"`
	Pitcher    string     `json:"pitcher"`
	Team       string     `json:"team"`
	Throws     Handedness `json:"throws"`
	TaggedType string     `json:"tagged_type"`
	Type       Type       `json:"type"`
	PitchCall  string     `json:"pitch_call,omitempty"`
	PlayResult string     `json:"play_result,omitempty"`

	RelSpeed    float64 `json:"rel_speed"`
	RelHeight   float64 `json:"rel_height"`
	RelSide     float64 `json:"rel_side"`
	Extension   float64 `json:"extension"`
	IVB         float64 `json:"ivb"`
	HB          float64 `json:"hb"`
	PlateHeight float64 `json:"plate_height"`
	PlateSide   float64 `json:"plate_side"`
	VAA         float64 `json:"vaa"`
	HAA         float64 `json:"haa"`

	Level              string `json:"level,omitempty"`
	ReleaseConfidence  string `json:"release_confidence,omitempty"`
	LocationConfidence string `json:"location_confidence,omitempty"`
	MovementConfidence string `json:"movement_confidence,omitempty"`
}

// Whiff reports whether the pitch drew a swinging strike.
func (r *Record) Whiff() bool {
	return r.PitchCall == "StrikeSwinging"
}

// Missing returns the names of the shape measurements the models need that
// are absent from the record.
func (r *Record) Missing() []string {
	var missing []string
	check := func(name string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			missing = append(missing, name)
		}
	}
	check("RelSpeed", r.RelSpeed)
	check("RelHeight", r.RelHeight)
	check("RelSide", r.RelSide)
	check("Extension", r.Extension)
	check("InducedVertBreak", r.IVB)
	check("HorzBreak", r.HB)
	check("VertApprAngle", r.VAA)
	check("HorzApprAngle", r.HAA)
	return missing
}

// StandardizeBreak expresses horizontal break in a handedness-invariant frame:
// left-handers are mirrored, right-handers pass through.
func StandardizeBreak(hb float64, throws Handedness) float64 {
	if throws == Left {
		return -hb
	}
	return hb
}

package stuff

import (
	"fmt"

	"github.com/elonfeng/stuffplus/pkg/model"
	"github.com/elonfeng/stuffplus/pkg/pitch"
)

// Category selects which trained model scores a pitch.
type Category string

const (
	CategoryFastball Category = "fastball"
	CategoryBreaking Category = "breaking"
	CategoryOffspeed Category = "offspeed"
)

// Categories returns the model categories in a fixed order.
func Categories() []Category {
	return []Category{CategoryFastball, CategoryBreaking, CategoryOffspeed}
}

// ParseCategory accepts the long names and the fb/bb/os short forms.
func ParseCategory(s string) (Category, error) {
	switch s {
	case "fastball", "fb":
		return CategoryFastball, nil
	case "breaking", "bb":
		return CategoryBreaking, nil
	case "offspeed", "os":
		return CategoryOffspeed, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Differential reports whether the category's model takes the three
// primary-fastball differential features.
func (c Category) Differential() bool {
	return c != CategoryFastball
}

// DefaultWhiffRates are the training-set average whiff rates per category.
var DefaultWhiffRates = map[Category]float64{
	CategoryFastball: 0.2717,
	CategoryBreaking: 0.4273,
	CategoryOffspeed: 0.4239,
}

// Descriptor is everything the scoring pipeline needs to know about a category.
type Descriptor struct {
	Category     Category
	Predictor    model.Predictor
	AvgWhiffRate float64
}

// Route assigns a pitch type to a model category. Cutters are scored with the
// fastball model only when the pitcher's primary fastball is also a cutter.
func Route(t pitch.Type, primary pitch.Type) (Category, error) {
	switch t {
	case pitch.Fastball, pitch.Sinker:
		return CategoryFastball, nil
	case pitch.Cutter:
		if primary == pitch.Cutter {
			return CategoryFastball, nil
		}
		return CategoryBreaking, nil
	case pitch.Slider, pitch.Curveball:
		return CategoryBreaking, nil
	case pitch.ChangeUp, pitch.Splitter, pitch.Knuckleball:
		return CategoryOffspeed, nil
	}
	return "", fmt.Errorf("no model category for pitch type %q", t)
}

package source

import (
	"github.com/elonfeng/stuffplus/pkg/pitch"
)

// Default qualifying values.
const (
	DefaultLevel      = "D1"
	DefaultConfidence = "High"
)

// Filter keeps records from the top competition level whose release,
// location and movement measurements are all tagged with high confidence.
type Filter struct {
	level      string
	confidence string
}

// NewFilter creates a filter; empty arguments fall back to the defaults.
func NewFilter(level, confidence string) *Filter {
	if level == "" {
		level = DefaultLevel
	}
	if confidence == "" {
		confidence = DefaultConfidence
	}
	return &Filter{level: level, confidence: confidence}
}

// Qualifies reports whether a record passes the level, confidence and pitch
// type checks.
func (f *Filter) Qualifies(r *pitch.Record) bool {
	if r.Level != f.level {
		return false
	}
	if r.ReleaseConfidence != f.confidence ||
		r.LocationConfidence != f.confidence ||
		r.MovementConfidence != f.confidence {
		return false
	}
	if r.Throws != pitch.Left && r.Throws != pitch.Right {
		return false
	}
	_, ok := pitch.NormalizeType(r.TaggedType)
	return ok
}

// Apply returns the qualifying records with canonical pitch types set.
// The input slice is not modified.
func (f *Filter) Apply(records []pitch.Record) []pitch.Record {
	kept := make([]pitch.Record, 0, len(records))
	for i := range records {
		if !f.Qualifies(&records[i]) {
			continue
		}
		r := records[i]
		r.Type, _ = pitch.NormalizeType(r.TaggedType)
		kept = append(kept, r)
	}
	return kept
}

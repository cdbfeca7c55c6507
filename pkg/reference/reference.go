package reference

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/elonfeng/stuffplus/pkg/pitch"
)

var (
	// ErrMissingReferenceData means no baseline table exists for a key.
	ErrMissingReferenceData = errors.New("missing reference data")
	// ErrUnmatchedBucket means a coordinate falls outside every interval of a table.
	ErrUnmatchedBucket = errors.New("coordinate outside all baseline intervals")
)

// Axis is the approach angle a baseline table describes.
type Axis string

const (
	// VAA tables are binned on plate height.
	VAA Axis = "vaa"
	// HAA tables are binned on plate side and kept per handedness.
	HAA Axis = "haa"
)

// Interval is a half-open bucket [Lower, Upper) with its training-time mean angle.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Mean  float64 `json:"mean"`
}

// Contains reports whether x lies in [Lower, Upper).
func (iv Interval) Contains(x float64) bool {
	return iv.Lower <= x && x < iv.Upper
}

// Key identifies one baseline table. Throws is empty for VAA tables.
type Key struct {
	Type   pitch.Type
	Axis   Axis
	Throws pitch.Handedness
}

func (k Key) String() string {
	if k.Throws == "" {
		return fmt.Sprintf("%s/%s", k.Type, k.Axis)
	}
	return fmt.Sprintf("%s/%s/%s", k.Type, k.Axis, k.Throws)
}

// NewKey builds the table key for a pitch type and axis, dropping handedness
// for the vertical axis.
func NewKey(t pitch.Type, axis Axis, throws pitch.Handedness) Key {
	if axis == VAA {
		throws = ""
	}
	return Key{Type: t, Axis: axis, Throws: throws}
}

// Table is an ordered set of contiguous, non-overlapping intervals.
type Table struct {
	Key       Key
	Intervals []Interval
}

// NewTable sorts the intervals and rejects empty, inverted or overlapping ones.
func NewTable(key Key, intervals []Interval) (*Table, error) {
	ivs := make([]Interval, len(intervals))
	copy(ivs, intervals)
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].Lower < ivs[j].Lower })

	for i, iv := range ivs {
		if !(iv.Lower < iv.Upper) {
			return nil, fmt.Errorf("table %s: empty interval [%g, %g)", key, iv.Lower, iv.Upper)
		}
		if i > 0 && iv.Lower < ivs[i-1].Upper {
			return nil, fmt.Errorf("table %s: interval [%g, %g) overlaps [%g, %g)",
				key, iv.Lower, iv.Upper, ivs[i-1].Lower, ivs[i-1].Upper)
		}
	}
	return &Table{Key: key, Intervals: ivs}, nil
}

// Find returns the interval containing x, or ErrUnmatchedBucket.
func (t *Table) Find(x float64) (Interval, error) {
	// First interval whose upper bound is past x.
	i := sort.Search(len(t.Intervals), func(i int) bool { return t.Intervals[i].Upper > x })
	if i < len(t.Intervals) && t.Intervals[i].Contains(x) {
		return t.Intervals[i], nil
	}
	return Interval{}, fmt.Errorf("%s at %v: %w", t.Key, x, ErrUnmatchedBucket)
}

// Adjust returns value minus the baseline mean of the bucket containing coord.
// A coordinate outside every bucket gets no adjustment: value is returned
// unchanged together with ErrUnmatchedBucket.
func (t *Table) Adjust(value, coord float64) (float64, error) {
	iv, err := t.Find(coord)
	if err != nil {
		return value, err
	}
	return value - iv.Mean, nil
}

// ParseInterval parses an interval label such as "[2.5, 3.0)" or "(-inf, 1.5]".
// Brackets are accepted in either form; the result is always read as [lower, upper).
func ParseInterval(s string) (lower, upper float64, err error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimLeft(trimmed, "[(")
	trimmed = strings.TrimRight(trimmed, "])")

	parts := strings.Split(trimmed, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("parse interval %q: want two bounds", s)
	}
	lower, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse interval %q lower bound: %w", s, err)
	}
	upper, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse interval %q upper bound: %w", s, err)
	}
	return lower, upper, nil
}

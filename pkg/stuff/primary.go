package stuff

import (
	"math"
	"sort"

	"github.com/elonfeng/stuffplus/pkg/pitch"
)

// Shape is the velocity and movement of a pitch, with horizontal break in the
// standardized frame.
type Shape struct {
	Velocity float64 `json:"velocity"`
	IVB      float64 `json:"ivb"`
	HB       float64 `json:"hb"`
}

// Profile is a pitcher's primary fastball: the fastball-family type thrown most
// often and its average shape.
type Profile struct {
	Type  pitch.Type `json:"type"`
	Shape Shape      `json:"shape"`
	Count int        `json:"count"`
}

// PitcherID identifies a pitcher within one record set.
type PitcherID struct {
	Name string
	Team string
}

// ResolvePrimary derives the primary-fastball profile for one pitcher from the
// full record set. Records must already carry canonical pitch types. Equal
// counts resolve alphabetically by type name. Returns false when the pitcher
// threw no fastball-family pitch.
func ResolvePrimary(id PitcherID, records []pitch.Record) (Profile, bool) {
	var own []pitch.Record
	for _, r := range records {
		if r.Pitcher == id.Name && r.Team == id.Team {
			own = append(own, r)
		}
	}
	return resolve(own)
}

// ResolveAll derives a primary-fastball profile for every pitcher in records.
// Pitchers without a fastball-family pitch are absent from the result.
func ResolveAll(records []pitch.Record) map[PitcherID]Profile {
	byPitcher := make(map[PitcherID][]pitch.Record)
	for _, r := range records {
		id := PitcherID{Name: r.Pitcher, Team: r.Team}
		byPitcher[id] = append(byPitcher[id], r)
	}

	profiles := make(map[PitcherID]Profile, len(byPitcher))
	for id, recs := range byPitcher {
		if p, ok := resolve(recs); ok {
			profiles[id] = p
		}
	}
	return profiles
}

func resolve(records []pitch.Record) (Profile, bool) {
	counts := make(map[pitch.Type]int)
	for _, r := range records {
		if r.Type.FastballFamily() {
			counts[r.Type]++
		}
	}
	if len(counts) == 0 {
		return Profile{}, false
	}

	types := make([]pitch.Type, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if counts[types[i]] != counts[types[j]] {
			return counts[types[i]] > counts[types[j]]
		}
		return types[i] < types[j]
	})
	primary := types[0]

	// Means skip missing measurements per field.
	var velo, ivb, hb mean
	for _, r := range records {
		if r.Type != primary {
			continue
		}
		velo.add(r.RelSpeed)
		ivb.add(r.IVB)
		hb.add(pitch.StandardizeBreak(r.HB, r.Throws))
	}

	return Profile{
		Type:  primary,
		Count: counts[primary],
		Shape: Shape{Velocity: velo.value(), IVB: ivb.value(), HB: hb.value()},
	}, true
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) {
	if math.IsNaN(v) {
		return
	}
	m.sum += v
	m.n++
}

func (m *mean) value() float64 {
	if m.n == 0 {
		return math.NaN()
	}
	return m.sum / float64(m.n)
}

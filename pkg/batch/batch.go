package batch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/stuffplus/pkg/pitch"
	"github.com/elonfeng/stuffplus/pkg/source"
	"github.com/elonfeng/stuffplus/pkg/stuff"
)

// Stats counts what happened to the records of one run.
type Stats struct {
	Total      int `json:"total"`
	Qualified  int `json:"qualified"`
	Incomplete int `json:"incomplete"`
	Failed     int `json:"failed"`
	Scored     int `json:"scored"`
}

// Row is the rollup of one pitcher's pitch type.
type Row struct {
	Pitcher   string         `json:"pitcher"`
	Team      string         `json:"team"`
	PitchType pitch.Type     `json:"pitch_type"`
	Category  stuff.Category `json:"category"`
	Pitches   int            `json:"pitches"`
	Velocity  float64        `json:"velocity"`
	RelHeight float64        `json:"rel_height"`
	RelSide   float64        `json:"rel_side"`
	Extension float64        `json:"extension"`
	IVB       float64        `json:"ivb"`
	HB        float64        `json:"hb"`
	VAA       float64        `json:"vaa"`
	HAA       float64        `json:"haa"`
	AdjVAA    float64        `json:"adj_vaa"`
	AdjHAA    float64        `json:"adj_haa"`
	WhiffRate float64        `json:"whiff_rate"`
	StuffPlus int            `json:"stuff_plus"`
}

// Result is the output of one batch run.
type Result struct {
	Stats   Stats               `json:"stats"`
	Pitches []stuff.ScoredPitch `json:"-"`
	Rows    []Row               `json:"rows"`
}

// Aggregator scores a raw record set and rolls it up by pitcher, team and
// pitch type.
type Aggregator struct {
	engine  *stuff.Engine
	filter  *source.Filter
	workers int
	log     zerolog.Logger
}

// NewAggregator creates a new batch aggregator. workers <= 0 uses GOMAXPROCS.
func NewAggregator(engine *stuff.Engine, filter *source.Filter, workers int, log zerolog.Logger) *Aggregator {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if filter == nil {
		filter = source.NewFilter("", "")
	}
	return &Aggregator{engine: engine, filter: filter, workers: workers, log: log}
}

// RunSource collects a source and aggregates it.
func (a *Aggregator) RunSource(ctx context.Context, src source.Source) (*Result, error) {
	records, err := src.Collect(ctx)
	if err != nil {
		return nil, err
	}
	res, err := a.Run(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", src.Name(), err)
	}
	a.log.Info().
		Str("source", src.Name()).
		Int("records", res.Stats.Total).
		Int("scored", res.Stats.Scored).
		Int("groups", len(res.Rows)).
		Msg("batch scored")
	return res, nil
}

type outcome struct {
	pitch stuff.ScoredPitch
	err   error
}

// Run filters, scores and groups records. Records that cannot be scored are
// counted and dropped; only context cancellation fails the run.
func (a *Aggregator) Run(ctx context.Context, records []pitch.Record) (*Result, error) {
	res := &Result{Stats: Stats{Total: len(records)}}

	qualified := a.filter.Apply(records)
	res.Stats.Qualified = len(qualified)

	// Primary fastballs come from the full qualified set before any per-pitch features.
	profiles := stuff.ResolveAll(qualified)

	outcomes := make([]outcome, len(qualified))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i := range qualified {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec := qualified[i]
			var primary *stuff.Profile
			if p, ok := profiles[stuff.PitcherID{Name: rec.Pitcher, Team: rec.Team}]; ok {
				primary = &p
			}
			at := stuff.Coordinate{Height: rec.PlateHeight, Side: rec.PlateSide}
			sp, err := a.engine.Score(rec, primary, at)
			outcomes[i] = outcome{pitch: sp, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, o := range outcomes {
		switch {
		case o.err == nil:
			res.Pitches = append(res.Pitches, o.pitch)
		case errors.Is(o.err, stuff.ErrIncompleteInput):
			res.Stats.Incomplete++
			a.log.Debug().Err(o.err).Str("pitcher", qualified[i].Pitcher).Msg("record dropped")
		default:
			res.Stats.Failed++
			a.log.Warn().Err(o.err).Str("pitcher", qualified[i].Pitcher).Msg("record not scored")
		}
	}
	res.Stats.Scored = len(res.Pitches)
	res.Rows = Group(res.Pitches)
	return res, nil
}

type groupKey struct {
	pitcher string
	team    string
	pt      pitch.Type
}

type accum struct {
	row    Row
	velo   float64
	relH   float64
	relS   float64
	ext    float64
	ivb    float64
	hb     float64
	vaa    float64
	haa    float64
	adjVAA float64
	adjHAA float64
	whiffs float64
	index  float64
}

// Group averages scored pitches per (pitcher, team, pitch type). The group's
// Stuff+ is the mean index truncated to an integer. Rows are sorted by
// pitcher, team and pitch type.
func Group(pitches []stuff.ScoredPitch) []Row {
	groups := make(map[groupKey]*accum)
	for _, p := range pitches {
		k := groupKey{pitcher: p.Pitcher, team: p.Team, pt: p.Type}
		acc, ok := groups[k]
		if !ok {
			acc = &accum{row: Row{Pitcher: p.Pitcher, Team: p.Team, PitchType: p.Type, Category: p.Category}}
			groups[k] = acc
		}
		acc.row.Pitches++
		acc.velo += p.RelSpeed
		acc.relH += p.RelHeight
		acc.relS += p.RelSide
		acc.ext += p.Extension
		acc.ivb += p.IVB
		acc.hb += p.HB
		acc.vaa += p.VAA
		acc.haa += p.HAA
		acc.adjVAA += p.AdjVAA
		acc.adjHAA += p.AdjHAA
		acc.index += p.Index
		if p.Whiff() {
			acc.whiffs++
		}
	}

	rows := make([]Row, 0, len(groups))
	for _, acc := range groups {
		n := float64(acc.row.Pitches)
		r := acc.row
		r.Velocity = acc.velo / n
		r.RelHeight = acc.relH / n
		r.RelSide = acc.relS / n
		r.Extension = acc.ext / n
		r.IVB = acc.ivb / n
		r.HB = acc.hb / n
		r.VAA = acc.vaa / n
		r.HAA = acc.haa / n
		r.AdjVAA = acc.adjVAA / n
		r.AdjHAA = acc.adjHAA / n
		r.WhiffRate = acc.whiffs / n
		r.StuffPlus = int(math.Trunc(acc.index / n))
		rows = append(rows, r)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Pitcher != rows[j].Pitcher {
			return rows[i].Pitcher < rows[j].Pitcher
		}
		if rows[i].Team != rows[j].Team {
			return rows[i].Team < rows[j].Team
		}
		return rows[i].PitchType < rows[j].PitchType
	})
	return rows
}

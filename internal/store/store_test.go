package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/stuffplus/pkg/batch"
	"github.com/elonfeng/stuffplus/pkg/pitch"
	"github.com/elonfeng/stuffplus/pkg/stuff"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "stuffplus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRows() []batch.Row {
	return []batch.Row{
		{Pitcher: "Doe, John", Team: "TEAM_A", PitchType: pitch.Fastball, Category: stuff.CategoryFastball, Pitches: 40, Velocity: 93.2, StuffPlus: 108},
		{Pitcher: "Doe, John", Team: "TEAM_A", PitchType: pitch.Slider, Category: stuff.CategoryBreaking, Pitches: 22, Velocity: 84.1, StuffPlus: 121},
		{Pitcher: "Doe, John", Team: "TEAM_B", PitchType: pitch.ChangeUp, Category: stuff.CategoryOffspeed, Pitches: 9, Velocity: 82.0, StuffPlus: 95},
		{Pitcher: "Roe, Rick", Team: "TEAM_B", PitchType: pitch.Sinker, Category: stuff.CategoryFastball, Pitches: 31, Velocity: 90.5, StuffPlus: 88},
	}
}

func TestLookupPitcher(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.UpsertResults(ctx, ResultsFromRows(sampleRows(), OriginReference, now)))

	results, err := s.LookupPitcher(ctx, "Doe, John", "")
	require.NoError(t, err)
	assert.Len(t, results, 3)

	teams, err := s.Teams(ctx, "Doe, John")
	require.NoError(t, err)
	assert.Equal(t, []string{"TEAM_A", "TEAM_B"}, teams)

	results, err = s.LookupPitcher(ctx, "Doe, John", "TEAM_A")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "fastball", results[0].Category)
	assert.Equal(t, 108, results[0].StuffPlus)

	_, err = s.LookupPitcher(ctx, "doe, john", "")
	assert.True(t, errors.Is(err, ErrNameNotFound), "lookup is case-sensitive")

	_, err = s.LookupPitcher(ctx, "Doe, John", "TEAM_C")
	assert.True(t, errors.Is(err, ErrNameNotFound))
}

func TestUpsertResultsReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rows := sampleRows()[:1]
	require.NoError(t, s.UpsertResults(ctx, ResultsFromRows(rows, OriginReference, time.Now().UTC())))

	rows[0].StuffPlus = 115
	require.NoError(t, s.UpsertResults(ctx, ResultsFromRows(rows, "run-1", time.Now().UTC())))

	results, err := s.LookupPitcher(ctx, "Doe, John", "TEAM_A")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 115, results[0].StuffPlus)
	assert.Equal(t, "run-1", results[0].Origin)
}

func TestRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := s.HasFingerprint(ctx, "fp-1")
	require.NoError(t, err)
	assert.False(t, ok)

	res := &batch.Result{Stats: batch.Stats{Total: 10, Qualified: 8, Incomplete: 1, Scored: 7}, Rows: sampleRows()}
	run := NewRun("game1.csv", "fp-1", res)
	require.NoError(t, s.AddRun(ctx, run))
	assert.NotEmpty(t, run.ID)

	ok, err = s.HasFingerprint(ctx, "fp-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasFingerprint(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok, "runs without a fingerprint never match")

	require.NoError(t, s.AddRun(ctx, &Run{Source: "game2.csv", Total: 3}))

	runs, err := s.ListRuns(ctx, RunListOpts{})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	runs, err = s.ListRuns(ctx, RunListOpts{Source: "game1.csv"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 7, runs[0].Scored)
	assert.Equal(t, 4, runs[0].Groups)
	assert.Equal(t, "fp-1", runs[0].Fingerprint)
}

func TestSaveBatch(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "bare name", src: "game1.csv"},
		{name: "relative path", src: "inbox/game1.csv"},
		{name: "absolute path", src: "/data/trackman/game1.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openTestStore(t)
			ctx := context.Background()
			res := &batch.Result{Stats: batch.Stats{Total: 4, Qualified: 4, Scored: 4}, Rows: sampleRows()}

			run, err := SaveBatch(ctx, s, tt.src, "fp-game1", res)
			require.NoError(t, err)
			assert.Equal(t, "game1.csv", run.Source)

			runs, err := s.ListRuns(ctx, RunListOpts{Source: "game1.csv"})
			require.NoError(t, err)
			require.Len(t, runs, 1)
			assert.Equal(t, run.ID, runs[0].ID)

			ok, err := s.HasFingerprint(ctx, "fp-game1")
			require.NoError(t, err)
			assert.True(t, ok)

			results, err := s.LookupPitcher(ctx, "Roe, Rick", "")
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, run.ID, results[0].Origin)
		})
	}
}

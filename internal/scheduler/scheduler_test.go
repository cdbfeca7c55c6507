package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/stuffplus/internal/store"
	"github.com/elonfeng/stuffplus/pkg/alert"
	"github.com/elonfeng/stuffplus/pkg/batch"
	"github.com/elonfeng/stuffplus/pkg/model"
	"github.com/elonfeng/stuffplus/pkg/reference"
	"github.com/elonfeng/stuffplus/pkg/source"
	"github.com/elonfeng/stuffplus/pkg/stuff"
)

const header = "Date,Pitcher,PitcherTeam,PitcherThrows,TaggedPitchType,PitchCall,PlayResult,RelSpeed,RelHeight,RelSide," +
	"Extension,InducedVertBreak,HorzBreak,PlateLocHeight,PlateLocSide,VertApprAngle,HorzApprAngle,Level," +
	"PitchReleaseConfidence,PitchLocationConfidence,PitchMovementConfidence\n"

const (
	fastballRow = "2024-03-01,\"Doe, John\",TEAM_A,Right,Fastball,StrikeSwinging,Undefined,93,6,-2,6,16,14,2.5,0,-5,1,D1,High,High,High\n"
	sliderRow   = "2024-03-01,\"Doe, John\",TEAM_A,Right,Slider,BallCalled,Undefined,84,6,-2,6,1,-4,2,0.5,-7,0.5,D1,High,High,High\n"
	game        = header + fastballRow + sliderRow
)

// writeAged writes an inbox file and backdates it past the settle window.
func writeAged(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))
}

func openTestStore(t *testing.T, dir string) *store.SQLiteStore {
	t.Helper()
	db, err := store.New(filepath.Join(dir, "stuffplus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testAggregator(t *testing.T) *batch.Aggregator {
	t.Helper()
	var descs []stuff.Descriptor
	for _, c := range stuff.Categories() {
		names := stuff.FeatureNames(c)
		descs = append(descs, stuff.Descriptor{
			Category:     c,
			Predictor:    &model.Logistic{Features: names, Coefficients: make([]float64, len(names))},
			AvgWhiffRate: stuff.DefaultWhiffRates[c],
		})
	}
	engine, err := stuff.NewEngine(reference.NewStore(), descs, zerolog.Nop())
	require.NoError(t, err)
	return batch.NewAggregator(engine, source.NewFilter("D1", "High"), 2, zerolog.Nop())
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	inbox := filepath.Join(dir, "inbox")
	require.NoError(t, os.MkdirAll(inbox, 0o755))
	writeAged(t, filepath.Join(inbox, "game1.csv"), game)
	writeAged(t, filepath.Join(inbox, "notes.txt"), "skip")
	writeAged(t, filepath.Join(inbox, "broken.csv"), "Pitcher\nX\n")

	db := openTestStore(t, dir)

	var alerts []alert.Notification
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n alert.Notification
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&n))
		alerts = append(alerts, n)
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	mgr := alert.NewManager([]alert.Notifier{alert.NewWebhook(hook.URL, "")})
	s := New(db, testAggregator(t), mgr, inbox, 0, time.Minute, zerolog.Nop())

	ctx := context.Background()
	n, err := s.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "broken file is not counted")

	results, err := db.LookupPitcher(ctx, "Doe, John", "TEAM_A")
	require.NoError(t, err)
	assert.Len(t, results, 2)

	runs, err := db.ListRuns(ctx, store.RunListOpts{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "game1.csv", runs[0].Source)
	assert.Equal(t, source.Fingerprint([]byte(game)), runs[0].Fingerprint)
	assert.Equal(t, 2, runs[0].Scored)
	assert.Equal(t, runs[0].ID, results[0].Origin)

	require.Len(t, alerts, 1)
	assert.Equal(t, runs[0].ID, alerts[0].RunID)

	assert.NoFileExists(t, filepath.Join(inbox, "broken.csv"))
	assert.FileExists(t, filepath.Join(inbox, FailedDir, "broken.csv"))

	n, err = s.Scan(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "already processed files are skipped")
	assert.Len(t, alerts, 1)
}

func TestScanPartialWrite(t *testing.T) {
	// Header, one full row and the first half of the next, as a writer
	// flushing mid-export would leave it.
	partial := header + fastballRow + sliderRow[:40]

	tests := []struct {
		name         string
		settled      bool
		firstScan    int
		firstResults int
		runs         int
	}{
		{name: "fresh partial file waits", settled: false, firstScan: 0, firstResults: 0, runs: 1},
		{name: "settled partial file is rescored when completed", settled: true, firstScan: 1, firstResults: 1, runs: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "game1.csv")
			db := openTestStore(t, t.TempDir())
			s := New(db, testAggregator(t), nil, dir, 0, time.Minute, zerolog.Nop())
			ctx := context.Background()

			if tt.settled {
				writeAged(t, path, partial)
			} else {
				require.NoError(t, os.WriteFile(path, []byte(partial), 0o644))
			}

			n, err := s.Scan(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.firstScan, n)

			results, err := db.LookupPitcher(ctx, "Doe, John", "TEAM_A")
			if tt.firstResults == 0 {
				assert.ErrorIs(t, err, store.ErrNameNotFound)
			} else {
				require.NoError(t, err)
				assert.Len(t, results, tt.firstResults)
			}

			writeAged(t, path, game)
			n, err = s.Scan(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			results, err = db.LookupPitcher(ctx, "Doe, John", "TEAM_A")
			require.NoError(t, err)
			require.Len(t, results, 2)
			for _, r := range results {
				assert.Equal(t, 1, r.Pitches)
			}

			runs, err := db.ListRuns(ctx, store.RunListOpts{Source: "game1.csv"})
			require.NoError(t, err)
			assert.Len(t, runs, tt.runs)
			assert.Equal(t, source.Fingerprint([]byte(game)), runs[0].Fingerprint)
			assert.NoDirExists(t, filepath.Join(dir, FailedDir))
		})
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	db := openTestStore(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(db, testAggregator(t), nil, dir, 0, 0, zerolog.Nop())
	assert.ErrorIs(t, s.Run(ctx), context.Canceled)
}

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/stuffplus/internal/store"
	"github.com/elonfeng/stuffplus/pkg/batch"
	"github.com/elonfeng/stuffplus/pkg/model"
	"github.com/elonfeng/stuffplus/pkg/pitch"
	"github.com/elonfeng/stuffplus/pkg/reference"
	"github.com/elonfeng/stuffplus/pkg/source"
	"github.com/elonfeng/stuffplus/pkg/stuff"
)

const upload = "Date,Pitcher,PitcherTeam,PitcherThrows,TaggedPitchType,PitchCall,PlayResult,RelSpeed,RelHeight,RelSide," +
	"Extension,InducedVertBreak,HorzBreak,PlateLocHeight,PlateLocSide,VertApprAngle,HorzApprAngle,Level," +
	"PitchReleaseConfidence,PitchLocationConfidence,PitchMovementConfidence\n" +
	"2024-03-01,\"Doe, John\",TEAM_A,Right,Fastball,StrikeSwinging,Undefined,93,6,-2,6,16,14,2.5,0,-5,1,D1,High,High,High\n" +
	"2024-03-01,\"Doe, John\",TEAM_A,Right,Fastball,BallCalled,Undefined,95,6,-2,6,18,12,2.5,0,-5,1,D1,High,High,High\n"

func newTestServer(t *testing.T) (*Server, *store.SQLiteStore) {
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

	db, err := store.New(filepath.Join(t.TempDir(), "stuffplus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	agg := batch.NewAggregator(engine, source.NewFilter("D1", "High"), 2, zerolog.Nop())
	return New(db, engine, agg, 0, []string{"http://scout.test"}, zerolog.Nop()), db
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec, out := do(t, s.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])
}

func TestScore(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	tests := []struct {
		name   string
		body   string
		status int
		stuff  float64
	}{
		{
			name:   "fastball",
			body:   `{"type":"Fastball","throws":"R","velocity":94,"rel_height":6,"rel_side":-2,"extension":6.2,"ivb":17,"hb":13,"vaa":-5,"haa":1}`,
			status: http.StatusOK,
			stuff:  184,
		},
		{
			name:   "slider with primary",
			body:   `{"type":"Slider","throws":"L","velocity":84,"rel_height":6,"rel_side":2,"extension":6,"ivb":1,"hb":4,"vaa":-7,"haa":0,"primary_type":"Fastball","primary_velocity":94,"primary_ivb":17,"primary_hb":-13}`,
			status: http.StatusOK,
			stuff:  117,
		},
		{
			name:   "slider without primary",
			body:   `{"type":"Slider","throws":"R","velocity":84,"rel_height":6,"rel_side":-2,"extension":6,"ivb":1,"hb":-4,"vaa":-7,"haa":0}`,
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "missing extension",
			body:   `{"type":"Fastball","throws":"R","velocity":94,"rel_height":6,"rel_side":-2,"ivb":17,"hb":13,"vaa":-5,"haa":1}`,
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "unknown type",
			body:   `{"type":"Eephus","throws":"R"}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "bad json",
			body:   `{"type":`,
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := do(t, h, http.MethodPost, "/api/v1/score", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.stuff, out["stuff_plus"])
			}
		})
	}

	rec, _ := do(t, h, http.MethodGet, "/api/v1/score", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestScoreDifferentials(t *testing.T) {
	s, _ := newTestServer(t)
	body := `{"type":"ChangeUp","throws":"Left","velocity":84,"rel_height":6,"rel_side":2,"extension":6,"ivb":8,` +
		`"hb":14,"vaa":-6,"haa":0,"primary_type":"Sinker","primary_velocity":92,"primary_ivb":10,"primary_hb":17}`
	rec, out := do(t, s.Handler(), http.MethodPost, "/api/v1/score", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "offspeed", out["category"])
	assert.Equal(t, -14.0, out["std_hb"])
	diff := out["diff"].(map[string]any)
	assert.Equal(t, -8.0, diff["velocity"])
	assert.Equal(t, -2.0, diff["ivb"])
	assert.Equal(t, 3.0, diff["hb"])
}

func TestPitchers(t *testing.T) {
	s, db := newTestServer(t)
	h := s.Handler()

	rows := []batch.Row{
		{Pitcher: "Doe, John", Team: "TEAM_A", PitchType: pitch.Fastball, Category: stuff.CategoryFastball, StuffPlus: 104},
		{Pitcher: "Doe, John", Team: "TEAM_B", PitchType: pitch.Slider, Category: stuff.CategoryBreaking, StuffPlus: 122},
	}
	require.NoError(t, db.UpsertResults(context.Background(), store.ResultsFromRows(rows, store.OriginReference, time.Now().UTC())))

	rec, out := do(t, h, http.MethodGet, "/api/v1/pitchers?name=Doe,+John", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, out["count"])
	assert.Equal(t, []any{"TEAM_A", "TEAM_B"}, out["teams"])

	rec, out = do(t, h, http.MethodGet, "/api/v1/pitchers?name=Doe,+John&team=TEAM_B", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, out["count"])

	rec, _ = do(t, h, http.MethodGet, "/api/v1/pitchers?name=Nobody", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/pitchers", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchAndRuns(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec, out := do(t, h, http.MethodPost, "/api/v1/batch?name=game1.csv&save=true", upload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1.0, out["count"])
	assert.NotEmpty(t, out["run_id"])
	stats := out["stats"].(map[string]any)
	assert.Equal(t, 2.0, stats["scored"])

	rec, out = do(t, h, http.MethodGet, "/api/v1/pitchers?name=Doe,+John", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, out["count"])

	rec, out = do(t, h, http.MethodGet, "/api/v1/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, out["count"])

	rec, _ = do(t, h, http.MethodPost, "/api/v1/batch", "Pitcher\nX\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchSaveUsesBaseName(t *testing.T) {
	s, db := newTestServer(t)

	rec, out := do(t, s.Handler(), http.MethodPost, "/api/v1/batch?name=exports/2024/game1.csv&save=true", upload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	runs, err := db.ListRuns(context.Background(), store.RunListOpts{Source: "game1.csv"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, out["run_id"], runs[0].ID)
	assert.Equal(t, source.Fingerprint([]byte(upload)), runs[0].Fingerprint)
}

func TestBatchErrors(t *testing.T) {
	tests := []struct {
		name      string
		maxUpload int64
		body      string
		cancel    bool
		wantCode  int
		wantBody  bool
	}{
		{name: "missing columns", maxUpload: defaultMaxUpload, body: "Pitcher\nX\n", wantCode: http.StatusBadRequest, wantBody: true},
		{name: "malformed csv", maxUpload: defaultMaxUpload, body: upload + "\"unterminated\n", wantCode: http.StatusBadRequest, wantBody: true},
		{name: "body too large", maxUpload: 64, body: upload, wantCode: http.StatusRequestEntityTooLarge, wantBody: true},
		{name: "client cancelled", maxUpload: defaultMaxUpload, body: upload, cancel: true, wantCode: http.StatusOK, wantBody: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, db := newTestServer(t)
			s.maxUpload = tt.maxUpload

			req := httptest.NewRequest(http.MethodPost, "/api/v1/batch?name=game1.csv&save=true", strings.NewReader(tt.body))
			if tt.cancel {
				ctx, cancel := context.WithCancel(req.Context())
				cancel()
				req = req.WithContext(ctx)
			}
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody {
				var out map[string]any
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
				assert.NotEmpty(t, out["error"])
			} else {
				assert.Zero(t, rec.Body.Len(), "nothing is written for a client that went away")
			}

			runs, err := db.ListRuns(context.Background(), store.RunListOpts{})
			require.NoError(t, err)
			assert.Empty(t, runs)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/score", nil)
	req.Header.Set("Origin", "http://scout.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "http://scout.test", rec.Header().Get("Access-Control-Allow-Origin"))
}

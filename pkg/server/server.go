package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/elonfeng/stuffplus/internal/store"
	"github.com/elonfeng/stuffplus/pkg/batch"
	"github.com/elonfeng/stuffplus/pkg/pitch"
	"github.com/elonfeng/stuffplus/pkg/source"
	"github.com/elonfeng/stuffplus/pkg/stuff"
)

// defaultMaxUpload bounds a batch CSV body.
const defaultMaxUpload = 32 << 20

// Server provides the HTTP API.
type Server struct {
	store     store.Store
	engine    *stuff.Engine
	agg       *batch.Aggregator
	port      int
	origins   []string
	maxUpload int64
	log       zerolog.Logger
}

// New creates a new HTTP server.
func New(s store.Store, engine *stuff.Engine, agg *batch.Aggregator, port int, origins []string, log zerolog.Logger) *Server {
	if port == 0 {
		port = 8080
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		store:     s,
		engine:    engine,
		agg:       agg,
		port:      port,
		origins:   origins,
		maxUpload: defaultMaxUpload,
		log:       log.With().Str("component", "server").Logger(),
	}
}

// Handler returns the API routes wrapped with CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/pitchers", s.handlePitchers)
	mux.HandleFunc("/api/v1/score", s.handleScore)
	mux.HandleFunc("/api/v1/batch", s.handleBatch)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         86400,
	})
	return c.Handler(mux)
}

// ListenAndServe starts the HTTP server and shuts it down when ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", srv.Addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePitchers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	team := strings.TrimSpace(r.URL.Query().Get("team"))
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	results, err := s.store.LookupPitcher(r.Context(), name, team)
	if errors.Is(err, store.ErrNameNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	teams, err := s.store.Teams(r.Context(), name)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  results,
		"count": len(results),
		"teams": teams,
	})
}

// scoreRequest is a hand-entered pitch. Absent measurements are nil.
type scoreRequest struct {
	Type      string   `json:"type"`
	Throws    string   `json:"throws"`
	Velocity  *float64 `json:"velocity"`
	RelHeight *float64 `json:"rel_height"`
	RelSide   *float64 `json:"rel_side"`
	Extension *float64 `json:"extension"`
	IVB       *float64 `json:"ivb"`
	HB        *float64 `json:"hb"`
	VAA       *float64 `json:"vaa"`
	HAA       *float64 `json:"haa"`

	PrimaryType     string   `json:"primary_type"`
	PrimaryVelocity *float64 `json:"primary_velocity"`
	PrimaryIVB      *float64 `json:"primary_ivb"`
	PrimaryHB       *float64 `json:"primary_hb"`
}

func (req scoreRequest) custom() (stuff.CustomPitch, error) {
	t, ok := pitch.NormalizeType(req.Type)
	if !ok {
		return stuff.CustomPitch{}, fmt.Errorf("unknown pitch type %q", req.Type)
	}
	throws, err := pitch.ParseHandedness(req.Throws)
	if err != nil {
		return stuff.CustomPitch{}, err
	}

	c := stuff.CustomPitch{
		Type:            t,
		Throws:          throws,
		Velocity:        value(req.Velocity),
		RelHeight:       value(req.RelHeight),
		RelSide:         value(req.RelSide),
		Extension:       value(req.Extension),
		IVB:             value(req.IVB),
		HB:              value(req.HB),
		VAA:             value(req.VAA),
		HAA:             value(req.HAA),
		PrimaryVelocity: value(req.PrimaryVelocity),
		PrimaryIVB:      value(req.PrimaryIVB),
		PrimaryHB:       value(req.PrimaryHB),
	}
	if req.PrimaryType != "" {
		pt, ok := pitch.NormalizeType(req.PrimaryType)
		if !ok {
			return stuff.CustomPitch{}, fmt.Errorf("unknown primary type %q", req.PrimaryType)
		}
		c.PrimaryType = pt
	}
	return c, nil
}

type scoreResponse struct {
	Type        pitch.Type       `json:"type"`
	Throws      pitch.Handedness `json:"throws"`
	Category    stuff.Category   `json:"category"`
	PrimaryType pitch.Type       `json:"primary_type,omitempty"`
	AdjVAA      float64          `json:"adj_vaa"`
	AdjHAA      float64          `json:"adj_haa"`
	StdHB       float64          `json:"std_hb"`
	Diff        *stuff.Shape     `json:"diff,omitempty"`
	Probability float64          `json:"whiff_probability"`
	StuffPlus   int              `json:"stuff_plus"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	c, err := req.custom()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	sp, err := s.engine.ScoreCustom(c)
	switch {
	case errors.Is(err, stuff.ErrIncompleteInput):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	case err != nil:
		s.log.Error().Err(err).Str("type", string(c.Type)).Msg("score")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, scoreResponse{
		Type:        sp.Type,
		Throws:      sp.Throws,
		Category:    sp.Category,
		PrimaryType: sp.PrimaryType,
		AdjVAA:      sp.AdjVAA,
		AdjHAA:      sp.AdjHAA,
		StdHB:       sp.StdHB,
		Diff:        sp.Diff,
		Probability: sp.Probability,
		StuffPlus:   sp.StuffPlus,
	})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload"
	}
	ctx := r.Context()
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUpload))
	if err != nil {
		s.batchError(w, r, name, err)
		return
	}

	res, err := s.agg.RunSource(ctx, source.NewTrackManReader(name, bytes.NewReader(data)))
	if err != nil {
		s.batchError(w, r, name, err)
		return
	}

	resp := map[string]any{
		"stats": res.Stats,
		"rows":  res.Rows,
		"count": len(res.Rows),
	}

	if save, _ := strconv.ParseBool(r.URL.Query().Get("save")); save {
		run, err := store.SaveBatch(ctx, s.store, name, source.Fingerprint(data), res)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		resp["run_id"] = run.ID
	}

	writeJSON(w, http.StatusOK, resp)
}

// batchError maps a failed upload to a status. Oversized bodies get 413 and
// a client that went away gets nothing; anything else is a bad CSV.
func (s *Server) batchError(w http.ResponseWriter, r *http.Request, name string, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
			"error": fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit),
		})
	case r.Context().Err() != nil:
		s.log.Debug().Err(err).Str("file", name).Msg("batch upload cancelled")
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	opts := store.RunListOpts{Source: r.URL.Query().Get("source"), Limit: 50}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 {
		opts.Limit = limit
	}

	runs, err := s.store.ListRuns(r.Context(), opts)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  runs,
		"count": len(runs),
	})
}

func value(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/elonfeng/stuffplus/pkg/batch"
)

// ErrNameNotFound means no stored result matches a pitcher lookup.
var ErrNameNotFound = errors.New("name not found")

// OriginReference marks rows imported from the precomputed tables.
const OriginReference = "reference"

// Result is a stored Stuff+ rollup for one pitcher's pitch type.
type Result struct {
	Pitcher   string    `db:"pitcher" json:"pitcher"`
	Team      string    `db:"team" json:"team"`
	PitchType string    `db:"pitch_type" json:"pitch_type"`
	Category  string    `db:"category" json:"category"`
	Pitches   int       `db:"pitches" json:"pitches"`
	Velocity  float64   `db:"velocity" json:"velocity"`
	RelHeight float64   `db:"rel_height" json:"rel_height"`
	RelSide   float64   `db:"rel_side" json:"rel_side"`
	Extension float64   `db:"extension" json:"extension"`
	IVB       float64   `db:"ivb" json:"ivb"`
	HB        float64   `db:"hb" json:"hb"`
	VAA       float64   `db:"vaa" json:"vaa"`
	HAA       float64   `db:"haa" json:"haa"`
	AdjVAA    float64   `db:"adj_vaa" json:"adj_vaa"`
	AdjHAA    float64   `db:"adj_haa" json:"adj_haa"`
	WhiffRate float64   `db:"whiff_rate" json:"whiff_rate"`
	StuffPlus int       `db:"stuff_plus" json:"stuff_plus"`
	Origin    string    `db:"origin" json:"origin"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ResultsFromRows converts batch rollups to stored results.
func ResultsFromRows(rows []batch.Row, origin string, at time.Time) []Result {
	results := make([]Result, len(rows))
	for i, r := range rows {
		results[i] = Result{
			Pitcher:   r.Pitcher,
			Team:      r.Team,
			PitchType: string(r.PitchType),
			Category:  string(r.Category),
			Pitches:   r.Pitches,
			Velocity:  r.Velocity,
			RelHeight: r.RelHeight,
			RelSide:   r.RelSide,
			Extension: r.Extension,
			IVB:       r.IVB,
			HB:        r.HB,
			VAA:       r.VAA,
			HAA:       r.HAA,
			AdjVAA:    r.AdjVAA,
			AdjHAA:    r.AdjHAA,
			WhiffRate: r.WhiffRate,
			StuffPlus: r.StuffPlus,
			Origin:    origin,
			UpdatedAt: at,
		}
	}
	return results
}

// Run records one batch scoring pass. Source is the file's base name and
// Fingerprint a hash of its content, so a reused name with new content is a
// new run.
type Run struct {
	ID          string    `db:"id" json:"id"`
	Source      string    `db:"source" json:"source"`
	Fingerprint string    `db:"fingerprint" json:"fingerprint,omitempty"`
	Total       int       `db:"total" json:"total"`
	Qualified   int       `db:"qualified" json:"qualified"`
	Incomplete  int       `db:"incomplete" json:"incomplete"`
	Failed      int       `db:"failed" json:"failed"`
	Scored      int       `db:"scored" json:"scored"`
	Groups      int       `db:"groups_count" json:"groups"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// NewRun builds a run record from batch stats with a fresh id. src may be a
// path; only its base name is kept.
func NewRun(src, fingerprint string, res *batch.Result) *Run {
	return &Run{
		ID:          uuid.NewString(),
		Source:      filepath.Base(src),
		Fingerprint: fingerprint,
		Total:       res.Stats.Total,
		Qualified:   res.Stats.Qualified,
		Incomplete:  res.Stats.Incomplete,
		Failed:      res.Stats.Failed,
		Scored:      res.Stats.Scored,
		Groups:      len(res.Rows),
		CreatedAt:   time.Now().UTC(),
	}
}

// SaveBatch stores the rollups of a scored file and records the run. The
// rows carry the run id as their origin.
func SaveBatch(ctx context.Context, s Store, src, fingerprint string, res *batch.Result) (*Run, error) {
	run := NewRun(src, fingerprint, res)
	if err := s.UpsertResults(ctx, ResultsFromRows(res.Rows, run.ID, run.CreatedAt)); err != nil {
		return nil, err
	}
	if err := s.AddRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// RunListOpts controls run listing.
type RunListOpts struct {
	Source string
	Limit  int
}

// Store is the persistence interface.
type Store interface {
	UpsertResults(ctx context.Context, results []Result) error
	LookupPitcher(ctx context.Context, name, team string) ([]Result, error)
	Teams(ctx context.Context, name string) ([]string, error)

	AddRun(ctx context.Context, r *Run) error
	ListRuns(ctx context.Context, opts RunListOpts) ([]Run, error)
	HasFingerprint(ctx context.Context, fingerprint string) (bool, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const upsertResult = `
	INSERT INTO results (pitcher, team, pitch_type, category, pitches, velocity, rel_height, rel_side, extension,
		ivb, hb, vaa, haa, adj_vaa, adj_haa, whiff_rate, stuff_plus, origin, updated_at)
	VALUES (:pitcher, :team, :pitch_type, :category, :pitches, :velocity, :rel_height, :rel_side, :extension,
		:ivb, :hb, :vaa, :haa, :adj_vaa, :adj_haa, :whiff_rate, :stuff_plus, :origin, :updated_at)
	ON CONFLICT(pitcher, team, pitch_type) DO UPDATE SET
		category = excluded.category,
		pitches = excluded.pitches,
		velocity = excluded.velocity,
		rel_height = excluded.rel_height,
		rel_side = excluded.rel_side,
		extension = excluded.extension,
		ivb = excluded.ivb,
		hb = excluded.hb,
		vaa = excluded.vaa,
		haa = excluded.haa,
		adj_vaa = excluded.adj_vaa,
		adj_haa = excluded.adj_haa,
		whiff_rate = excluded.whiff_rate,
		stuff_plus = excluded.stuff_plus,
		origin = excluded.origin,
		updated_at = excluded.updated_at
`

func (s *SQLiteStore) UpsertResults(ctx context.Context, results []Result) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert results: %w", err)
	}
	defer tx.Rollback()

	for i := range results {
		if results[i].UpdatedAt.IsZero() {
			results[i].UpdatedAt = time.Now().UTC()
		}
		if _, err := tx.NamedExecContext(ctx, upsertResult, &results[i]); err != nil {
			return fmt.Errorf("upsert result %s/%s/%s: %w",
				results[i].Pitcher, results[i].Team, results[i].PitchType, err)
		}
	}
	return tx.Commit()
}

// LookupPitcher returns every stored row for an exact, case-sensitive pitcher
// name, optionally narrowed to one team. Rows are ordered fastball, breaking,
// then offspeed within each team.
func (s *SQLiteStore) LookupPitcher(ctx context.Context, name, team string) ([]Result, error) {
	query := "SELECT * FROM results WHERE pitcher = ?"
	args := []any{name}
	if team != "" {
		query += " AND team = ?"
		args = append(args, team)
	}
	query += " ORDER BY team, CASE category WHEN 'fastball' THEN 0 WHEN 'breaking' THEN 1 ELSE 2 END, pitch_type"

	var results []Result
	if err := s.db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, fmt.Errorf("lookup pitcher %q: %w", name, err)
	}
	if len(results) == 0 {
		if team != "" {
			return nil, fmt.Errorf("%q on %q: %w", name, team, ErrNameNotFound)
		}
		return nil, fmt.Errorf("%q: %w", name, ErrNameNotFound)
	}
	return results, nil
}

// Teams lists the teams a pitcher name appears under.
func (s *SQLiteStore) Teams(ctx context.Context, name string) ([]string, error) {
	var teams []string
	err := s.db.SelectContext(ctx, &teams, "SELECT DISTINCT team FROM results WHERE pitcher = ? ORDER BY team", name)
	if err != nil {
		return nil, fmt.Errorf("teams for %q: %w", name, err)
	}
	return teams, nil
}

func (s *SQLiteStore) AddRun(ctx context.Context, r *Run) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO runs (id, source, fingerprint, total, qualified, incomplete, failed, scored, groups_count, created_at)
		VALUES (:id, :source, :fingerprint, :total, :qualified, :incomplete, :failed, :scored, :groups_count, :created_at)
	`, r)
	if err != nil {
		return fmt.Errorf("add run %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts RunListOpts) ([]Run, error) {
	query := "SELECT * FROM runs WHERE 1=1"
	var args []any

	if opts.Source != "" {
		query += " AND source = ?"
		args = append(args, opts.Source)
	}

	query += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var runs []Run
	if err := s.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// HasFingerprint reports whether content with this fingerprint was already
// scored and stored. An empty fingerprint never matches.
func (s *SQLiteStore) HasFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	if fingerprint == "" {
		return false, nil
	}
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM runs WHERE fingerprint = ?", fingerprint); err != nil {
		return false, fmt.Errorf("has fingerprint %s: %w", fingerprint, err)
	}
	return n > 0, nil
}

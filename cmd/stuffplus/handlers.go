package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/stuffplus/internal/config"
	"github.com/elonfeng/stuffplus/internal/logger"
	"github.com/elonfeng/stuffplus/internal/scheduler"
	"github.com/elonfeng/stuffplus/internal/store"
	"github.com/elonfeng/stuffplus/pkg/alert"
	"github.com/elonfeng/stuffplus/pkg/batch"
	"github.com/elonfeng/stuffplus/pkg/model"
	"github.com/elonfeng/stuffplus/pkg/pitch"
	"github.com/elonfeng/stuffplus/pkg/reference"
	"github.com/elonfeng/stuffplus/pkg/server"
	"github.com/elonfeng/stuffplus/pkg/source"
	"github.com/elonfeng/stuffplus/pkg/stuff"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func buildLogger(cfg *config.Config) zerolog.Logger {
	return logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Format != "json")
}

func buildEngine(cfg *config.Config, log zerolog.Logger) (*stuff.Engine, error) {
	ref, err := reference.LoadDir(cfg.Reference.Dir)
	if err != nil {
		return nil, fmt.Errorf("load reference tables: %w", err)
	}
	log.Debug().Int("tables", ref.Len()).Str("dir", cfg.Reference.Dir).Msg("reference tables loaded")

	models := map[stuff.Category]config.ModelConfig{
		stuff.CategoryFastball: cfg.Models.Fastball,
		stuff.CategoryBreaking: cfg.Models.Breaking,
		stuff.CategoryOffspeed: cfg.Models.Offspeed,
	}

	var descs []stuff.Descriptor
	for _, c := range stuff.Categories() {
		mc := models[c]
		m, err := model.Load(mc.Path)
		if err != nil {
			return nil, fmt.Errorf("load %s model: %w", c, err)
		}
		rate := mc.AvgWhiffRate
		if rate == 0 {
			rate = stuff.DefaultWhiffRates[c]
		}
		descs = append(descs, stuff.Descriptor{Category: c, Predictor: m, AvgWhiffRate: rate})
	}

	engine, err := stuff.NewEngine(ref, descs, log)
	if err != nil {
		return nil, err
	}
	engine.SetZoneCenter(stuff.Coordinate{
		Height: cfg.Reference.ZoneCenter.Height,
		Side:   cfg.Reference.ZoneCenter.Side,
	})
	return engine, nil
}

func buildAggregator(cfg *config.Config, engine *stuff.Engine, log zerolog.Logger) *batch.Aggregator {
	filter := source.NewFilter(cfg.Batch.Level, cfg.Batch.Confidence)
	return batch.NewAggregator(engine, filter, cfg.Batch.Workers, log)
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func runLookup(name, team string, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	results, err := db.LookupPitcher(ctx, name, team)
	if errors.Is(err, store.ErrNameNotFound) {
		return fmt.Errorf("no Stuff+ rows for %s (names are \"Last, First\" and case-sensitive)", quoteName(name, team))
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if team == "" {
		teams, err := db.Teams(ctx, name)
		if err != nil {
			return err
		}
		if len(teams) > 1 {
			fmt.Fprintf(os.Stderr, "%s appears for %s; use --team to narrow\n", name, strings.Join(teams, ", "))
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TEAM\tPITCH\tCATEGORY\tSTUFF+\tVELO\tIVB\tHB\tVAA\tHAA")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.1f\t%.1f\t%.1f\t%.2f\t%.2f\n",
			r.Team, r.PitchType, r.Category, r.StuffPlus,
			r.Velocity, r.IVB, r.HB, r.VAA, r.HAA)
	}
	return w.Flush()
}

func quoteName(name, team string) string {
	if team == "" {
		return fmt.Sprintf("%q", name)
	}
	return fmt.Sprintf("%q on %s", name, team)
}

// customFlags holds the raw score command input. Blank values are missing.
type customFlags struct {
	pitchType, throws                                          string
	velocity, relHeight, relSide, extension, ivb, hb, vaa, haa string
	primaryType, primaryVelocity, primaryIVB, primaryHB        string
	jsonOutput                                                 bool
}

func (in customFlags) custom() (stuff.CustomPitch, error) {
	t, ok := pitch.NormalizeType(in.pitchType)
	if !ok {
		return stuff.CustomPitch{}, fmt.Errorf("unknown pitch type %q", in.pitchType)
	}
	throws, err := pitch.ParseHandedness(in.throws)
	if err != nil {
		return stuff.CustomPitch{}, err
	}

	c := stuff.CustomPitch{
		Type:            t,
		Throws:          throws,
		Velocity:        stuff.ParseMeasurement(in.velocity),
		RelHeight:       stuff.ParseMeasurement(in.relHeight),
		RelSide:         stuff.ParseMeasurement(in.relSide),
		Extension:       stuff.ParseMeasurement(in.extension),
		IVB:             stuff.ParseMeasurement(in.ivb),
		HB:              stuff.ParseMeasurement(in.hb),
		VAA:             stuff.ParseMeasurement(in.vaa),
		HAA:             stuff.ParseMeasurement(in.haa),
		PrimaryVelocity: stuff.ParseMeasurement(in.primaryVelocity),
		PrimaryIVB:      stuff.ParseMeasurement(in.primaryIVB),
		PrimaryHB:       stuff.ParseMeasurement(in.primaryHB),
	}
	if in.primaryType != "" {
		pt, ok := pitch.NormalizeType(in.primaryType)
		if !ok {
			return stuff.CustomPitch{}, fmt.Errorf("unknown primary type %q", in.primaryType)
		}
		c.PrimaryType = pt
	}
	return c, nil
}

func runScore(in customFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := buildLogger(cfg)

	c, err := in.custom()
	if err != nil {
		return err
	}

	engine, err := buildEngine(cfg, log)
	if err != nil {
		return err
	}

	sp, err := engine.ScoreCustom(c)
	if errors.Is(err, stuff.ErrIncompleteInput) {
		if c.NeedsPrimary() {
			return fmt.Errorf("%w (a %s also needs --primary-type, --primary-velo, --primary-ivb and --primary-hb)", err, c.Type)
		}
		return err
	}
	if err != nil {
		return err
	}

	if in.jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"type":              sp.Type,
			"category":          sp.Category,
			"adj_vaa":           sp.AdjVAA,
			"adj_haa":           sp.AdjHAA,
			"whiff_probability": sp.Probability,
			"stuff_plus":        sp.StuffPlus,
		})
	}

	fmt.Printf("%s (%s model): Stuff+ %d\n", sp.Type, sp.Category, sp.StuffPlus)
	fmt.Printf("  whiff probability %.3f, adjusted VAA %.2f, adjusted HAA %.2f\n", sp.Probability, sp.AdjVAA, sp.AdjHAA)
	return nil
}

type batchOpts struct {
	jsonOutput bool
	csvOutput  bool
	output     string
	save       bool
}

func runBatch(path string, opts batchOpts) error {
	if opts.jsonOutput && opts.csvOutput {
		return errors.New("--json and --csv are mutually exclusive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := buildLogger(cfg)

	engine, err := buildEngine(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	name := filepath.Base(path)
	res, err := buildAggregator(cfg, engine, log).RunSource(ctx, source.NewTrackManReader(name, bytes.NewReader(data)))
	if err != nil {
		return err
	}

	if opts.save {
		db, err := store.New(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()

		run, err := store.SaveBatch(ctx, db, name, source.Fingerprint(data), res)
		if err != nil {
			return err
		}
		log.Info().Str("run", run.ID).Str("file", run.Source).Int("rows", len(res.Rows)).Msg("results saved")
	}

	var out io.Writer = os.Stdout
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("create %s: %w", opts.output, err)
		}
		defer f.Close()
		out = f
	}

	switch {
	case opts.jsonOutput:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case opts.csvOutput:
		return batch.WriteCSV(out, res.Rows)
	}

	fmt.Fprintf(os.Stderr, "%d pitches, %d qualified, %d scored (%d incomplete, %d failed)\n",
		res.Stats.Total, res.Stats.Qualified, res.Stats.Scored, res.Stats.Incomplete, res.Stats.Failed)

	if len(res.Rows) == 0 {
		fmt.Fprintln(out, "no qualifying pitches")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PITCHER\tTEAM\tPITCH\tN\tSTUFF+\tVELO\tIVB\tHB\tADJ VAA\tADJ HAA\tWHIFF%")
	for _, r := range res.Rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.1f\t%.1f\t%.1f\t%.2f\t%.2f\t%.1f\n",
			r.Pitcher, r.Team, r.PitchType, r.Pitches, r.StuffPlus,
			r.Velocity, r.IVB, r.HB, r.AdjVAA, r.AdjHAA, r.WhiffRate*100)
	}
	return w.Flush()
}

func runImport(paths []string, category string) error {
	var cat stuff.Category
	if category != "" {
		c, err := stuff.ParseCategory(category)
		if err != nil {
			return err
		}
		cat = c
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	total := 0
	for _, path := range paths {
		rows, err := readRows(path, cat)
		if err != nil {
			return err
		}
		if err := db.UpsertResults(ctx, store.ResultsFromRows(rows, store.OriginReference, time.Now().UTC())); err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		fmt.Fprintf(os.Stderr, "%s: %d rows\n", path, len(rows))
		total += len(rows)
	}

	fmt.Fprintf(os.Stderr, "imported %d rows from %d files\n", total, len(paths))
	return nil
}

func readRows(path string, cat stuff.Category) ([]batch.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := batch.ReadCSV(f, cat)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := buildLogger(cfg)

	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	engine, err := buildEngine(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := server.New(db, engine, buildAggregator(cfg, engine, log), port, cfg.Server.CORSOrigins, log)
	return srv.ListenAndServe(ctx)
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := buildLogger(cfg)

	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	engine, err := buildEngine(cfg, log)
	if err != nil {
		return err
	}
	agg := buildAggregator(cfg, engine, log)

	if err := os.MkdirAll(cfg.Schedule.Inbox, 0o755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(db, agg, buildAlertManager(cfg), cfg.Schedule.Inbox,
		cfg.Schedule.ParseInterval(), cfg.Schedule.ParseSettle(), log)
	srv := server.New(db, engine, agg, port, cfg.Server.CORSOrigins, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return srv.ListenAndServe(ctx)
	})

	err = g.Wait()
	log.Info().Msg("shut down")
	return err
}

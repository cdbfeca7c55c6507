package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/elonfeng/stuffplus/internal/store"
	"github.com/elonfeng/stuffplus/pkg/alert"
	"github.com/elonfeng/stuffplus/pkg/batch"
	"github.com/elonfeng/stuffplus/pkg/source"
)

// topRows is how many rows a run notification carries.
const topRows = 5

// FailedDir is the inbox subdirectory unreadable exports are moved to.
const FailedDir = "failed"

// Scheduler watches an inbox directory and batch-scores new TrackMan files.
type Scheduler struct {
	store    store.Store
	agg      *batch.Aggregator
	alertMgr *alert.Manager
	inbox    string
	interval time.Duration
	settle   time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// New creates a new scheduler. Files modified within settle of a scan are
// assumed to still be written and are left for a later scan.
func New(
	s store.Store,
	agg *batch.Aggregator,
	alertMgr *alert.Manager,
	inbox string,
	interval time.Duration,
	settle time.Duration,
	log zerolog.Logger,
) *Scheduler {
	if interval == 0 {
		interval = 5 * time.Minute
	}
	if settle < 0 {
		settle = interval
	}
	return &Scheduler{
		store:    s,
		agg:      agg,
		alertMgr: alertMgr,
		inbox:    inbox,
		interval: interval,
		settle:   settle,
		now:      time.Now,
		log:      log.With().Str("component", "scheduler").Logger(),
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if _, err := s.Scan(ctx); err != nil {
		s.log.Error().Err(err).Msg("initial scan")
	}

	s.log.Info().Str("inbox", s.inbox).Dur("interval", s.interval).Dur("settle", s.settle).Msg("running")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Scan(ctx); err != nil {
				s.log.Error().Err(err).Msg("scan")
			}
		}
	}
}

// Scan scores every settled *.csv file in the inbox whose content has no
// recorded run and returns the number of files processed. Files that cannot
// be parsed are moved to the failed directory; store errors are retried on
// the next scan.
func (s *Scheduler) Scan(ctx context.Context) (int, error) {
	paths, err := filepath.Glob(filepath.Join(s.inbox, "*.csv"))
	if err != nil {
		return 0, fmt.Errorf("glob inbox %s: %w", s.inbox, err)
	}
	sort.Strings(paths)

	processed := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		name := filepath.Base(path)
		info, err := os.Stat(path)
		if err != nil {
			s.log.Debug().Err(err).Str("file", name).Msg("stat")
			continue
		}
		if s.now().Sub(info.ModTime()) < s.settle {
			s.log.Debug().Str("file", name).Time("modified", info.ModTime()).Msg("not settled")
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			s.log.Warn().Err(err).Str("file", name).Msg("read")
			continue
		}
		fp := source.Fingerprint(data)
		done, err := s.store.HasFingerprint(ctx, fp)
		if err != nil {
			return processed, err
		}
		if done {
			continue
		}

		ok, err := s.process(ctx, name, fp, data)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return processed, ctxErr
			}
			s.log.Warn().Err(err).Str("file", name).Msg("batch failed")
			continue
		}
		if !ok {
			s.quarantine(path)
			continue
		}
		processed++
	}
	return processed, nil
}

// process scores and stores one export. It reports false when the content
// itself could not be read as TrackMan.
func (s *Scheduler) process(ctx context.Context, name, fp string, data []byte) (bool, error) {
	res, err := s.agg.RunSource(ctx, source.NewTrackManReader(name, bytes.NewReader(data)))
	if err != nil {
		if ctx.Err() != nil {
			return false, err
		}
		s.log.Warn().Err(err).Str("file", name).Msg("unreadable export")
		return false, nil
	}

	run, err := store.SaveBatch(ctx, s.store, name, fp, res)
	if err != nil {
		return false, err
	}

	s.log.Info().
		Str("run", run.ID).
		Str("file", name).
		Int("scored", res.Stats.Scored).
		Int("groups", len(res.Rows)).
		Msg("batch stored")

	if !s.alertMgr.HasNotifiers() {
		return true, nil
	}
	if err := s.alertMgr.Broadcast(ctx, alert.Summarize(run.ID, name, res, topRows)); err != nil {
		s.log.Warn().Err(err).Str("run", run.ID).Msg("alert")
	}
	return true, nil
}

// quarantine moves an unreadable export out of the inbox so it is not parsed
// again on every scan.
func (s *Scheduler) quarantine(path string) {
	dir := filepath.Join(s.inbox, FailedDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Error().Err(err).Msg("create failed dir")
		return
	}
	dst := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		s.log.Error().Err(err).Str("file", filepath.Base(path)).Msg("quarantine")
		return
	}
	s.log.Info().Str("file", filepath.Base(path)).Str("moved_to", dst).Msg("quarantined")
}

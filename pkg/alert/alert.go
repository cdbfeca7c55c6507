package alert

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/elonfeng/stuffplus/pkg/batch"
)

// Notification summarizes one batch run for alert destinations.
type Notification struct {
	Title  string      `json:"title"`
	Body   string      `json:"body"`
	RunID  string      `json:"run_id"`
	Source string      `json:"source"`
	Stats  batch.Stats `json:"stats"`
	Top    []batch.Row `json:"top"`
}

// Summarize builds a notification for a finished run, carrying the top
// rows by Stuff+.
func Summarize(runID, src string, res *batch.Result, top int) *Notification {
	rows := make([]batch.Row, len(res.Rows))
	copy(rows, res.Rows)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].StuffPlus > rows[j].StuffPlus })
	if top >= 0 && len(rows) > top {
		rows = rows[:top]
	}

	body := fmt.Sprintf("%d of %d pitches scored (%d incomplete, %d failed) across %d pitch types",
		res.Stats.Scored, res.Stats.Total, res.Stats.Incomplete, res.Stats.Failed, len(res.Rows))

	return &Notification{
		Title:  fmt.Sprintf("Stuff+ batch: %s", src),
		Body:   body,
		RunID:  runID,
		Source: src,
		Stats:  res.Stats,
		Top:    rows,
	}
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return m != nil && len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

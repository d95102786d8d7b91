// Package performance maintains provider counters and cached scores.
package performance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/jobroute/core/logger"
	"github.com/kilianp07/jobroute/core/model"
	"github.com/kilianp07/jobroute/core/monitoring"
	"github.com/kilianp07/jobroute/core/scoring"
	"github.com/kilianp07/jobroute/core/store"
)

// Completion describes a finished job.
type Completion struct {
	ProviderID    string
	BookingID     string
	Rating        float64
	OnTime        bool
	DistanceMiles float64
	CompletedAt   time.Time
}

// Validate checks the rating range and identifiers.
func (c Completion) Validate() error {
	if c.ProviderID == "" || c.BookingID == "" {
		return errors.New("provider and booking are required")
	}
	if c.Rating != 0 && (c.Rating < 1 || c.Rating > 5) {
		return fmt.Errorf("rating %.1f out of range 1..5", c.Rating)
	}
	return nil
}

// RescoreReport summarises a bulk recompute.
type RescoreReport struct {
	Providers int `json:"providers"`
	Failed    int `json:"failed"`
}

// Tracker applies outcomes and refreshes cached sub-scores.
type Tracker struct {
	store    store.ProviderStore
	log      logger.Logger
	now      func() time.Time
	interval time.Duration
}

// NewTracker creates a Tracker. interval drives Run; zero means hourly.
func NewTracker(s store.ProviderStore, log logger.Logger, interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Tracker{store: s, log: logger.OrNop(log), now: time.Now, interval: interval}
}

// SetClock overrides time.Now.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

// RecordOutcome increments counters and refreshes the cached scores.
func (t *Tracker) RecordOutcome(ctx context.Context, providerID string, o model.Outcome) error {
	if _, err := t.store.ApplyOutcome(ctx, providerID, o, t.now()); err != nil {
		return fmt.Errorf("apply outcome for %s: %w", providerID, err)
	}
	if _, err := t.Rescore(ctx, providerID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// RecordCompletion appends a history record and updates completion and
// timeliness counters.
func (t *Tracker) RecordCompletion(ctx context.Context, c Completion) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.CompletedAt.IsZero() {
		c.CompletedAt = t.now()
	}
	rec := model.PerformanceHistoryRecord{
		ProviderID:    c.ProviderID,
		BookingID:     c.BookingID,
		Rating:        c.Rating,
		OnTime:        c.OnTime,
		DistanceMiles: c.DistanceMiles,
		CompletedAt:   c.CompletedAt,
		DecayWeight:   scoring.DecayWeight(t.now().Sub(c.CompletedAt)),
	}
	if err := t.store.AppendHistory(ctx, rec); err != nil {
		return fmt.Errorf("append history for %s: %w", c.ProviderID, err)
	}
	o := model.Outcome{Completed: 1}
	if c.OnTime {
		o.OnTime = 1
	} else {
		o.Late = 1
	}
	return t.RecordOutcome(ctx, c.ProviderID, o)
}

// RecordCancellation counts a job the provider cancelled after accepting.
// Unknown providers return store.ErrNotFound.
func (t *Tracker) RecordCancellation(ctx context.Context, providerID string) error {
	if _, err := t.store.GetProfile(ctx, providerID); err != nil {
		return fmt.Errorf("load profile %s: %w", providerID, err)
	}
	return t.RecordOutcome(ctx, providerID, model.Outcome{Cancellation: 1})
}

// Rescore recomputes and stores the location independent scores of one
// provider.
func (t *Tracker) Rescore(ctx context.Context, providerID string) (model.ScoreBreakdown, error) {
	prof, err := t.store.GetProfile(ctx, providerID)
	if err != nil {
		return model.ScoreBreakdown{}, fmt.Errorf("load profile %s: %w", providerID, err)
	}
	now := t.now()
	s := scoring.Score(scoring.InputFromProfile(prof), nil, now)
	if err := t.store.SaveScores(ctx, providerID, s, now); err != nil {
		return s, fmt.Errorf("save scores for %s: %w", providerID, err)
	}
	return s, nil
}

// RescoreAll recomputes every provider. Individual failures are logged and
// counted; the joined error is returned alongside the report.
func (t *Tracker) RescoreAll(ctx context.Context) (RescoreReport, error) {
	var rep RescoreReport
	ids, err := t.store.ListProviderIDs(ctx)
	if err != nil {
		return rep, fmt.Errorf("list providers: %w", err)
	}
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if _, err := t.Rescore(ctx, id); err != nil {
			rep.Failed++
			errs = append(errs, err)
			t.log.Errorw("rescore failed", err, map[string]any{"provider_id": id})
			continue
		}
		rep.Providers++
	}
	t.log.Infof("rescored %d providers (%d failed)", rep.Providers, rep.Failed)
	return rep, errors.Join(errs...)
}

// Run recomputes every provider on the configured interval until ctx ends.
func (t *Tracker) Run(ctx context.Context) error {
	defer monitoring.Recover("performance")
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, _ = t.RescoreAll(ctx)
		}
	}
}

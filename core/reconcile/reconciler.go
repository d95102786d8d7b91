// Package reconcile enforces response deadlines from persisted state. It is
// the authoritative timeout mechanism: it needs nothing but the store, so a
// restart loses no deadline.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/jobroute/core/dispatch"
	"github.com/kilianp07/jobroute/core/logger"
	"github.com/kilianp07/jobroute/core/model"
	"github.com/kilianp07/jobroute/core/monitoring"
	"github.com/kilianp07/jobroute/core/store"
)

// Coordinator is the part of the dispatch coordinator the sweep drives.
type Coordinator interface {
	Expire(ctx context.Context, a model.Assignment) (bool, error)
	Cascade(ctx context.Context, bookingID string) (dispatch.CascadeResult, error)
}

// Store is what the sweep reads.
type Store interface {
	ListExpired(ctx context.Context, now time.Time, limit int) ([]model.Assignment, error)
	ListStalledBookings(ctx context.Context, limit int) ([]model.Booking, error)
}

// Config tunes the sweep.
type Config struct {
	Interval   time.Duration `json:"interval"`
	BatchSize  int           `json:"batch_size"`
	MaxBatches int           `json:"max_batches"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Interval == 0 {
		c.Interval = time.Minute
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.MaxBatches == 0 {
		c.MaxBatches = 10
	}
}

// Validate checks the cadence against the response window it guards.
func (c Config) Validate(window time.Duration) error {
	if c.Interval <= 0 {
		return fmt.Errorf("reconciler: interval must be positive")
	}
	if window > 0 && c.Interval >= window {
		return fmt.Errorf("reconciler: interval %s must be shorter than the response window %s", c.Interval, window)
	}
	if c.BatchSize <= 0 || c.MaxBatches <= 0 {
		return fmt.Errorf("reconciler: batch_size and max_batches must be positive")
	}
	return nil
}

// Report summarises one sweep.
type Report struct {
	Scanned  int           `json:"scanned"`
	Expired  int           `json:"expired"`
	Raced    int           `json:"raced"`
	Healed   int           `json:"healed"`
	Errors   int           `json:"errors"`
	Duration time.Duration `json:"duration"`
}

// Reconciler periodically expires overdue offers and resumes stalled
// cascades.
type Reconciler struct {
	cfg   Config
	store Store
	coord Coordinator
	log   logger.Logger
	now   func() time.Time
}

// New builds a Reconciler. cfg is defaulted but not validated; use
// Config.Validate at load time.
func New(cfg Config, s Store, c Coordinator, log logger.Logger) *Reconciler {
	cfg.SetDefaults()
	return &Reconciler{cfg: cfg, store: s, coord: c, log: logger.OrNop(log), now: time.Now}
}

// SetClock overrides time.Now.
func (r *Reconciler) SetClock(now func() time.Time) { r.now = now }

// Sweep runs one reconciliation pass. It is also the administrative
// force-reconcile operation.
func (r *Reconciler) Sweep(ctx context.Context) (Report, error) {
	start := time.Now()
	var rep Report
	var errs []error

	for batch := 0; batch < r.cfg.MaxBatches; batch++ {
		due, err := r.store.ListExpired(ctx, r.now(), r.cfg.BatchSize)
		if err != nil {
			errs = append(errs, fmt.Errorf("list expired: %w", err))
			break
		}
		progressed := false
		for _, a := range due {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			rep.Scanned++
			ok, err := r.coord.Expire(ctx, a)
			if ok {
				rep.Expired++
				progressed = true
			} else if err == nil {
				rep.Raced++
				progressed = true
			}
			if err != nil {
				rep.Errors++
				errs = append(errs, err)
				r.log.Errorw("expire assignment", err, map[string]any{"assignment_id": a.ID, "booking_id": a.BookingID})
			}
		}
		if len(due) < r.cfg.BatchSize || !progressed {
			break
		}
	}

	stalled, err := r.store.ListStalledBookings(ctx, r.cfg.BatchSize)
	if err != nil {
		errs = append(errs, fmt.Errorf("list stalled bookings: %w", err))
	}
	for _, b := range stalled {
		res, err := r.coord.Cascade(ctx, b.ID)
		if err != nil {
			rep.Errors++
			errs = append(errs, err)
			r.log.Errorw("resume stalled booking", err, map[string]any{"booking_id": b.ID})
			continue
		}
		if res.Promoted != nil || res.Exhausted || res.Confirmed != nil {
			rep.Healed++
		}
	}

	rep.Duration = time.Since(start)
	observe(rep)
	err = errors.Join(errs...)
	if err != nil {
		monitoring.CaptureException(err, monitoring.Tags("reconciler"))
	}
	if rep.Expired+rep.Healed+rep.Errors > 0 {
		r.log.Infow("reconcile sweep", map[string]any{
			"scanned": rep.Scanned, "expired": rep.Expired, "raced": rep.Raced,
			"healed": rep.Healed, "errors": rep.Errors, "duration_ms": rep.Duration.Milliseconds(),
		})
	}
	return rep, err
}

// Run sweeps once immediately, so deadlines missed while the process was
// down are enforced on start, then on every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	defer monitoring.Recover("reconciler")
	_, _ = r.Sweep(ctx)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, _ = r.Sweep(ctx)
		}
	}
}

var _ Store = (store.Store)(nil)

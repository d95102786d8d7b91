package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/jobroute/core/dispatch"
	"github.com/kilianp07/jobroute/core/model"
	"github.com/kilianp07/jobroute/core/notify"
	"github.com/kilianp07/jobroute/core/performance"
	"github.com/kilianp07/jobroute/infra/store/memory"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, string, any, time.Time, model.Priority) (notify.Outcome, error) {
	return notify.DeliveredLive, nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func seed(t *testing.T, st *memory.Store, providers int) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= providers; i++ {
		id := fmt.Sprintf("p%d", i)
		require.NoError(t, st.UpsertProvider(ctx, model.Provider{ID: id, Active: true,
			Coverage: []model.ServiceCoverage{{Kind: model.CoverageZip, Active: true, ZipCodes: []string{"75001"}}}}))
		_, err := st.ApplyOutcome(ctx, id, model.Outcome{Offered: 10, Accepted: 11 - i}, t0)
		require.NoError(t, err)
	}
	require.NoError(t, st.UpsertBooking(ctx, model.Booking{ID: "b1", Status: model.BookingPending, Location: model.Location{Zip: "75001"}}))
}

func coordinator(t *testing.T, st *memory.Store, clk *clock) *dispatch.Coordinator {
	t.Helper()
	off := false
	c, err := dispatch.NewCoordinator(dispatch.Config{LocalTimers: &off}, dispatch.Deps{
		Store: st, Notifier: nopNotifier{}, Outcomes: performance.NewTracker(st, nil, 0), Clock: clk.Now,
	})
	require.NoError(t, err)
	return c
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate(7*time.Minute))
	cfg.Interval = 7 * time.Minute
	assert.Error(t, cfg.Validate(7*time.Minute))
	cfg.Interval = 0
	assert.Error(t, cfg.Validate(7*time.Minute))
}

func TestSweepAfterRestartExpiresAndCascades(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	st := memory.New()
	seed(t, st, 2)
	clk := &clock{t: t0}
	ctx := context.Background()

	_, err := coordinator(t, st, clk).Assign(ctx, "b1", model.MethodAutomatic, "")
	require.NoError(t, err)

	// A fresh coordinator and reconciler, as after a process restart.
	clk.Set(t0.Add(7*time.Minute + time.Second))
	r := New(Config{}, st, coordinator(t, st, clk), nil)
	r.SetClock(clk.Now)
	rep, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Expired)

	as, err := st.ListByBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.AssignmentExpired, as[0].Status)
	assert.Equal(t, model.AssignmentPending, as[1].Status)
	assert.True(t, as[1].ExpiresAt.Equal(clk.Now().Add(7*time.Minute)))

	rep, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Expired)
	assert.Equal(t, 2.0, testutil.ToFloat64(sweepsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(expiredTotal))
}

func TestConcurrentSweepsExpireOnce(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	st := memory.New()
	seed(t, st, 3)
	clk := &clock{t: t0}
	ctx := context.Background()
	_, err := coordinator(t, st, clk).Assign(ctx, "b1", model.MethodAutomatic, "")
	require.NoError(t, err)
	clk.Set(t0.Add(8 * time.Minute))

	var wg sync.WaitGroup
	reports := make([]Report, 4)
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := New(Config{}, st, coordinator(t, st, clk), nil)
			r.SetClock(clk.Now)
			reports[i], _ = r.Sweep(ctx)
		}(i)
	}
	wg.Wait()

	total := 0
	for _, rep := range reports {
		total += rep.Expired
	}
	assert.Equal(t, 1, total)
	prof, err := st.GetProfile(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, prof.Metrics.JobsNoResponse)

	pending := 0
	as, _ := st.ListByBooking(ctx, "b1")
	for _, a := range as {
		if a.Status == model.AssignmentPending {
			pending++
		}
	}
	assert.Equal(t, 1, pending)
}

func TestSweepHealsStalledBooking(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	st := memory.New()
	seed(t, st, 2)
	clk := &clock{t: t0}
	ctx := context.Background()
	c := coordinator(t, st, clk)
	_, err := c.Assign(ctx, "b1", model.MethodAutomatic, "")
	require.NoError(t, err)

	as, _ := st.ListByBooking(ctx, "b1")
	ok, err := st.Transition(ctx, as[0].ID, model.AssignmentPending, model.AssignmentUpdate{Status: model.AssignmentDeclined, At: t0})
	require.NoError(t, err)
	require.True(t, ok)

	r := New(Config{}, st, c, nil)
	r.SetClock(clk.Now)
	rep, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Healed)
	as, _ = st.ListByBooking(ctx, "b1")
	assert.Equal(t, model.AssignmentPending, as[1].Status)
}

// flakyBookings fails the next n booking transitions to failTo.
type flakyBookings struct {
	*memory.Store
	mu     sync.Mutex
	failTo model.BookingStatus
	n      int
}

func (f *flakyBookings) TransitionBooking(ctx context.Context, id string, from []model.BookingStatus, to model.BookingStatus, providerID string, at time.Time) (bool, error) {
	f.mu.Lock()
	fail := to == f.failTo && f.n > 0
	if fail {
		f.n--
	}
	f.mu.Unlock()
	if fail {
		return false, errors.New("db down")
	}
	return f.Store.TransitionBooking(ctx, id, from, to, providerID, at)
}

func TestSweepEscalatesAfterFailedEscalation(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	st := memory.New()
	seed(t, st, 1)
	// Both escalation attempts of the first sweep fail: the one after the
	// expiry and the one from the stalled pass.
	fs := &flakyBookings{Store: st, failTo: model.BookingAwaitingManual, n: 2}
	clk := &clock{t: t0}
	ctx := context.Background()
	off := false
	c, err := dispatch.NewCoordinator(dispatch.Config{LocalTimers: &off}, dispatch.Deps{
		Store: fs, Notifier: nopNotifier{}, Outcomes: performance.NewTracker(st, nil, 0), Clock: clk.Now,
	})
	require.NoError(t, err)
	_, err = c.Assign(ctx, "b1", model.MethodAutomatic, "")
	require.NoError(t, err)

	clk.Set(t0.Add(8 * time.Minute))
	r := New(Config{}, fs, c, nil)
	r.SetClock(clk.Now)
	rep, err := r.Sweep(ctx)
	assert.ErrorContains(t, err, "db down")
	assert.Equal(t, 1, rep.Expired)
	b, err := st.GetBooking(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, model.BookingPending, b.Status)

	rep, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Healed)
	b, err = st.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.BookingAwaitingManual, b.Status)
	as, err := st.ListByBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.AssignmentExpired, as[0].Status)

	rep, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Healed, "an escalated booking is no longer stalled")
}

type brokenStore struct{}

func (brokenStore) ListExpired(context.Context, time.Time, int) ([]model.Assignment, error) {
	return nil, errors.New("db down")
}

func (brokenStore) ListStalledBookings(context.Context, int) ([]model.Booking, error) {
	return nil, nil
}

func TestSweepReportsStoreErrors(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	r := New(Config{}, brokenStore{}, nil, nil)
	_, err := r.Sweep(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestRunStopsOnCancel(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	st := memory.New()
	clk := &clock{t: t0}
	r := New(Config{Interval: 10 * time.Millisecond}, st, coordinator(t, st, clk), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	require.Eventually(t, func() bool { return testutil.ToFloat64(sweepsTotal) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

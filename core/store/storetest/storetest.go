// Package storetest is a conformance suite run against every store.Store
// backend.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/jobroute/core/model"
	"github.com/kilianp07/jobroute/core/store"
)

// Factory returns a fresh, empty store. Cleanup is registered on t.
type Factory func(t *testing.T) store.Store

// Base is the reference instant of the suite, truncated to microseconds so
// every backend can round-trip it.
var Base = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// Run executes every conformance test.
func Run(t *testing.T, newStore Factory) {
	tests := map[string]func(*testing.T, store.Store){
		"ChainInvariants":   testChainInvariants,
		"TransitionCAS":     testTransitionCAS,
		"OneAccepted":       testOneAccepted,
		"ConcurrentCAS":     testConcurrentCAS,
		"PromoteNext":       testPromoteNext,
		"CancelSiblings":    testCancelSiblings,
		"ListExpired":       testListExpired,
		"Query":             testQuery,
		"BookingTransition": testBookingTransition,
		"StalledBookings":   testStalledBookings,
		"Providers":         testProviders,
		"Queue":             testQueue,
		"NotFound":          testNotFound,
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) { fn(t, newStore(t)) })
	}
}

// Chain builds n assignments for bookingID: the first pending, the rest
// scheduled, with orders 1..n.
func Chain(bookingID string, n int, window time.Duration) []model.Assignment {
	out := make([]model.Assignment, n)
	for i := range out {
		a := model.Assignment{
			ID:         fmt.Sprintf("%s-a%d", bookingID, i+1),
			BookingID:  bookingID,
			ProviderID: fmt.Sprintf("p%d", i+1),
			Method:     model.MethodAutomatic,
			Order:      i + 1,
			Status:     model.AssignmentScheduled,
			Score:      float64(90 - i),
			CreatedAt:  Base,
			UpdatedAt:  Base,
		}
		if i == 0 {
			a.Status = model.AssignmentPending
			a.AssignedAt = Base
			a.ExpiresAt = Base.Add(window)
		}
		out[i] = a
	}
	return out
}

func booking(id, customer string) model.Booking {
	return model.Booking{
		ID: id, CustomerID: customer, ServiceType: "plumbing",
		Location:  model.Location{Point: &model.Point{Lat: 48.85, Lng: 2.35}, Zip: "75001"},
		Status:    model.BookingPending,
		CreatedAt: Base, UpdatedAt: Base,
	}
}

func testChainInvariants(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateAssignments(ctx, Chain("b1", 3, 7*time.Minute)))

	got, err := s.ListByBooking(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, a := range got {
		assert.Equal(t, i+1, a.Order)
	}
	assert.Equal(t, model.AssignmentPending, got[0].Status)
	assert.True(t, got[0].ExpiresAt.Equal(Base.Add(7*time.Minute)))

	second := model.Assignment{ID: "b1-x", BookingID: "b1", ProviderID: "px", Order: 4,
		Status: model.AssignmentPending, CreatedAt: Base, UpdatedAt: Base}
	assert.ErrorIs(t, s.CreateAssignments(ctx, []model.Assignment{second}), store.ErrConflict)

	stale := model.Assignment{ID: "b1-y", BookingID: "b1", ProviderID: "py", Order: 2,
		Status: model.AssignmentScheduled, CreatedAt: Base, UpdatedAt: Base}
	assert.ErrorIs(t, s.CreateAssignments(ctx, []model.Assignment{stale}), store.ErrConflict)

	got, err = s.ListByBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, got, 3, "failed inserts must not leave rows")
}

func testTransitionCAS(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateAssignments(ctx, Chain("b1", 2, 7*time.Minute)))

	at := Base.Add(2 * time.Minute)
	upd := model.AssignmentUpdate{
		Status: model.AssignmentDeclined, At: at, RespondedAt: at,
		ResponseTime: 2 * time.Minute, DeclineReason: "busy",
	}
	ok, err := s.Transition(ctx, "b1-a1", model.AssignmentPending, upd)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Transition(ctx, "b1-a1", model.AssignmentPending, model.AssignmentUpdate{Status: model.AssignmentExpired, At: at})
	require.NoError(t, err)
	assert.False(t, ok, "second swap from pending must fail")

	a, err := s.GetAssignment(ctx, "b1-a1")
	require.NoError(t, err)
	assert.Equal(t, model.AssignmentDeclined, a.Status)
	assert.Equal(t, "busy", a.DeclineReason)
	assert.Equal(t, 2*time.Minute, a.ResponseTime)
	assert.True(t, a.RespondedAt.Equal(at))

	_, err = s.Transition(ctx, "missing", model.AssignmentPending, upd)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testOneAccepted(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateAssignments(ctx, Chain("b1", 2, 7*time.Minute)))
	ok, err := s.Transition(ctx, "b1-a1", model.AssignmentPending, model.AssignmentUpdate{Status: model.AssignmentAccepted, At: Base})
	require.NoError(t, err)
	require.True(t, ok)

	manual := model.Assignment{ID: "b1-m", BookingID: "b1", ProviderID: "pm", Method: model.MethodManual, Order: 3,
		Status: model.AssignmentAccepted, CreatedAt: Base, UpdatedAt: Base}
	assert.ErrorIs(t, s.CreateAssignments(ctx, []model.Assignment{manual}), store.ErrConflict)

	require.NoError(t, s.CreateAssignments(ctx, Chain("b2", 2, 7*time.Minute)))
	manual.ID, manual.BookingID = "b2-m", "b2"
	require.NoError(t, s.CreateAssignments(ctx, []model.Assignment{manual}))
	ok, err = s.Transition(ctx, "b2-a1", model.AssignmentPending, model.AssignmentUpdate{Status: model.AssignmentAccepted, At: Base})
	require.NoError(t, err)
	assert.False(t, ok, "a booking keeps a single accepted assignment")

	a, err := s.GetAssignment(ctx, "b2-a1")
	require.NoError(t, err)
	assert.Equal(t, model.AssignmentPending, a.Status)
}

func testConcurrentCAS(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateAssignments(ctx, Chain("b1", 1, 7*time.Minute)))

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := model.AssignmentExpired
			if i%2 == 0 {
				to = model.AssignmentAccepted
			}
			ok, err := s.Transition(ctx, "b1-a1", model.AssignmentPending, model.AssignmentUpdate{Status: to, At: Base})
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func testPromoteNext(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateAssignments(ctx, Chain("b1", 3, 7*time.Minute)))
	at := Base.Add(time.Minute)

	_, ok, err := s.PromoteNext(ctx, "b1", at, at.Add(7*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "a pending assignment blocks promotion")

	_, err = s.Transition(ctx, "b1-a1", model.AssignmentPending, model.AssignmentUpdate{Status: model.AssignmentDeclined, At: at})
	require.NoError(t, err)

	next, ok, err := s.PromoteNext(ctx, "b1", at, at.Add(7*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b1-a2", next.ID)
	assert.Equal(t, model.AssignmentPending, next.Status)
	assert.True(t, next.ExpiresAt.Equal(at.Add(7*time.Minute)))

	_, ok, err = s.PromoteNext(ctx, "b1", at, at.Add(7*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Transition(ctx, "b1-a2", model.AssignmentPending, model.AssignmentUpdate{Status: model.AssignmentAccepted, At: at})
	require.NoError(t, err)
	_, ok, err = s.PromoteNext(ctx, "b1", at, at.Add(7*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "an accepted assignment blocks promotion")

	_, ok, err = s.PromoteNext(ctx, "none", at, at)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testCancelSiblings(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateAssignments(ctx, Chain("b1", 3, 7*time.Minute)))
	_, err := s.Transition(ctx, "b1-a1", model.AssignmentPending, model.AssignmentUpdate{Status: model.AssignmentAccepted, At: Base})
	require.NoError(t, err)

	cancelled, err := s.CancelSiblings(ctx, "b1", "b1-a1", Base)
	require.NoError(t, err)
	assert.Len(t, cancelled, 2)

	got, err := s.ListByBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.AssignmentAccepted, got[0].Status)
	assert.Equal(t, model.AssignmentCancelled, got[1].Status)
	assert.Equal(t, model.AssignmentCancelled, got[2].Status)
}

func testListExpired(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateAssignments(ctx, Chain("b1", 2, 7*time.Minute)))
	require.NoError(t, s.CreateAssignments(ctx, Chain("b2", 1, 3*time.Minute)))

	got, err := s.ListExpired(ctx, Base.Add(5*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b2-a1", got[0].ID)

	got, err = s.ListExpired(ctx, Base.Add(7*time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, got, 1, "deadline equal to now is not yet expired")

	got, err = s.ListExpired(ctx, Base.Add(8*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b2-a1", got[0].ID, "oldest deadline first")

	got, err = s.ListExpired(ctx, Base.Add(8*time.Minute), 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func testQuery(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertBooking(ctx, booking("b1", "c1")))
	require.NoError(t, s.UpsertBooking(ctx, booking("b2", "c2")))
	require.NoError(t, s.CreateAssignments(ctx, Chain("b1", 3, 7*time.Minute)))
	require.NoError(t, s.CreateAssignments(ctx, Chain("b2", 2, 7*time.Minute)))

	res, total, err := s.Query(ctx, store.AssignmentQuery{Role: store.RoleProvider, Identity: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, res, 2)

	res, total, err = s.Query(ctx, store.AssignmentQuery{Role: store.RoleCustomer, Identity: "c1"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	for _, a := range res {
		assert.Equal(t, "b1", a.BookingID)
	}

	res, total, err = s.Query(ctx, store.AssignmentQuery{
		Role: store.RoleAdmin, Statuses: []model.AssignmentStatus{model.AssignmentPending},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, a := range res {
		assert.Equal(t, model.AssignmentPending, a.Status)
	}

	res, total, err = s.Query(ctx, store.AssignmentQuery{Role: store.RoleAdmin, Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, res, 2)

	res, _, err = s.Query(ctx, store.AssignmentQuery{Role: store.RoleAdmin, Page: 9, PageSize: 2})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func testBookingTransition(t *testing.T, s store.Store) {
	ctx := context.Background()
	b := booking("b1", "c1")
	require.NoError(t, s.UpsertBooking(ctx, b))

	got, err := s.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "plumbing", got.ServiceType)
	require.NotNil(t, got.Location.Point)
	assert.Equal(t, 48.85, got.Location.Point.Lat)
	assert.Equal(t, "75001", got.Location.Zip)

	from := []model.BookingStatus{model.BookingPending, model.BookingAwaitingManual}
	ok, err := s.TransitionBooking(ctx, "b1", from, model.BookingConfirmed, "p1", Base)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.TransitionBooking(ctx, "b1", from, model.BookingConfirmed, "p2", Base)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err = s.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, got.Status)
	assert.Equal(t, "p1", got.ProviderID)
}

func testStalledBookings(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertBooking(ctx, booking("stalled", "c1")))
	require.NoError(t, s.UpsertBooking(ctx, booking("healthy", "c1")))
	require.NoError(t, s.UpsertBooking(ctx, booking("exhausted", "c1")))
	require.NoError(t, s.UpsertBooking(ctx, booking("fresh", "c1")))
	require.NoError(t, s.UpsertBooking(ctx, booking("unconfirmed", "c1")))
	require.NoError(t, s.CreateAssignments(ctx, Chain("stalled", 2, time.Minute)))
	require.NoError(t, s.CreateAssignments(ctx, Chain("healthy", 2, time.Minute)))
	require.NoError(t, s.CreateAssignments(ctx, Chain("exhausted", 1, time.Minute)))
	require.NoError(t, s.CreateAssignments(ctx, Chain("unconfirmed", 1, time.Minute)))
	for id, to := range map[string]model.AssignmentStatus{
		"stalled-a1":     model.AssignmentDeclined,
		"exhausted-a1":   model.AssignmentExpired,
		"unconfirmed-a1": model.AssignmentAccepted,
	} {
		ok, err := s.Transition(ctx, id, model.AssignmentPending, model.AssignmentUpdate{Status: to, At: Base})
		require.NoError(t, err)
		require.True(t, ok)
	}

	got, err := s.ListStalledBookings(ctx, 10)
	require.NoError(t, err)
	var ids []string
	for _, b := range got {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"exhausted", "stalled", "unconfirmed"}, ids)
}

func testProviders(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := model.Provider{
		ID: "p1", Name: "Ada", ServiceTypes: []string{"plumbing"}, Active: true,
		Home: model.Location{Point: &model.Point{Lat: 48.86, Lng: 2.34}},
		Coverage: []model.ServiceCoverage{
			{Kind: model.CoverageRadius, Active: true, Center: model.Point{Lat: 48.86, Lng: 2.34}, RadiusMiles: 10},
			{Kind: model.CoverageZip, Active: true, ZipCodes: []string{"75001", "75002"}},
		},
	}
	require.NoError(t, s.UpsertProvider(ctx, p))
	require.NoError(t, s.UpsertProvider(ctx, model.Provider{ID: "p2", ServiceTypes: []string{"electric"}, Active: true}))
	require.NoError(t, s.UpsertProvider(ctx, model.Provider{ID: "p3", ServiceTypes: []string{"plumbing"}, Active: false}))

	cands, err := s.ListCandidates(ctx, "plumbing")
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "p1", cands[0].Provider.ID)
	require.Len(t, cands[0].Provider.Coverage, 2)
	assert.Equal(t, []string{"75001", "75002"}, cands[0].Provider.Coverage[1].ZipCodes)
	require.NotNil(t, cands[0].Provider.Home.Point)

	m, err := s.ApplyOutcome(ctx, "p1", model.OutcomeOffered, Base)
	require.NoError(t, err)
	assert.Equal(t, 1, m.JobsOffered)
	m, err = s.ApplyOutcome(ctx, "p1", model.Outcome{Accepted: 1, Completed: 1, OnTime: 1}, Base)
	require.NoError(t, err)
	assert.Equal(t, 1, m.JobsOffered)
	assert.Equal(t, 1, m.JobsAccepted)
	assert.Equal(t, 1, m.OnTime)

	sc := model.ScoreBreakdown{Composite: 72, Distance: 50, Performance: 80, Reliability: 90, Consistency: 50, Availability: 100}
	require.NoError(t, s.SaveScores(ctx, "p1", sc, Base))
	require.NoError(t, s.AppendHistory(ctx, model.PerformanceHistoryRecord{
		ProviderID: "p1", BookingID: "b1", Rating: 5, OnTime: true, DistanceMiles: 2.5, CompletedAt: Base, DecayWeight: 1,
	}))

	prof, err := s.GetProfile(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, sc, prof.Metrics.CachedScores)
	assert.Equal(t, 1, prof.Metrics.JobsCompleted)
	require.Len(t, prof.History, 1)
	assert.Equal(t, 5.0, prof.History[0].Rating)
	assert.True(t, prof.History[0].OnTime)

	ids, err := s.ListProviderIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3"}, ids)
}

func testQueue(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Enqueue(ctx, model.QueueEntry{
			ID: fmt.Sprintf("q%d", i), Identity: "p1", Event: "new_job_assignment",
			Payload: []byte(`{"n":1}`), MaxAttempts: 3, Deadline: Base.Add(time.Hour),
			CreatedAt: Base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, s.Enqueue(ctx, model.QueueEntry{ID: "other", Identity: "p2", MaxAttempts: 3, CreatedAt: Base}))

	got, err := s.Pending(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"q0", "q1", "q2"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.JSONEq(t, `{"n":1}`, string(got[0].Payload))
	assert.True(t, got[0].Deadline.Equal(Base.Add(time.Hour)))

	n, err := s.IncrementAttempts(ctx, "q0")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.IncrementAttempts(ctx, "q0")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.DeleteEntry(ctx, "q1"))
	assert.ErrorIs(t, s.DeleteEntry(ctx, "q1"), store.ErrNotFound)

	ids, err := s.Identities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids)

	got, err = s.Pending(ctx, "p2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Deadline.IsZero())
}

func testNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.GetAssignment(ctx, "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetBooking(ctx, "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetProfile(ctx, "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.IncrementAttempts(ctx, "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

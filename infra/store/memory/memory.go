// Package memory is an in-process implementation of store.Store. Each method
// runs under one mutex, which gives the same compare-and-swap guarantees as a
// single-row conditional UPDATE.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/jobroute/core/model"
	"github.com/kilianp07/jobroute/core/store"
)

// Store keeps every entity in maps.
type Store struct {
	mu          sync.Mutex
	assignments map[string]model.Assignment
	bookings    map[string]model.Booking
	providers   map[string]model.Provider
	metrics     map[string]model.PerformanceMetrics
	history     map[string][]model.PerformanceHistoryRecord
	queue       []model.QueueEntry
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		assignments: make(map[string]model.Assignment),
		bookings:    make(map[string]model.Booking),
		providers:   make(map[string]model.Provider),
		metrics:     make(map[string]model.PerformanceMetrics),
		history:     make(map[string][]model.PerformanceHistoryRecord),
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) byBooking(bookingID string) []model.Assignment {
	var out []model.Assignment
	for _, a := range s.assignments {
		if a.BookingID == bookingID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// CreateAssignments inserts as atomically, refusing a second pending or
// accepted assignment per booking.
func (s *Store) CreateAssignments(_ context.Context, as []model.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	maxOrder := map[string]int{}
	hasPending := map[string]bool{}
	hasAccepted := map[string]bool{}
	for _, a := range as {
		if _, ok := maxOrder[a.BookingID]; ok {
			continue
		}
		for _, ex := range s.byBooking(a.BookingID) {
			if ex.Order > maxOrder[a.BookingID] {
				maxOrder[a.BookingID] = ex.Order
			}
			switch ex.Status {
			case model.AssignmentPending:
				hasPending[a.BookingID] = true
			case model.AssignmentAccepted:
				hasAccepted[a.BookingID] = true
			}
		}
		if _, ok := maxOrder[a.BookingID]; !ok {
			maxOrder[a.BookingID] = 0
		}
	}
	for _, a := range as {
		if _, dup := s.assignments[a.ID]; dup {
			return fmt.Errorf("assignment %s exists: %w", a.ID, store.ErrConflict)
		}
		if a.Order <= maxOrder[a.BookingID] {
			return fmt.Errorf("order %d not increasing for booking %s: %w", a.Order, a.BookingID, store.ErrConflict)
		}
		maxOrder[a.BookingID] = a.Order
		switch a.Status {
		case model.AssignmentPending:
			if hasPending[a.BookingID] {
				return fmt.Errorf("booking %s already has a pending assignment: %w", a.BookingID, store.ErrConflict)
			}
			hasPending[a.BookingID] = true
		case model.AssignmentAccepted:
			if hasAccepted[a.BookingID] {
				return fmt.Errorf("booking %s already has an accepted assignment: %w", a.BookingID, store.ErrConflict)
			}
			hasAccepted[a.BookingID] = true
		}
	}
	for _, a := range as {
		s.assignments[a.ID] = a
	}
	return nil
}

// GetAssignment returns one assignment or store.ErrNotFound.
func (s *Store) GetAssignment(_ context.Context, id string) (model.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return model.Assignment{}, store.ErrNotFound
	}
	return a, nil
}

// ListByBooking returns the chain of a booking ordered by Order.
func (s *Store) ListByBooking(_ context.Context, bookingID string) ([]model.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byBooking(bookingID), nil
}

func applyUpdate(a *model.Assignment, upd model.AssignmentUpdate) {
	a.Status = upd.Status
	a.UpdatedAt = upd.At
	if !upd.RespondedAt.IsZero() {
		a.RespondedAt = upd.RespondedAt
		a.ResponseTime = upd.ResponseTime
	}
	if upd.DeclineReason != "" {
		a.DeclineReason = upd.DeclineReason
	}
}

// Transition applies upd when the assignment is currently in from and the
// booking would keep at most one pending and one accepted assignment.
func (s *Store) Transition(_ context.Context, id string, from model.AssignmentStatus, upd model.AssignmentUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if a.Status != from {
		return false, nil
	}
	if upd.Status == model.AssignmentPending || upd.Status == model.AssignmentAccepted {
		for _, sib := range s.byBooking(a.BookingID) {
			if sib.ID != id && sib.Status == upd.Status {
				return false, nil
			}
		}
	}
	applyUpdate(&a, upd)
	s.assignments[id] = a
	return true, nil
}

// PromoteNext makes the lowest-order scheduled assignment pending unless the
// booking already has a pending or accepted one.
func (s *Store) PromoteNext(_ context.Context, bookingID string, assignedAt, expiresAt time.Time) (model.Assignment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next *model.Assignment
	for _, a := range s.byBooking(bookingID) {
		switch a.Status {
		case model.AssignmentPending, model.AssignmentAccepted:
			return model.Assignment{}, false, nil
		case model.AssignmentScheduled:
			if next == nil {
				a := a
				next = &a
			}
		}
	}
	if next == nil {
		return model.Assignment{}, false, nil
	}
	next.Status = model.AssignmentPending
	next.AssignedAt = assignedAt
	next.ExpiresAt = expiresAt
	next.UpdatedAt = assignedAt
	s.assignments[next.ID] = *next
	return *next, true, nil
}

// CancelSiblings cancels every scheduled or pending assignment of a booking
// except exceptID.
func (s *Store) CancelSiblings(_ context.Context, bookingID, exceptID string, at time.Time) ([]model.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Assignment
	for _, a := range s.byBooking(bookingID) {
		if a.ID == exceptID {
			continue
		}
		if a.Status != model.AssignmentScheduled && a.Status != model.AssignmentPending {
			continue
		}
		a.Status = model.AssignmentCancelled
		a.UpdatedAt = at
		s.assignments[a.ID] = a
		out = append(out, a)
	}
	return out, nil
}

// ListExpired returns overdue pending assignments, earliest deadline first.
func (s *Store) ListExpired(_ context.Context, now time.Time, limit int) ([]model.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Assignment
	for _, a := range s.assignments {
		if a.Overdue(now) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(out[j].ExpiresAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Query filters, sorts newest first and paginates.
func (s *Store) Query(_ context.Context, q store.AssignmentQuery) ([]model.Assignment, int, error) {
	q.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[model.AssignmentStatus]bool{}
	for _, st := range q.Statuses {
		want[st] = true
	}
	var matched []model.Assignment
	for _, a := range s.assignments {
		if len(want) > 0 && !want[a.Status] {
			continue
		}
		switch q.Role {
		case store.RoleProvider:
			if a.ProviderID != q.Identity {
				continue
			}
		case store.RoleCustomer:
			if s.bookings[a.BookingID].CustomerID != q.Identity {
				continue
			}
		}
		matched = append(matched, a)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		if matched[i].BookingID != matched[j].BookingID {
			return matched[i].BookingID < matched[j].BookingID
		}
		return matched[i].Order < matched[j].Order
	})
	total := len(matched)
	start := q.Offset()
	if start > total {
		start = total
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// GetBooking returns one booking or store.ErrNotFound.
func (s *Store) GetBooking(_ context.Context, id string) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, store.ErrNotFound
	}
	return b, nil
}

// UpsertBooking inserts or replaces a booking.
func (s *Store) UpsertBooking(_ context.Context, b model.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b
	return nil
}

// TransitionBooking sets the booking status when it is one of from.
func (s *Store) TransitionBooking(_ context.Context, id string, from []model.BookingStatus, to model.BookingStatus, providerID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return false, store.ErrNotFound
	}
	match := false
	for _, f := range from {
		if b.Status == f {
			match = true
			break
		}
	}
	if !match {
		return false, nil
	}
	b.Status = to
	if providerID != "" {
		b.ProviderID = providerID
	}
	b.UpdatedAt = at
	s.bookings[id] = b
	return true, nil
}

// ListStalledBookings returns pending bookings with a chain but no pending
// assignment.
func (s *Store) ListStalledBookings(_ context.Context, limit int) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.Status != model.BookingPending {
			continue
		}
		chain := s.byBooking(b.ID)
		open := false
		for _, a := range chain {
			if a.Status == model.AssignmentPending {
				open = true
			}
		}
		if len(chain) > 0 && !open {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpsertProvider inserts or replaces a provider and creates its counters on
// first sight. Coverage areas are copied.
func (s *Store) UpsertProvider(_ context.Context, p model.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Coverage = append([]model.ServiceCoverage(nil), p.Coverage...)
	p.ServiceTypes = append([]string(nil), p.ServiceTypes...)
	for i := range p.Coverage {
		p.Coverage[i].ProviderID = p.ID
	}
	s.providers[p.ID] = p
	if _, ok := s.metrics[p.ID]; !ok {
		s.metrics[p.ID] = model.PerformanceMetrics{ProviderID: p.ID}
	}
	return nil
}

func (s *Store) profile(id string) model.ProviderProfile {
	h := append([]model.PerformanceHistoryRecord(nil), s.history[id]...)
	return model.ProviderProfile{Provider: s.providers[id], Metrics: s.metrics[id], History: h}
}

// GetProfile returns a provider with its counters and history.
func (s *Store) GetProfile(_ context.Context, providerID string) (model.ProviderProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[providerID]; !ok {
		return model.ProviderProfile{}, store.ErrNotFound
	}
	return s.profile(providerID), nil
}

// ListCandidates returns active providers offering serviceType, by id.
func (s *Store) ListCandidates(_ context.Context, serviceType string) ([]model.ProviderProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ProviderProfile
	for id, p := range s.providers {
		if p.Active && p.Offers(serviceType) {
			out = append(out, s.profile(id))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider.ID < out[j].Provider.ID })
	return out, nil
}

// ListProviderIDs returns every provider id, sorted.
func (s *Store) ListProviderIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.providers))
	for id := range s.providers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// ApplyOutcome increments the counters of a provider.
func (s *Store) ApplyOutcome(_ context.Context, providerID string, o model.Outcome, at time.Time) (model.PerformanceMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.metrics[providerID]
	m.ProviderID = providerID
	m.Apply(o)
	m.UpdatedAt = at
	s.metrics[providerID] = m
	return m, nil
}

// SaveScores caches the latest score breakdown.
func (s *Store) SaveScores(_ context.Context, providerID string, sc model.ScoreBreakdown, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.metrics[providerID]
	m.ProviderID = providerID
	m.CachedScores = sc
	m.UpdatedAt = at
	s.metrics[providerID] = m
	return nil
}

// AppendHistory records one completed job.
func (s *Store) AppendHistory(_ context.Context, rec model.PerformanceHistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[rec.ProviderID] = append(s.history[rec.ProviderID], rec)
	return nil
}

// Enqueue appends an undelivered notification.
func (s *Store) Enqueue(_ context.Context, e model.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, e)
	return nil
}

// Pending returns the queued entries of identity in insertion order.
func (s *Store) Pending(_ context.Context, identity string) ([]model.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.QueueEntry
	for _, e := range s.queue {
		if e.Identity == identity {
			out = append(out, e)
		}
	}
	return out, nil
}

// DeleteEntry removes a queued entry.
func (s *Store) DeleteEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.queue {
		if e.ID == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

// IncrementAttempts bumps and returns the attempt counter of an entry.
func (s *Store) IncrementAttempts(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.queue {
		if s.queue[i].ID == id {
			s.queue[i].Attempts++
			return s.queue[i].Attempts, nil
		}
	}
	return 0, store.ErrNotFound
}

// Identities lists identities with queued entries.
func (s *Store) Identities(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, e := range s.queue {
		if !seen[e.Identity] {
			seen[e.Identity] = true
			out = append(out, e.Identity)
		}
	}
	sort.Strings(out)
	return out, nil
}

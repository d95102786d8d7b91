// Package store declares the persistence contracts of the dispatch engine.
//
// Every status change goes through a compare-and-swap method that applies
// only when the current status matches the expected one. This is the sole
// concurrency control: callers never hold in-process locks across calls, and
// several processes may share one backend.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/jobroute/core/model"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would break a chain invariant:
	// a second pending or accepted assignment, or a non increasing order.
	ErrConflict = errors.New("conflict")
)

// Role selects which side of an assignment a query is scoped to.
type Role string

const (
	RoleProvider Role = "provider"
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// AssignmentQuery filters a paginated assignment listing. Page is 1-based.
type AssignmentQuery struct {
	Role     Role
	Identity string
	Statuses []model.AssignmentStatus
	Page     int
	PageSize int
}

// Normalize fills pagination defaults.
func (q *AssignmentQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = 20
	}
	if q.PageSize > 200 {
		q.PageSize = 200
	}
}

// Offset returns the number of rows skipped by the current page.
func (q AssignmentQuery) Offset() int { return (q.Page - 1) * q.PageSize }

// AssignmentStore persists assignment chains.
type AssignmentStore interface {
	// CreateAssignments inserts a chain atomically. It fails with ErrConflict
	// when the booking would end up with two pending or two accepted
	// assignments.
	CreateAssignments(ctx context.Context, as []model.Assignment) error
	GetAssignment(ctx context.Context, id string) (model.Assignment, error)
	// ListByBooking returns all assignments of a booking ordered by Order.
	ListByBooking(ctx context.Context, bookingID string) ([]model.Assignment, error)
	// Transition moves an assignment from one status to upd.Status if and
	// only if its current status is from. The boolean reports whether the
	// swap happened; it is also false when the swap would give the booking a
	// second pending or accepted assignment.
	Transition(ctx context.Context, id string, from model.AssignmentStatus, upd model.AssignmentUpdate) (bool, error)
	// PromoteNext turns the lowest-order scheduled assignment of a booking
	// into pending, provided the booking has no pending or accepted
	// assignment. The boolean is false when nothing was promoted.
	PromoteNext(ctx context.Context, bookingID string, assignedAt, expiresAt time.Time) (model.Assignment, bool, error)
	// CancelSiblings cancels scheduled and pending assignments of a booking
	// except exceptID and returns the cancelled rows.
	CancelSiblings(ctx context.Context, bookingID, exceptID string, at time.Time) ([]model.Assignment, error)
	// ListExpired returns pending assignments whose deadline is before now,
	// oldest deadline first.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]model.Assignment, error)
	// Query returns one page of assignments and the total match count.
	Query(ctx context.Context, q AssignmentQuery) ([]model.Assignment, int, error)
}

// BookingStore persists bookings.
type BookingStore interface {
	GetBooking(ctx context.Context, id string) (model.Booking, error)
	UpsertBooking(ctx context.Context, b model.Booking) error
	// TransitionBooking sets status (and providerID when non-empty) if the
	// current status is one of from.
	TransitionBooking(ctx context.Context, id string, from []model.BookingStatus, to model.BookingStatus, providerID string, at time.Time) (bool, error)
	// ListStalledBookings returns pending bookings that have at least one
	// assignment but none pending: a cascade stopped before promoting a
	// scheduled row, an exhausted chain whose escalation was never recorded,
	// or an acceptance whose booking confirmation did not persist.
	ListStalledBookings(ctx context.Context, limit int) ([]model.Booking, error)
}

// ProviderStore persists providers, their counters and history.
type ProviderStore interface {
	UpsertProvider(ctx context.Context, p model.Provider) error
	GetProfile(ctx context.Context, providerID string) (model.ProviderProfile, error)
	// ListCandidates returns active providers offering serviceType.
	ListCandidates(ctx context.Context, serviceType string) ([]model.ProviderProfile, error)
	ListProviderIDs(ctx context.Context) ([]string, error)
	// ApplyOutcome increments counters atomically and returns the result.
	ApplyOutcome(ctx context.Context, providerID string, o model.Outcome, at time.Time) (model.PerformanceMetrics, error)
	SaveScores(ctx context.Context, providerID string, s model.ScoreBreakdown, at time.Time) error
	AppendHistory(ctx context.Context, rec model.PerformanceHistoryRecord) error
}

// QueueStore persists undelivered notifications.
type QueueStore interface {
	Enqueue(ctx context.Context, e model.QueueEntry) error
	// Pending returns the entries of identity in FIFO order.
	Pending(ctx context.Context, identity string) ([]model.QueueEntry, error)
	DeleteEntry(ctx context.Context, id string) error
	// IncrementAttempts bumps the attempt counter and returns the new value.
	IncrementAttempts(ctx context.Context, id string) (int, error)
	// Identities lists every identity with at least one queued entry.
	Identities(ctx context.Context) ([]string, error)
}

// Store bundles every repository. Backends implement all of them.
type Store interface {
	AssignmentStore
	BookingStore
	ProviderStore
	QueueStore
	Close() error
}

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/jobroute/core/eligibility"
	"github.com/kilianp07/jobroute/core/events"
	"github.com/kilianp07/jobroute/core/logger"
	"github.com/kilianp07/jobroute/core/model"
	"github.com/kilianp07/jobroute/core/monitoring"
	"github.com/kilianp07/jobroute/core/notify"
	"github.com/kilianp07/jobroute/core/presence"
	"github.com/kilianp07/jobroute/core/scoring"
	"github.com/kilianp07/jobroute/core/store"
)

// Notifier delivers events to identities, queueing them when needed.
type Notifier interface {
	Notify(ctx context.Context, identity, event string, payload any, deadline time.Time, prio model.Priority) (notify.Outcome, error)
}

// Broadcaster reaches every online identity of a role.
type Broadcaster interface {
	Broadcast(ctx context.Context, role string, env presence.Envelope) int
}

// OutcomeRecorder updates provider counters.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, providerID string, o model.Outcome) error
}

// DeadlineTimers arms local timers ahead of the reconciler.
type DeadlineTimers interface {
	Arm(key string, deadline time.Time, fire func())
	Disarm(key string)
}

// Deps groups the collaborators of a Coordinator. Store, Notifier and
// Outcomes are required.
type Deps struct {
	Store    store.Store
	Notifier Notifier
	Outcomes OutcomeRecorder
	Admins   Broadcaster
	Timers   DeadlineTimers
	Bus      events.Publisher
	Logger   logger.Logger
	Clock    func() time.Time
}

// Coordinator owns the per-booking assignment state machine. It keeps no
// state between calls: every transition is a compare-and-swap in the store,
// so several coordinators may run against one store.
type Coordinator struct {
	cfg      Config
	store    store.Store
	notifier Notifier
	outcomes OutcomeRecorder
	admins   Broadcaster
	timers   DeadlineTimers
	bus      events.Publisher
	log      logger.Logger
	now      func() time.Time
}

// NewCoordinator validates cfg and deps and builds a Coordinator.
func NewCoordinator(cfg Config, d Deps) (*Coordinator, error) {
	if d.Store == nil || d.Notifier == nil || d.Outcomes == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewCoordinator")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Coordinator{
		cfg:      cfg,
		store:    d.Store,
		notifier: d.Notifier,
		outcomes: d.Outcomes,
		admins:   d.Admins,
		bus:      d.Bus,
		log:      logger.OrNop(d.Logger),
		now:      d.Clock,
	}
	if *cfg.LocalTimers {
		c.timers = d.Timers
	}
	if c.bus == nil {
		c.bus = events.NopPublisher{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Config returns the effective configuration.
func (c *Coordinator) Config() Config { return c.cfg }

// Assign starts dispatch for a booking. Manual assignment confirms
// manualProviderID immediately; automatic assignment ranks eligible
// providers and offers the booking to the best one.
func (c *Coordinator) Assign(ctx context.Context, bookingID string, method model.AssignmentMethod, manualProviderID string) (AssignmentResult, error) {
	const op = "assign"
	if strings.TrimSpace(bookingID) == "" {
		return AssignmentResult{}, validationError(op, "booking id is required")
	}
	switch method {
	case model.MethodAutomatic:
	case model.MethodManual:
		if strings.TrimSpace(manualProviderID) == "" {
			return AssignmentResult{}, validationError(op, "manual assignment requires a provider")
		}
	default:
		return AssignmentResult{}, validationError(op, "unknown method %q", method)
	}

	b, err := c.store.GetBooking(ctx, bookingID)
	if err != nil {
		return AssignmentResult{}, c.lookupError(op, "booking", bookingID, err)
	}
	switch b.Status {
	case model.BookingConfirmed, model.BookingCancelled:
		return AssignmentResult{
			Status: ResultAlreadyResolved, BookingID: b.ID,
			Message: fmt.Sprintf("booking already %s", b.Status),
		}, nil
	}
	chain, err := c.store.ListByBooking(ctx, b.ID)
	if err != nil {
		return AssignmentResult{}, persistenceError(op, err)
	}
	if method == model.MethodManual {
		return c.assignManual(ctx, b, chain, manualProviderID)
	}
	return c.assignAutomatic(ctx, b, chain)
}

func (c *Coordinator) assignAutomatic(ctx context.Context, b model.Booking, chain []model.Assignment) (AssignmentResult, error) {
	const op = "assign"
	scheduled := false
	for i := range chain {
		switch chain[i].Status {
		case model.AssignmentPending, model.AssignmentAccepted:
			a := chain[i]
			return AssignmentResult{
				Status: ResultAlreadyResolved, BookingID: b.ID, Assignment: &a,
				Message: fmt.Sprintf("booking already has a %s assignment", a.Status),
			}, nil
		case model.AssignmentScheduled:
			scheduled = true
		}
	}
	if scheduled {
		// A chain exists but its cascade stalled: resume it.
		res, err := c.Cascade(ctx, b.ID)
		if err != nil {
			return AssignmentResult{}, err
		}
		return c.cascadeResult(b.ID, res), nil
	}

	if b.Status == model.BookingAwaitingManual {
		if _, err := c.store.TransitionBooking(ctx, b.ID, []model.BookingStatus{model.BookingAwaitingManual}, model.BookingPending, "", c.now()); err != nil {
			return AssignmentResult{}, persistenceError(op, err)
		}
	}

	ranked, err := c.rankCandidates(ctx, b, chain)
	if err != nil {
		return AssignmentResult{}, err
	}
	if len(ranked) == 0 {
		if err := c.escalate(ctx, b.ID, len(chain)); err != nil {
			return AssignmentResult{}, err
		}
		return AssignmentResult{Status: ResultAwaitingManual, BookingID: b.ID, Message: MsgAwaitingManual}, nil
	}

	now := c.now()
	base := maxOrder(chain)
	as := make([]model.Assignment, len(ranked))
	for i, r := range ranked {
		a := model.Assignment{
			ID:         uuid.NewString(),
			BookingID:  b.ID,
			ProviderID: r.ProviderID,
			Method:     model.MethodAutomatic,
			Order:      base + i + 1,
			Status:     model.AssignmentScheduled,
			Score:      r.Scores.Composite,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if i == 0 {
			a.Status = model.AssignmentPending
			a.AssignedAt = now
			a.ExpiresAt = now.Add(c.cfg.ResponseWindow)
		}
		as[i] = a
	}
	if err := c.store.CreateAssignments(ctx, as); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return AssignmentResult{Status: ResultAlreadyResolved, BookingID: b.ID, Message: "booking is already being dispatched"}, nil
		}
		return AssignmentResult{}, persistenceError(op, err)
	}
	assignmentsCreated.WithLabelValues(string(model.MethodAutomatic)).Add(float64(len(as)))
	c.log.Infow("assignment chain created", map[string]any{
		"booking_id": b.ID, "chain": len(as), "first_provider": as[0].ProviderID, "score": as[0].Score,
	})
	first := as[0]
	c.offer(ctx, b, first, "")
	return AssignmentResult{Status: ResultOffered, BookingID: b.ID, Assignment: &first, Chain: len(as)}, nil
}

// rankCandidates returns eligible providers not yet offered this booking,
// best first.
func (c *Coordinator) rankCandidates(ctx context.Context, b model.Booking, chain []model.Assignment) ([]scoring.Ranked, error) {
	profiles, err := c.store.ListCandidates(ctx, b.ServiceType)
	if err != nil {
		return nil, persistenceError("rank", err)
	}
	offered := make(map[string]bool, len(chain))
	for _, a := range chain {
		offered[a.ProviderID] = true
	}
	var ins []scoring.Input
	for _, p := range eligibility.Filter(profiles, b.Location) {
		if !offered[p.Provider.ID] {
			ins = append(ins, scoring.InputFromProfile(p))
		}
	}
	return scoring.Rank(ins, b.Location.Point, c.now(), c.cfg.MaxCandidates), nil
}

func (c *Coordinator) assignManual(ctx context.Context, b model.Booking, chain []model.Assignment, providerID string) (AssignmentResult, error) {
	const op = "assign"
	if _, err := c.store.GetProfile(ctx, providerID); err != nil {
		return AssignmentResult{}, c.lookupError(op, "provider", providerID, err)
	}
	for i := range chain {
		if chain[i].Status == model.AssignmentAccepted {
			a := chain[i]
			return AssignmentResult{Status: ResultAlreadyResolved, BookingID: b.ID, Assignment: &a, Message: "booking already accepted"}, nil
		}
	}
	now := c.now()
	a := model.Assignment{
		ID:          uuid.NewString(),
		BookingID:   b.ID,
		ProviderID:  providerID,
		Method:      model.MethodManual,
		Order:       maxOrder(chain) + 1,
		Status:      model.AssignmentAccepted,
		AssignedAt:  now,
		ExpiresAt:   now.Add(c.cfg.ResponseWindow),
		RespondedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.store.CreateAssignments(ctx, []model.Assignment{a}); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// A provider accepted between the chain read and the insert.
			return AssignmentResult{Status: ResultAlreadyResolved, BookingID: b.ID, Message: "booking already accepted"}, nil
		}
		return AssignmentResult{}, persistenceError(op, err)
	}
	assignmentsCreated.WithLabelValues(string(model.MethodManual)).Inc()
	transitions.WithLabelValues(string(model.AssignmentAccepted)).Inc()
	c.publishStatus(a, "", "manual")
	c.confirm(ctx, b, a)
	c.log.Infow("manual assignment", map[string]any{"booking_id": b.ID, "provider_id": providerID})
	return AssignmentResult{Status: ResultAccepted, BookingID: b.ID, Assignment: &a, Chain: 1}, nil
}

// Respond records a provider's answer to a pending offer.
func (c *Coordinator) Respond(ctx context.Context, assignmentID, providerID string, decision model.Decision, reason string) (AssignmentResult, error) {
	const op = "respond"
	if strings.TrimSpace(assignmentID) == "" || strings.TrimSpace(providerID) == "" {
		return AssignmentResult{}, validationError(op, "assignment and provider are required")
	}
	if decision != model.DecisionAccept && decision != model.DecisionDecline {
		return AssignmentResult{}, validationError(op, "decision must be accept or decline, got %q", decision)
	}
	a, err := c.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return AssignmentResult{}, c.lookupError(op, "assignment", assignmentID, err)
	}
	if a.ProviderID != providerID {
		return AssignmentResult{}, permissionError(op, "assignment %s is not offered to %s", assignmentID, providerID)
	}
	if a.Status != model.AssignmentPending {
		return resolved(a), nil
	}
	now := c.now()
	if now.After(a.ExpiresAt) {
		expired, err := c.Expire(ctx, a)
		if err != nil && !expired {
			return AssignmentResult{}, err
		}
		cur, err := c.store.GetAssignment(ctx, a.ID)
		if err != nil {
			cur = a
		}
		res := resolved(cur)
		if cur.Status == model.AssignmentExpired || cur.Status == model.AssignmentPending {
			res.Status, res.Message = ResultExpired, MsgAssignmentExpired
		}
		return res, nil
	}

	upd := model.AssignmentUpdate{At: now, RespondedAt: now, ResponseTime: now.Sub(a.AssignedAt)}
	if decision == model.DecisionAccept {
		upd.Status = model.AssignmentAccepted
	} else {
		upd.Status = model.AssignmentDeclined
		upd.DeclineReason = reason
	}
	ok, err := c.store.Transition(ctx, a.ID, model.AssignmentPending, upd)
	if err != nil {
		return AssignmentResult{}, persistenceError(op, err)
	}
	if !ok {
		cur, err := c.store.GetAssignment(ctx, a.ID)
		if err != nil {
			return AssignmentResult{}, c.lookupError(op, "assignment", a.ID, err)
		}
		if cur.Status == model.AssignmentPending {
			// Refused because a sibling was accepted first.
			return AssignmentResult{Status: ResultAlreadyResolved, BookingID: a.BookingID, Assignment: &cur, Message: "booking already accepted"}, nil
		}
		return resolved(cur), nil
	}
	c.disarm(a.ID)
	a.Status = upd.Status
	a.RespondedAt = now
	a.ResponseTime = upd.ResponseTime
	a.DeclineReason = upd.DeclineReason
	a.UpdatedAt = now
	transitions.WithLabelValues(string(a.Status)).Inc()
	responseTime.WithLabelValues(string(decision)).Observe(a.ResponseTime.Seconds())
	c.publishStatus(a, model.AssignmentPending, reason)

	if decision == model.DecisionAccept {
		c.recordOutcome(ctx, a.ProviderID, model.OutcomeAccepted)
		b, err := c.store.GetBooking(ctx, a.BookingID)
		if err != nil {
			c.fail("load booking for confirmation", err, a.BookingID)
			b = model.Booking{ID: a.BookingID}
		}
		c.confirm(ctx, b, a)
		return AssignmentResult{Status: ResultAccepted, BookingID: a.BookingID, Assignment: &a}, nil
	}

	c.recordOutcome(ctx, a.ProviderID, model.OutcomeDeclined)
	res := AssignmentResult{Status: ResultDeclined, BookingID: a.BookingID, Assignment: &a}
	cres, err := c.Cascade(ctx, a.BookingID)
	if err != nil {
		// The decline is recorded; the reconciler resumes the cascade.
		return res, nil
	}
	res.Next = cres.Promoted
	if cres.Exhausted {
		res.Message = MsgAwaitingManual
	}
	return res, nil
}

// Expire moves a pending assignment to expired and cascades. It reports
// whether this call performed the transition; losing the race is not an
// error.
func (c *Coordinator) Expire(ctx context.Context, a model.Assignment) (bool, error) {
	now := c.now()
	ok, err := c.store.Transition(ctx, a.ID, model.AssignmentPending, model.AssignmentUpdate{Status: model.AssignmentExpired, At: now})
	if err != nil {
		return false, persistenceError("expire", err)
	}
	if !ok {
		return false, nil
	}
	c.disarm(a.ID)
	transitions.WithLabelValues(string(model.AssignmentExpired)).Inc()
	a.Status = model.AssignmentExpired
	a.UpdatedAt = now
	c.publishStatus(a, model.AssignmentPending, "no response")
	c.recordOutcome(ctx, a.ProviderID, model.OutcomeNoResponse)
	c.log.Infow("assignment expired", map[string]any{"assignment_id": a.ID, "booking_id": a.BookingID, "provider_id": a.ProviderID})
	if _, err := c.Cascade(ctx, a.BookingID); err != nil {
		return true, err
	}
	return true, nil
}

// Cascade promotes the next scheduled assignment of a booking. When none is
// left the booking is flagged for manual assignment, and a pending booking
// whose chain already holds an accepted assignment is confirmed. Persistence failures
// are logged and returned; the reconciler heals the booking later.
func (c *Coordinator) Cascade(ctx context.Context, bookingID string) (CascadeResult, error) {
	const op = "cascade"
	b, err := c.store.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return CascadeResult{}, notFoundError(op, "booking", bookingID, err)
		}
		cascades.WithLabelValues("error").Inc()
		c.fail("load booking", err, bookingID)
		return CascadeResult{}, persistenceError(op, err)
	}
	if b.Status != model.BookingPending {
		cascades.WithLabelValues("noop").Inc()
		return CascadeResult{}, nil
	}
	now := c.now()
	next, ok, err := c.store.PromoteNext(ctx, bookingID, now, now.Add(c.cfg.ResponseWindow))
	if err != nil {
		cascades.WithLabelValues("error").Inc()
		c.fail("promote next assignment", err, bookingID)
		return CascadeResult{}, persistenceError(op, err)
	}
	if ok {
		cascades.WithLabelValues("promoted").Inc()
		c.log.Infow("cascaded to next provider", map[string]any{
			"booking_id": bookingID, "assignment_id": next.ID, "provider_id": next.ProviderID, "order": next.Order,
		})
		c.offer(ctx, b, next, model.AssignmentScheduled)
		return CascadeResult{Promoted: &next}, nil
	}

	chain, err := c.store.ListByBooking(ctx, bookingID)
	if err != nil {
		cascades.WithLabelValues("error").Inc()
		c.fail("list chain", err, bookingID)
		return CascadeResult{}, persistenceError(op, err)
	}
	for _, a := range chain {
		if a.Status != model.AssignmentAccepted {
			continue
		}
		// The acceptance persisted but the booking was never confirmed.
		if c.confirm(ctx, b, a) {
			cascades.WithLabelValues("confirmed").Inc()
			return CascadeResult{Confirmed: &a}, nil
		}
		cascades.WithLabelValues("noop").Inc()
		return CascadeResult{}, nil
	}
	for _, a := range chain {
		if a.Status == model.AssignmentPending || a.Status == model.AssignmentScheduled {
			cascades.WithLabelValues("noop").Inc()
			return CascadeResult{}, nil
		}
	}
	if err := c.escalate(ctx, bookingID, len(chain)); err != nil {
		return CascadeResult{}, err
	}
	cascades.WithLabelValues("exhausted").Inc()
	return CascadeResult{Exhausted: true}, nil
}

// escalate flips a pending booking to manual intervention and signals
// administrators.
func (c *Coordinator) escalate(ctx context.Context, bookingID string, attempts int) error {
	now := c.now()
	ok, err := c.store.TransitionBooking(ctx, bookingID, []model.BookingStatus{model.BookingPending}, model.BookingAwaitingManual, "", now)
	if err != nil {
		c.fail("flag booking for manual assignment", err, bookingID)
		return persistenceError("escalate", err)
	}
	if !ok {
		return nil
	}
	manualInterventions.Inc()
	ev := events.ManualInterventionEvent{BookingID: bookingID, Attempts: attempts, At: now}
	c.bus.Publish(ev)
	c.log.Warnf("booking %s awaiting manual assignment after %d offers", bookingID, attempts)
	if c.admins != nil {
		if env, err := presence.NewEnvelope(ev.Name(), ev); err == nil {
			if n := c.admins.Broadcast(ctx, c.cfg.AdminRole, env); n == 0 {
				c.log.Warnf("no administrator online for booking %s", bookingID)
			}
		}
	}
	return nil
}

// offer publishes a newly pending assignment, requests delivery and arms
// the local deadline timer.
func (c *Coordinator) offer(ctx context.Context, b model.Booking, a model.Assignment, from model.AssignmentStatus) {
	transitions.WithLabelValues(string(model.AssignmentPending)).Inc()
	c.recordOutcome(ctx, a.ProviderID, model.OutcomeOffered)
	c.publishStatus(a, from, "")
	ev := events.OfferEvent{Assignment: a, ServiceType: b.ServiceType, Location: b.Location}
	c.bus.Publish(ev)
	if _, err := c.notifier.Notify(ctx, a.ProviderID, ev.Name(), ev, a.ExpiresAt, model.PriorityHigh); err != nil {
		c.log.Errorw("offer delivery failed", deliveryError("offer", err), map[string]any{"assignment_id": a.ID})
	}
	if c.timers != nil {
		id := a.ID
		c.timers.Arm(id, a.ExpiresAt, func() { c.onDeadline(id) })
	}
}

// onDeadline runs from a local timer. The reconciler sweep repeats the same
// work if this never fires.
func (c *Coordinator) onDeadline(id string) {
	defer monitoring.Recover("dispatch")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a, err := c.store.GetAssignment(ctx, id)
	if err != nil || a.Status != model.AssignmentPending || c.now().Before(a.ExpiresAt) {
		return
	}
	if _, err := c.Expire(ctx, a); err != nil {
		c.log.Errorw("deadline timer expiry failed", err, map[string]any{"assignment_id": id})
	}
}

// confirm finishes an accepted assignment: siblings are cancelled, the
// booking confirmed and both sides notified. Failures are logged; the
// accepted assignment is already the source of truth and the reconciler
// retries a confirmation that did not persist. It reports whether this call
// moved the booking to confirmed, which is the only case that emits
// booking_confirmed.
func (c *Coordinator) confirm(ctx context.Context, b model.Booking, a model.Assignment) bool {
	now := c.now()
	cancelled, err := c.store.CancelSiblings(ctx, a.BookingID, a.ID, now)
	if err != nil {
		c.fail("cancel siblings", err, a.BookingID)
	}
	for _, s := range cancelled {
		c.disarm(s.ID)
		transitions.WithLabelValues(string(model.AssignmentCancelled)).Inc()
		prev := s.Status
		s.Status = model.AssignmentCancelled
		c.publishStatus(s, prev, "booking accepted by another provider")
		if prev == model.AssignmentPending {
			c.notifyStatus(ctx, s, prev)
		}
	}
	from := []model.BookingStatus{model.BookingPending, model.BookingAwaitingManual}
	ok, err := c.store.TransitionBooking(ctx, a.BookingID, from, model.BookingConfirmed, a.ProviderID, now)
	if err != nil {
		c.fail("confirm booking", err, a.BookingID)
		return false
	}
	if !ok {
		c.log.Warnf("booking %s not confirmed for %s: no longer open", a.BookingID, a.ProviderID)
		return false
	}
	ev := events.BookingConfirmedEvent{
		BookingID: a.BookingID, CustomerID: b.CustomerID, ProviderID: a.ProviderID, AssignmentID: a.ID, At: now,
	}
	c.bus.Publish(ev)
	if b.CustomerID != "" {
		if _, err := c.notifier.Notify(ctx, b.CustomerID, ev.Name(), ev, time.Time{}, model.PriorityNormal); err != nil {
			c.log.Errorw("confirmation delivery failed", deliveryError("confirm", err), map[string]any{"booking_id": a.BookingID})
		}
	}
	c.notifyStatus(ctx, a, model.AssignmentPending)
	return true
}

func (c *Coordinator) notifyStatus(ctx context.Context, a model.Assignment, from model.AssignmentStatus) {
	ev := events.StatusEvent{
		AssignmentID: a.ID, BookingID: a.BookingID, ProviderID: a.ProviderID,
		From: from, To: a.Status, At: a.UpdatedAt,
	}
	if _, err := c.notifier.Notify(ctx, a.ProviderID, ev.Name(), ev, time.Time{}, model.PriorityNormal); err != nil {
		c.log.Errorw("status delivery failed", deliveryError("status", err), map[string]any{"assignment_id": a.ID})
	}
}

func (c *Coordinator) publishStatus(a model.Assignment, from model.AssignmentStatus, reason string) {
	at := a.UpdatedAt
	if at.IsZero() {
		at = c.now()
	}
	c.bus.Publish(events.StatusEvent{
		AssignmentID: a.ID, BookingID: a.BookingID, ProviderID: a.ProviderID,
		From: from, To: a.Status, Reason: reason, ResponseTime: a.ResponseTime, At: at,
	})
}

func (c *Coordinator) recordOutcome(ctx context.Context, providerID string, o model.Outcome) {
	if err := c.outcomes.RecordOutcome(ctx, providerID, o); err != nil {
		c.log.Errorw("record provider outcome", err, map[string]any{"provider_id": providerID})
	}
}

func (c *Coordinator) disarm(id string) {
	if c.timers != nil {
		c.timers.Disarm(id)
	}
}

func (c *Coordinator) fail(what string, err error, bookingID string) {
	c.log.Errorw(what, err, map[string]any{"booking_id": bookingID})
	monitoring.CaptureException(err, monitoring.Tags("dispatch", "booking_id", bookingID))
}

func (c *Coordinator) lookupError(op, what, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError(op, what, id, err)
	}
	return persistenceError(op, err)
}

func (c *Coordinator) cascadeResult(bookingID string, r CascadeResult) AssignmentResult {
	switch {
	case r.Promoted != nil:
		return AssignmentResult{Status: ResultOffered, BookingID: bookingID, Assignment: r.Promoted}
	case r.Exhausted:
		return AssignmentResult{Status: ResultAwaitingManual, BookingID: bookingID, Message: MsgAwaitingManual}
	default:
		return AssignmentResult{Status: ResultAlreadyResolved, BookingID: bookingID, Message: "booking is already being dispatched"}
	}
}

// Query lists assignments for a role. Providers and customers only see
// their own; admins see everything.
func (c *Coordinator) Query(ctx context.Context, q store.AssignmentQuery) ([]model.Assignment, int, error) {
	const op = "query"
	switch q.Role {
	case store.RoleProvider, store.RoleCustomer:
		if q.Identity == "" {
			return nil, 0, validationError(op, "identity is required for role %s", q.Role)
		}
	case store.RoleAdmin:
	default:
		return nil, 0, validationError(op, "unknown role %q", q.Role)
	}
	q.Normalize()
	res, total, err := c.store.Query(ctx, q)
	if err != nil {
		return nil, 0, persistenceError(op, err)
	}
	return res, total, nil
}

// resolved reports a non-pending assignment without touching it.
func resolved(a model.Assignment) AssignmentResult {
	res := AssignmentResult{Status: ResultAlreadyResolved, BookingID: a.BookingID, Assignment: &a,
		Message: fmt.Sprintf("assignment already %s", a.Status)}
	if a.Status == model.AssignmentExpired {
		res.Status, res.Message = ResultExpired, MsgAssignmentExpired
	}
	return res
}

func maxOrder(chain []model.Assignment) int {
	m := 0
	for _, a := range chain {
		if a.Order > m {
			m = a.Order
		}
	}
	return m
}

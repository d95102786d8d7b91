// Package notify delivers events to identities with low latency when they
// are connected and durably queues them otherwise.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/jobroute/core/events"
	"github.com/kilianp07/jobroute/core/logger"
	"github.com/kilianp07/jobroute/core/model"
	"github.com/kilianp07/jobroute/core/monitoring"
	"github.com/kilianp07/jobroute/core/presence"
	"github.com/kilianp07/jobroute/core/store"
	"github.com/kilianp07/jobroute/internal/eventbus"
)

// Live is the in-process connection registry used for immediate delivery.
type Live interface {
	IsOnline(identity string) bool
	Send(ctx context.Context, identity string, env presence.Envelope) (int, error)
	Subscribe() *eventbus.Subscription[events.PresenceEvent]
}

// PushTransport delivers to devices that have no live session.
type PushTransport interface {
	Deliver(ctx context.Context, identity string, env presence.Envelope) error
}

// PresenceHint reports presence known to other instances.
type PresenceHint interface {
	OnlineElsewhere(ctx context.Context, identity string) bool
}

// Outcome describes what Notify did with an event.
type Outcome string

const (
	DeliveredLive Outcome = "live"
	DeliveredPush Outcome = "push"
	Queued        Outcome = "queued"
)

// Config tunes queueing.
type Config struct {
	MaxAttempts   int           `json:"max_attempts"`
	FlushInterval time.Duration `json:"flush_interval"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 30 * time.Second
	}
}

// Notifier implements the notification delivery subsystem.
type Notifier struct {
	cfg    Config
	live   Live
	queue  store.QueueStore
	push   PushTransport
	hint   PresenceHint
	events events.Publisher
	log    logger.Logger
	now    func() time.Time
}

// Option customises a Notifier.
type Option func(*Notifier)

// WithPush enables the push transport for identities without a session.
func WithPush(p PushTransport) Option { return func(n *Notifier) { n.push = p } }

// WithPresenceHint consults other instances before nudging via push.
func WithPresenceHint(h PresenceHint) Option { return func(n *Notifier) { n.hint = h } }

// WithPublisher publishes undeliverable notifications.
func WithPublisher(p events.Publisher) Option { return func(n *Notifier) { n.events = p } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(n *Notifier) { n.now = now } }

// New creates a Notifier.
func New(cfg Config, live Live, queue store.QueueStore, log logger.Logger, opts ...Option) *Notifier {
	cfg.SetDefaults()
	n := &Notifier{
		cfg:    cfg,
		live:   live,
		queue:  queue,
		events: events.NopPublisher{},
		log:    logger.OrNop(log),
		now:    time.Now,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Notify sends payload to identity under the event name. Without a live
// session, or when every session fails, the event is queued until deadline
// (zero means no deadline). A live send waits behind entries already queued
// for identity. A queue write failure is the only error.
func (n *Notifier) Notify(ctx context.Context, identity, event string, payload any, deadline time.Time, prio model.Priority) (Outcome, error) {
	env, err := presence.NewEnvelope(event, payload)
	if err != nil {
		return "", err
	}
	if n.live.IsOnline(identity) && n.drainBacklog(ctx, identity) {
		_, err := n.live.Send(ctx, identity, env)
		if err == nil {
			notificationsTotal.WithLabelValues(string(DeliveredLive)).Inc()
			return DeliveredLive, nil
		}
		n.log.Warnf("live delivery of %s to %s failed, queueing: %v", event, identity, err)
	}

	e := model.QueueEntry{
		ID:          uuid.NewString(),
		Identity:    identity,
		Event:       event,
		Payload:     env.Payload,
		MaxAttempts: n.cfg.MaxAttempts,
		Priority:    prio,
		Deadline:    deadline,
		CreatedAt:   n.now(),
	}
	if err := n.queue.Enqueue(ctx, e); err != nil {
		return "", fmt.Errorf("enqueue %s for %s: %w", event, identity, err)
	}
	notificationsTotal.WithLabelValues(string(Queued)).Inc()

	if n.shouldPush(ctx, identity) {
		ok, err := n.attempt(ctx, e, n.pushDeliver, false)
		if err != nil {
			n.log.Errorw("push attempt bookkeeping failed", err, map[string]any{"entry": e.ID})
		}
		if ok {
			notificationsTotal.WithLabelValues(string(DeliveredPush)).Inc()
			return DeliveredPush, nil
		}
	}
	return Queued, nil
}

// drainBacklog flushes older entries of an online identity and reports
// whether none is left ahead of a new event.
func (n *Notifier) drainBacklog(ctx context.Context, identity string) bool {
	backlog, err := n.queue.Pending(ctx, identity)
	if err != nil {
		n.log.Warnf("load queue of %s: %v", identity, err)
		return true
	}
	if len(backlog) == 0 {
		return true
	}
	rep, err := n.Flush(ctx, identity)
	if err != nil {
		n.log.Errorw("flush before live delivery failed", err, map[string]any{"identity": identity})
		return false
	}
	return rep.Failed == 0
}

func (n *Notifier) shouldPush(ctx context.Context, identity string) bool {
	if n.push == nil {
		return false
	}
	if n.hint != nil && n.hint.OnlineElsewhere(ctx, identity) {
		n.log.Debugw("identity online on another instance, skipping push", map[string]any{"identity": identity})
		return false
	}
	return true
}

func (n *Notifier) pushDeliver(ctx context.Context, e model.QueueEntry) error {
	return n.push.Deliver(ctx, e.Identity, presence.Envelope{Event: e.Event, Payload: e.Payload})
}

func (n *Notifier) liveDeliver(ctx context.Context, e model.QueueEntry) error {
	_, err := n.live.Send(ctx, e.Identity, presence.Envelope{Event: e.Event, Payload: e.Payload})
	return err
}

// attempt runs one delivery attempt of a queued entry. It reports whether
// the entry was delivered. A failed counted attempt increments the attempt
// counter and drops the entry once exhausted; push nudges are not counted,
// so an offline identity keeps its entries until it reconnects or their
// deadline passes.
func (n *Notifier) attempt(ctx context.Context, e model.QueueEntry, deliver func(context.Context, model.QueueEntry) error, counted bool) (bool, error) {
	derr := deliver(ctx, e)
	if derr == nil {
		if err := n.queue.DeleteEntry(ctx, e.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return true, fmt.Errorf("delete delivered entry %s: %w", e.ID, err)
		}
		return true, nil
	}
	if !counted {
		n.log.Debugw("push nudge failed", map[string]any{"entry": e.ID, "error": derr.Error()})
		return false, nil
	}
	attempts, err := n.queue.IncrementAttempts(ctx, e.ID)
	if err != nil {
		return false, fmt.Errorf("increment attempts of %s: %w", e.ID, err)
	}
	if attempts < e.MaxAttempts {
		n.log.Debugw("delivery attempt failed", map[string]any{"entry": e.ID, "attempts": attempts, "error": derr.Error()})
		return false, nil
	}
	if err := n.queue.DeleteEntry(ctx, e.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("drop exhausted entry %s: %w", e.ID, err)
	}
	e.Attempts = attempts
	notificationsTotal.WithLabelValues("undeliverable").Inc()
	n.log.Errorw("notification undeliverable", derr, map[string]any{
		"entry": e.ID, "identity": e.Identity, "event": e.Event, "attempts": attempts,
	})
	n.events.Publish(events.UndeliverableEvent{Entry: e, Err: derr.Error()})
	return false, nil
}

// FlushReport summarises a flush.
type FlushReport struct {
	Delivered int
	Expired   int
	Failed    int
}

// Flush delivers the queued entries of identity in FIFO order. Entries past
// their deadline are dropped without delivery. Processing stops at the first
// failed attempt so that order is preserved.
func (n *Notifier) Flush(ctx context.Context, identity string) (FlushReport, error) {
	var rep FlushReport
	deliver, counted := n.liveDeliver, true
	if !n.live.IsOnline(identity) {
		if !n.shouldPush(ctx, identity) {
			return rep, nil
		}
		deliver, counted = n.pushDeliver, false
	}
	entries, err := n.queue.Pending(ctx, identity)
	if err != nil {
		return rep, fmt.Errorf("load queue of %s: %w", identity, err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if e.Expired(n.now()) {
			if err := n.queue.DeleteEntry(ctx, e.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return rep, fmt.Errorf("drop expired entry %s: %w", e.ID, err)
			}
			notificationsTotal.WithLabelValues("expired").Inc()
			rep.Expired++
			continue
		}
		ok, err := n.attempt(ctx, e, deliver, counted)
		if err != nil {
			return rep, err
		}
		if !ok {
			rep.Failed++
			break
		}
		rep.Delivered++
	}
	if rep.Delivered > 0 {
		notificationsTotal.WithLabelValues("flushed").Add(float64(rep.Delivered))
	}
	return rep, nil
}

// FlushAll flushes every identity with queued entries.
func (n *Notifier) FlushAll(ctx context.Context) (FlushReport, error) {
	var total FlushReport
	ids, err := n.queue.Identities(ctx)
	if err != nil {
		return total, fmt.Errorf("list queued identities: %w", err)
	}
	var errs []error
	for _, id := range ids {
		rep, err := n.Flush(ctx, id)
		total.Delivered += rep.Delivered
		total.Expired += rep.Expired
		total.Failed += rep.Failed
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// Run flushes an identity's queue each time it comes online and sweeps all
// queues on the configured interval, until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	defer monitoring.Recover("notify")
	sub := n.live.Subscribe()
	defer sub.Cancel()
	ticker := time.NewTicker(n.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			if !ev.Online {
				continue
			}
			if rep, err := n.Flush(ctx, ev.Identity); err != nil {
				n.log.Errorw("flush on reconnect failed", err, map[string]any{"identity": ev.Identity})
			} else if rep.Delivered+rep.Expired > 0 {
				n.log.Infow("flushed queue on reconnect", map[string]any{
					"identity": ev.Identity, "delivered": rep.Delivered, "expired": rep.Expired,
				})
			}
		case <-ticker.C:
			if _, err := n.FlushAll(ctx); err != nil {
				n.log.Errorw("periodic flush failed", err, nil)
			}
		}
	}
}

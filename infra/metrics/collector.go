package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/jobroute/core/events"
	coremetrics "github.com/kilianp07/jobroute/core/metrics"
	"github.com/kilianp07/jobroute/internal/eventbus"
)

// Source is the subscribe side of the dispatch bus.
type Source interface {
	Subscribe() *eventbus.Subscription[events.Event]
}

// StartEventCollector subscribes to the event bus and records metrics for
// events until ctx is cancelled or the bus closes. The returned channel is
// closed once the collector has stopped.
func StartEventCollector(ctx context.Context, bus Source, sink coremetrics.MetricsSink) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	sub := bus.Subscribe()
	log := newCollectorLogger()
	go func() {
		defer close(done)
		defer sub.Cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				if err := Record(sink, ev, time.Now()); err != nil {
					log.Warnf("record %s: %v", ev.Name(), err)
				}
			}
		}
	}()
	return done
}

// Record maps one bus event onto the sink. Events the sink has no recorder
// for are ignored. now stamps events that carry no time of their own.
func Record(sink coremetrics.MetricsSink, ev events.Event, now time.Time) error {
	switch e := ev.(type) {
	case events.StatusEvent:
		return sink.RecordTransition(coremetrics.TransitionEvent{
			AssignmentID: e.AssignmentID,
			BookingID:    e.BookingID,
			ProviderID:   e.ProviderID,
			From:         e.From,
			To:           e.To,
			Reason:       e.Reason,
			ResponseTime: e.ResponseTime,
			Time:         e.At,
		})
	case events.OfferEvent:
		if r, ok := sink.(coremetrics.OfferRecorder); ok {
			a := e.Assignment
			return r.RecordOffer(coremetrics.OfferEvent{
				AssignmentID: a.ID,
				BookingID:    a.BookingID,
				ProviderID:   a.ProviderID,
				ServiceType:  e.ServiceType,
				Method:       a.Method,
				Order:        a.Order,
				Score:        a.Score,
				Time:         a.AssignedAt,
			})
		}
	case events.ManualInterventionEvent:
		if r, ok := sink.(coremetrics.EscalationRecorder); ok {
			return r.RecordEscalation(coremetrics.EscalationEvent{BookingID: e.BookingID, Attempts: e.Attempts, Time: e.At})
		}
	case events.BookingConfirmedEvent:
		if r, ok := sink.(coremetrics.ConfirmationRecorder); ok {
			return r.RecordConfirmation(coremetrics.ConfirmationEvent{
				BookingID: e.BookingID, ProviderID: e.ProviderID, AssignmentID: e.AssignmentID, Time: e.At,
			})
		}
	case events.PresenceEvent:
		if r, ok := sink.(coremetrics.PresenceRecorder); ok {
			return r.RecordPresence(coremetrics.PresenceSample{Identity: e.Identity, Role: e.Role, Online: e.Online, Time: e.At})
		}
	case events.UndeliverableEvent:
		if r, ok := sink.(coremetrics.DeliveryFailureRecorder); ok {
			return r.RecordDeliveryFailure(coremetrics.DeliveryFailureEvent{
				Identity: e.Entry.Identity, Event: e.Entry.Event, Attempts: e.Entry.Attempts, Error: e.Err, Time: now,
			})
		}
	}
	return nil
}

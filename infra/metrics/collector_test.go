package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/jobroute/core/events"
	coremetrics "github.com/kilianp07/jobroute/core/metrics"
	"github.com/kilianp07/jobroute/core/model"
	"github.com/kilianp07/jobroute/internal/eventbus"
)

type captureSink struct {
	mu          sync.Mutex
	transitions []coremetrics.TransitionEvent
	offers      []coremetrics.OfferEvent
	escalations []coremetrics.EscalationEvent
	failures    []coremetrics.DeliveryFailureEvent
}

func (c *captureSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitions = append(c.transitions, ev)
	return nil
}

func (c *captureSink) RecordOffer(ev coremetrics.OfferEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offers = append(c.offers, ev)
	return nil
}

func (c *captureSink) RecordEscalation(ev coremetrics.EscalationEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.escalations = append(c.escalations, ev)
	return nil
}

func (c *captureSink) RecordDeliveryFailure(ev coremetrics.DeliveryFailureEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, ev)
	return nil
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.transitions) + len(c.offers) + len(c.escalations) + len(c.failures)
}

func TestRecordMapsEvents(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	sink := &captureSink{}
	a := model.Assignment{ID: "a1", BookingID: "b1", ProviderID: "p1", Method: model.MethodAutomatic, Order: 1, Score: 77, AssignedAt: now}

	require.NoError(t, Record(sink, events.OfferEvent{Assignment: a, ServiceType: "plumbing"}, now))
	require.NoError(t, Record(sink, events.StatusEvent{
		AssignmentID: "a1", ProviderID: "p1", From: model.AssignmentPending, To: model.AssignmentDeclined,
		ResponseTime: time.Minute, At: now,
	}, now))
	require.NoError(t, Record(sink, events.ManualInterventionEvent{BookingID: "b1", Attempts: 3, At: now}, now))
	require.NoError(t, Record(sink, events.UndeliverableEvent{
		Entry: model.QueueEntry{Identity: "p1", Event: events.NameNewJobAssignment, Attempts: 3}, Err: "offline",
	}, now))
	// No presence recorder on this sink.
	require.NoError(t, Record(sink, events.PresenceEvent{Identity: "p1", Online: true}, now))

	require.Len(t, sink.offers, 1)
	assert.Equal(t, "plumbing", sink.offers[0].ServiceType)
	assert.Equal(t, 77.0, sink.offers[0].Score)
	require.Len(t, sink.transitions, 1)
	assert.Equal(t, time.Minute, sink.transitions[0].ResponseTime)
	require.Len(t, sink.escalations, 1)
	assert.Equal(t, 3, sink.escalations[0].Attempts)
	require.Len(t, sink.failures, 1)
	assert.Equal(t, now, sink.failures[0].Time)
	assert.Equal(t, "offline", sink.failures[0].Error)
}

func TestStartEventCollector(t *testing.T) {
	bus := eventbus.NewTyped[events.Event]()
	sink := &captureSink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := StartEventCollector(ctx, bus, sink)

	bus.Publish(events.StatusEvent{AssignmentID: "a1", To: model.AssignmentPending})
	bus.Publish(events.ManualInterventionEvent{BookingID: "b1"})
	assert.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestStartEventCollectorNilSink(t *testing.T) {
	done := StartEventCollector(context.Background(), eventbus.NewTyped[events.Event](), nil)
	_, open := <-done
	assert.False(t, open)
}

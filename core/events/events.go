package events

import (
	"time"

	"github.com/kilianp07/jobroute/core/model"
)

// Wire names of the events exchanged with clients.
const (
	NameNewJobAssignment   = "new_job_assignment"
	NameStatusUpdate       = "assignment_status_update"
	NameBookingConfirmed   = "booking_confirmed"
	NameManualIntervention = "manual_intervention_required"
	NameProviderOnline     = "provider_online"
	NameProviderOffline    = "provider_offline"
	NameUndeliverable      = "notification_undeliverable"
)

// Event is implemented by everything published on the dispatch bus.
type Event interface {
	Name() string
}

// OfferEvent is published when an assignment becomes pending.
type OfferEvent struct {
	Assignment  model.Assignment `json:"assignment"`
	ServiceType string           `json:"service_type"`
	Location    model.Location   `json:"location"`
}

func (OfferEvent) Name() string { return NameNewJobAssignment }

// StatusEvent is published on every assignment transition.
type StatusEvent struct {
	AssignmentID string                 `json:"assignment_id"`
	BookingID    string                 `json:"booking_id"`
	ProviderID   string                 `json:"provider_id"`
	From         model.AssignmentStatus `json:"from"`
	To           model.AssignmentStatus `json:"to"`
	Reason       string                 `json:"reason,omitempty"`
	ResponseTime time.Duration          `json:"response_time,omitempty"`
	At           time.Time              `json:"at"`
}

func (StatusEvent) Name() string { return NameStatusUpdate }

// BookingConfirmedEvent tells the requester which provider took the job.
type BookingConfirmedEvent struct {
	BookingID    string    `json:"booking_id"`
	CustomerID   string    `json:"customer_id"`
	ProviderID   string    `json:"provider_id"`
	AssignmentID string    `json:"assignment_id"`
	At           time.Time `json:"at"`
}

func (BookingConfirmedEvent) Name() string { return NameBookingConfirmed }

// ManualInterventionEvent signals administrators that no candidate is left.
type ManualInterventionEvent struct {
	BookingID string    `json:"booking_id"`
	Attempts  int       `json:"attempts"`
	At        time.Time `json:"at"`
}

func (ManualInterventionEvent) Name() string { return NameManualIntervention }

// PresenceEvent reports an online/offline transition of an identity.
type PresenceEvent struct {
	Identity string    `json:"identity"`
	Role     string    `json:"role"`
	Online   bool      `json:"online"`
	At       time.Time `json:"at"`
}

func (e PresenceEvent) Name() string {
	if e.Online {
		return NameProviderOnline
	}
	return NameProviderOffline
}

// UndeliverableEvent is emitted when a queue entry is dropped after
// exhausting its attempts.
type UndeliverableEvent struct {
	Entry model.QueueEntry `json:"entry"`
	Err   string           `json:"error,omitempty"`
}

func (UndeliverableEvent) Name() string { return NameUndeliverable }

// Publisher accepts events for fan-out. *eventbus.TypedBus[Event] satisfies it.
type Publisher interface {
	Publish(Event)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}

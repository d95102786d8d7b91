package metrics

import (
	"time"

	"github.com/kilianp07/jobroute/core/model"
)

// TransitionEvent is one assignment status change.
type TransitionEvent struct {
	AssignmentID string
	BookingID    string
	ProviderID   string
	From         model.AssignmentStatus
	To           model.AssignmentStatus
	Reason       string
	ResponseTime time.Duration
	Time         time.Time
}

// MetricsSink records assignment transitions for observability purposes.
type MetricsSink interface {
	RecordTransition(ev TransitionEvent) error
}

// OfferEvent describes an assignment offered to a provider.
type OfferEvent struct {
	AssignmentID string
	BookingID    string
	ProviderID   string
	ServiceType  string
	Method       model.AssignmentMethod
	Order        int
	Score        float64
	Time         time.Time
}

// OfferRecorder records offers.
type OfferRecorder interface {
	RecordOffer(ev OfferEvent) error
}

// EscalationEvent marks a booking handed over to administrators.
type EscalationEvent struct {
	BookingID string
	Attempts  int
	Time      time.Time
}

// EscalationRecorder records escalations.
type EscalationRecorder interface {
	RecordEscalation(ev EscalationEvent) error
}

// ConfirmationEvent marks a booking confirmed to a provider.
type ConfirmationEvent struct {
	BookingID    string
	ProviderID   string
	AssignmentID string
	Time         time.Time
}

// ConfirmationRecorder records booking confirmations.
type ConfirmationRecorder interface {
	RecordConfirmation(ev ConfirmationEvent) error
}

// PresenceSample is an online/offline transition.
type PresenceSample struct {
	Identity string
	Role     string
	Online   bool
	Time     time.Time
}

// PresenceRecorder records presence transitions.
type PresenceRecorder interface {
	RecordPresence(ev PresenceSample) error
}

// DeliveryFailureEvent is a notification dropped after its last attempt.
type DeliveryFailureEvent struct {
	Identity string
	Event    string
	Attempts int
	Error    string
	Time     time.Time
}

// DeliveryFailureRecorder records undeliverable notifications.
type DeliveryFailureRecorder interface {
	RecordDeliveryFailure(ev DeliveryFailureEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordTransition(TransitionEvent) error           { return nil }
func (NopSink) RecordOffer(OfferEvent) error                     { return nil }
func (NopSink) RecordEscalation(EscalationEvent) error           { return nil }
func (NopSink) RecordConfirmation(ConfirmationEvent) error       { return nil }
func (NopSink) RecordPresence(PresenceSample) error              { return nil }
func (NopSink) RecordDeliveryFailure(DeliveryFailureEvent) error { return nil }

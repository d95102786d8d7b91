// Package events defines the dispatch related events emitted on the event bus.
//
// Available event types:
//   - OfferEvent: an assignment became pending and was offered to a provider
//   - StatusEvent: an assignment changed status
//   - BookingConfirmedEvent: a provider accepted and the booking is confirmed
//   - ManualInterventionEvent: a booking exhausted its candidates
//   - PresenceEvent: an identity came online or went offline
//   - UndeliverableEvent: a queued notification was dropped after its last attempt
package events

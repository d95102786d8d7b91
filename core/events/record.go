package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is the serialized form of a bus event used by the audit trail and
// the relays.
type Record struct {
	Event string          `json:"event"`
	Key   string          `json:"key,omitempty"`
	Time  time.Time       `json:"time"`
	Data  json.RawMessage `json:"data"`
}

// NewRecord encodes ev. now stamps the record.
func NewRecord(ev Event, now time.Time) (Record, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return Record{}, fmt.Errorf("encode %s: %w", ev.Name(), err)
	}
	return Record{Event: ev.Name(), Key: Key(ev), Time: now.UTC(), Data: b}, nil
}

// Key returns the entity an event is about: the booking for dispatch events,
// the identity otherwise. Relays partition on it.
func Key(ev Event) string {
	switch e := ev.(type) {
	case OfferEvent:
		return e.Assignment.BookingID
	case StatusEvent:
		return e.BookingID
	case BookingConfirmedEvent:
		return e.BookingID
	case ManualInterventionEvent:
		return e.BookingID
	case PresenceEvent:
		return e.Identity
	case UndeliverableEvent:
		return e.Entry.Identity
	}
	return ""
}

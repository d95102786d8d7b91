package model

import (
	"encoding/json"
	"time"
)

// Priority orders queued notifications for transports that support it.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// QueueEntry is a notification waiting for its recipient to come online.
// It is removed on delivery, once Deadline passes, or when Attempts reaches
// MaxAttempts.
type QueueEntry struct {
	ID          string          `json:"id"`
	Identity    string          `json:"identity"`
	Event       string          `json:"event"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Priority    Priority        `json:"priority"`
	Deadline    time.Time       `json:"deadline,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Expired reports whether the entry can no longer be delivered at now.
// Entries without a deadline never expire.
func (e QueueEntry) Expired(now time.Time) bool {
	return !e.Deadline.IsZero() && !now.Before(e.Deadline)
}

// Exhausted reports whether no delivery attempt is left.
func (e QueueEntry) Exhausted() bool { return e.Attempts >= e.MaxAttempts }

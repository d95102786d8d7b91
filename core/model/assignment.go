package model

import (
	"fmt"
	"time"
)

// AssignmentStatus is the state of a single offer.
type AssignmentStatus string

const (
	AssignmentScheduled AssignmentStatus = "scheduled"
	AssignmentPending   AssignmentStatus = "pending"
	AssignmentAccepted  AssignmentStatus = "accepted"
	AssignmentDeclined  AssignmentStatus = "declined"
	AssignmentExpired   AssignmentStatus = "expired"
	AssignmentCancelled AssignmentStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s AssignmentStatus) Terminal() bool {
	switch s {
	case AssignmentAccepted, AssignmentDeclined, AssignmentExpired, AssignmentCancelled:
		return true
	}
	return false
}

// ParseAssignmentStatus validates a textual status.
func ParseAssignmentStatus(s string) (AssignmentStatus, error) {
	switch st := AssignmentStatus(s); st {
	case AssignmentScheduled, AssignmentPending, AssignmentAccepted,
		AssignmentDeclined, AssignmentExpired, AssignmentCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown assignment status %q", s)
}

// AssignmentMethod tells how a provider was chosen.
type AssignmentMethod string

const (
	MethodAutomatic AssignmentMethod = "automatic"
	MethodManual    AssignmentMethod = "manual"
)

// ParseAssignmentMethod validates a textual method. An empty string selects
// automatic dispatch.
func ParseAssignmentMethod(s string) (AssignmentMethod, error) {
	switch AssignmentMethod(s) {
	case "", MethodAutomatic:
		return MethodAutomatic, nil
	case MethodManual:
		return MethodManual, nil
	}
	return "", fmt.Errorf("unknown assignment method %q", s)
}

// Decision is a provider's answer to an offer.
type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
)

// Assignment is one offer of a booking to one provider. Rows are never
// deleted; they form the audit trail of a booking's escalation chain.
type Assignment struct {
	ID            string           `json:"id"`
	BookingID     string           `json:"booking_id"`
	ProviderID    string           `json:"provider_id"`
	Method        AssignmentMethod `json:"method"`
	Order         int              `json:"assignment_order"`
	Status        AssignmentStatus `json:"status"`
	Score         float64          `json:"score"`
	AssignedAt    time.Time        `json:"assigned_at,omitempty"`
	ExpiresAt     time.Time        `json:"expires_at,omitempty"`
	RespondedAt   time.Time        `json:"responded_at,omitempty"`
	ResponseTime  time.Duration    `json:"response_time,omitempty"`
	DeclineReason string           `json:"decline_reason,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Overdue reports whether a pending offer has passed its deadline at now.
func (a Assignment) Overdue(now time.Time) bool {
	return a.Status == AssignmentPending && !a.ExpiresAt.IsZero() && a.ExpiresAt.Before(now)
}

// AssignmentUpdate carries the fields written together with a status
// transition. Zero values are left untouched by stores.
type AssignmentUpdate struct {
	Status        AssignmentStatus
	At            time.Time
	RespondedAt   time.Time
	ResponseTime  time.Duration
	DeclineReason string
}

package dispatch

import "github.com/kilianp07/jobroute/core/model"

// ResultStatus is the outcome reported to API callers.
type ResultStatus string

const (
	ResultOffered         ResultStatus = "offered"
	ResultAccepted        ResultStatus = "accepted"
	ResultDeclined        ResultStatus = "declined"
	ResultExpired         ResultStatus = "expired"
	ResultAlreadyResolved ResultStatus = "already_resolved"
	ResultAwaitingManual  ResultStatus = "awaiting_manual_assignment"
)

// User facing messages.
const (
	MsgAssignmentExpired = "assignment expired"
	MsgAwaitingManual    = "awaiting manual assignment"
)

// AssignmentResult is returned by Assign and Respond. Races are reported
// here rather than as errors.
type AssignmentResult struct {
	Status     ResultStatus      `json:"status"`
	Message    string            `json:"message,omitempty"`
	BookingID  string            `json:"booking_id"`
	Assignment *model.Assignment `json:"assignment,omitempty"`
	// Next is the assignment promoted after a decline, if any.
	Next *model.Assignment `json:"next,omitempty"`
	// Chain is the number of assignments created by Assign.
	Chain int `json:"chain,omitempty"`
}

// CascadeResult describes what a cascade did.
type CascadeResult struct {
	Promoted  *model.Assignment
	Exhausted bool
	// Confirmed is set when the cascade finished an acceptance whose
	// booking confirmation had not persisted.
	Confirmed *model.Assignment
}

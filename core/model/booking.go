package model

import "time"

// BookingStatus is the lifecycle state of a requested job.
type BookingStatus string

const (
	BookingPending        BookingStatus = "pending"
	BookingConfirmed      BookingStatus = "confirmed"
	BookingAwaitingManual BookingStatus = "awaiting_manual_assignment"
	BookingCancelled      BookingStatus = "cancelled"
)

// Booking is a job requested by a customer. The dispatch engine only mutates
// Status and ProviderID.
type Booking struct {
	ID          string        `json:"id"`
	CustomerID  string        `json:"customer_id"`
	ServiceType string        `json:"service_type"`
	Location    Location      `json:"location"`
	Status      BookingStatus `json:"status"`
	ProviderID  string        `json:"provider_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

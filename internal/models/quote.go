package models

import "time"

// QuoteStatus captures the lifecycle of a mechanic's offer.
type QuoteStatus string

const (
	QuoteStatusPending  QuoteStatus = "PENDING"
	QuoteStatusAccepted QuoteStatus = "ACCEPTED"
	QuoteStatusRejected QuoteStatus = "REJECTED"
)

// MechanicQuote is a mechanic's price/ETA offer against a specific appointment.
// At most one row exists per (appointment, mechanic) pair; re-submission updates
// the existing row.
type MechanicQuote struct {
	ID            string      `db:"id" json:"id"`
	AppointmentID string      `db:"appointment_id" json:"appointment_id"`
	MechanicID    string      `db:"mechanic_id" json:"mechanic_id"`
	Price         float64     `db:"price" json:"price"`
	ETA           time.Time   `db:"eta" json:"eta"`
	Notes         string      `db:"notes" json:"notes"`
	Status        QuoteStatus `db:"status" json:"status"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

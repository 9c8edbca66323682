package models

import (
	"time"

	"github.com/lib/pq"
)

// ServiceList maps the selected_services text[] column.
type ServiceList = pq.StringArray

// Vehicle is the 1:1 detail record attached to an appointment. It is owned
// exclusively by its appointment and never referenced independently.
type Vehicle struct {
	ID            string    `db:"id" json:"id"`
	AppointmentID string    `db:"appointment_id" json:"appointment_id"`
	Year          int       `db:"year" json:"year"`
	Make          string    `db:"make" json:"make"`
	Model         string    `db:"model" json:"model"`
	VIN           *string   `db:"vin" json:"vin,omitempty"`
	Mileage       *int      `db:"mileage" json:"mileage,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

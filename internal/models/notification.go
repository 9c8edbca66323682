package models

import "time"

// NotificationType enumerates the events appended to the edit log.
type NotificationType string

const (
	NotificationTypeEdited    NotificationType = "APPOINTMENT_EDITED"
	NotificationTypeCancelled NotificationType = "APPOINTMENT_CANCELLED"
	NotificationTypeConfirmed NotificationType = "APPOINTMENT_CONFIRMED"
	NotificationTypeExpired   NotificationType = "APPOINTMENT_EXPIRED"
)

// EditNotification is an append-only event record driving realtime fan-out to
// mechanics. Rows are write-once and never mutated.
type EditNotification struct {
	ID            string           `db:"id" json:"id"`
	AppointmentID string           `db:"appointment_id" json:"appointment_id"`
	Type          NotificationType `db:"type" json:"type"`
	Message       string           `db:"message" json:"message"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
}

// AppointmentEvent is the payload published on the realtime channel. Delivery
// is the transport's concern, not part of the engine's correctness contract.
type AppointmentEvent struct {
	AppointmentID string           `json:"appointment_id"`
	Type          NotificationType `json:"type"`
	Message       string           `json:"message"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

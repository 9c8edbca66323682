package models

import "time"

// AppointmentStatus is the closed set of lifecycle states. Status is the only
// source of truth for what phase an appointment is in; every other flag on the
// row is orthogonal to it.
type AppointmentStatus string

const (
	AppointmentStatusPending    AppointmentStatus = "PENDING"
	AppointmentStatusConfirmed  AppointmentStatus = "CONFIRMED"
	AppointmentStatusInProgress AppointmentStatus = "IN_PROGRESS"
	AppointmentStatusCompleted  AppointmentStatus = "COMPLETED"
	AppointmentStatusCancelled  AppointmentStatus = "CANCELLED"
)

// appointmentTransitions is the authoritative transition table. Terminal
// states have no outgoing edges.
var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentStatusPending:    {AppointmentStatusConfirmed, AppointmentStatusCancelled},
	AppointmentStatusConfirmed:  {AppointmentStatusInProgress, AppointmentStatusPending, AppointmentStatusCancelled},
	AppointmentStatusInProgress: {AppointmentStatusCompleted, AppointmentStatusCancelled},
}

// CanTransition reports whether moving from s to next is a legal lifecycle edge.
func (s AppointmentStatus) CanTransition(next AppointmentStatus) bool {
	for _, allowed := range appointmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are accepted from s.
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentStatusCompleted || s == AppointmentStatusCancelled
}

// Valid reports whether s is a member of the closed enum.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusPending, AppointmentStatusConfirmed, AppointmentStatusInProgress,
		AppointmentStatusCompleted, AppointmentStatusCancelled:
		return true
	}
	return false
}

// CarRuns captures whether the vehicle is drivable.
type CarRuns string

const (
	CarRunsYes     CarRuns = "YES"
	CarRunsNo      CarRuns = "NO"
	CarRunsUnknown CarRuns = "UNKNOWN"
)

// CancelActor identifies who drove a cancellation.
type CancelActor string

const (
	CancelActorCustomer CancelActor = "CUSTOMER"
	CancelActorMechanic CancelActor = "MECHANIC"
	CancelActorSystem   CancelActor = "SYSTEM"
)

// CancelReasonExpired is recorded when the expiry reaper cancels an abandoned request.
const CancelReasonExpired = "EXPIRED"

// Appointment is a single repair request and its lifecycle state.
type Appointment struct {
	ID                 string            `db:"id" json:"id"`
	CustomerID         string            `db:"customer_id" json:"customer_id"`
	Status             AppointmentStatus `db:"status" json:"status"`
	Address            string            `db:"address" json:"address"`
	Latitude           *float64          `db:"latitude" json:"latitude,omitempty"`
	Longitude          *float64          `db:"longitude" json:"longitude,omitempty"`
	ScheduledAt        time.Time         `db:"scheduled_at" json:"scheduled_at"`
	ASAP               bool              `db:"asap" json:"asap"`
	IssueDescription   string            `db:"issue_description" json:"issue_description"`
	SelectedServices   ServiceList       `db:"selected_services" json:"selected_services"`
	CarRuns            CarRuns           `db:"car_runs" json:"car_runs"`
	SelectedMechanicID *string           `db:"selected_mechanic_id" json:"selected_mechanic_id,omitempty"`
	SelectedQuoteID    *string           `db:"selected_quote_id" json:"selected_quote_id,omitempty"`
	EditedAfterQuotes  bool              `db:"edited_after_quotes" json:"edited_after_quotes"`
	IsBeingEdited      bool              `db:"is_being_edited" json:"is_being_edited"`
	CancelledBy        *CancelActor      `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelReason       *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at" json:"updated_at"`

	Vehicle *Vehicle `db:"-" json:"vehicle,omitempty"`
}

// AppointmentSummary is the mechanic-facing projection used by availability feeds.
type AppointmentSummary struct {
	ID               string      `db:"id" json:"id"`
	Address          string      `db:"address" json:"address"`
	ScheduledAt      time.Time   `db:"scheduled_at" json:"scheduled_at"`
	ASAP             bool        `db:"asap" json:"asap"`
	IssueDescription string      `db:"issue_description" json:"issue_description"`
	SelectedServices ServiceList `db:"selected_services" json:"selected_services"`
	CarRuns          CarRuns     `db:"car_runs" json:"car_runs"`
	VehicleYear      int         `db:"vehicle_year" json:"vehicle_year"`
	VehicleMake      string      `db:"vehicle_make" json:"vehicle_make"`
	VehicleModel     string      `db:"vehicle_model" json:"vehicle_model"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
}

// AppointmentFilter constrains customer-facing listing queries.
type AppointmentFilter struct {
	CustomerID string
	Status     []AppointmentStatus
	Limit      int
	Offset     int
}

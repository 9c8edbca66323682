package dto

// VehiclePayload carries the 1:1 vehicle details submitted with an appointment.
type VehiclePayload struct {
	Year    int     `json:"year" validate:"required,gte=1950,lte=2100"`
	Make    string  `json:"make" validate:"required"`
	Model   string  `json:"model" validate:"required"`
	VIN     *string `json:"vin,omitempty" validate:"omitempty,len=17"`
	Mileage *int    `json:"mileage,omitempty" validate:"omitempty,gte=0"`
}

// CreateAppointmentRequest is the customer payload opening a repair request.
// ScheduledAt is RFC3339 and carries the customer's UTC offset; it is ignored
// when ASAP is set.
type CreateAppointmentRequest struct {
	Address          string         `json:"address" validate:"required"`
	Latitude         *float64       `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude        *float64       `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	ScheduledAt      string         `json:"scheduled_at,omitempty"`
	ASAP             bool           `json:"asap"`
	IssueDescription string         `json:"issue_description" validate:"required"`
	SelectedServices []string       `json:"selected_services,omitempty"`
	CarRuns          string         `json:"car_runs" validate:"omitempty,oneof=YES NO UNKNOWN"`
	Vehicle          VehiclePayload `json:"vehicle" validate:"required"`
}

// EditAppointmentRequest carries a material revision of an open appointment.
// Only non-nil fields are applied.
type EditAppointmentRequest struct {
	Address          *string         `json:"address,omitempty"`
	Latitude         *float64        `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude        *float64        `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	ScheduledAt      *string         `json:"scheduled_at,omitempty"`
	ASAP             *bool           `json:"asap,omitempty"`
	IssueDescription *string         `json:"issue_description,omitempty"`
	SelectedServices []string        `json:"selected_services,omitempty"`
	CarRuns          *string         `json:"car_runs,omitempty" validate:"omitempty,oneof=YES NO UNKNOWN"`
	Vehicle          *VehiclePayload `json:"vehicle,omitempty"`
}

// CancelAppointmentRequest optionally explains a cancellation.
type CancelAppointmentRequest struct {
	Reason string `json:"reason,omitempty"`
}

// SelectQuoteRequest names the winning quote.
type SelectQuoteRequest struct {
	QuoteID string `json:"quote_id" validate:"required"`
}

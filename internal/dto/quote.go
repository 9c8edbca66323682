package dto

// SubmitQuoteRequest is a mechanic's offer against a pending appointment.
// ETA is RFC3339. Semantic checks (positive price, future ETA, eligibility)
// belong to the quote validator, not binding.
type SubmitQuoteRequest struct {
	Price float64 `json:"price"`
	ETA   string  `json:"eta"`
	Notes string  `json:"notes,omitempty"`
}

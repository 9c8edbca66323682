package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mechlink/marketplace-api/internal/dto"
	"github.com/mechlink/marketplace-api/internal/models"
	"github.com/mechlink/marketplace-api/internal/repository"
	appErrors "github.com/mechlink/marketplace-api/pkg/errors"
)

type quoteStore interface {
	UpsertPending(ctx context.Context, params repository.UpsertParams) (*models.MechanicQuote, error)
	ListByAppointment(ctx context.Context, appointmentID string) ([]models.MechanicQuote, error)
	DeleteOwnPending(ctx context.Context, appointmentID, mechanicID string) error
}

type skipStore interface {
	Create(ctx context.Context, appointmentID, mechanicID string, now time.Time) error
	Exists(ctx context.Context, appointmentID, mechanicID string) (bool, error)
}

type appointmentReader interface {
	GetByID(ctx context.Context, id string) (*models.Appointment, error)
}

type mechanicDirectory interface {
	MechanicExists(ctx context.Context, mechanicID string) (bool, error)
}

// QuoteService admits, revises and withdraws mechanic quotes, and records
// skips. The validation pass is side-effect-free; the repository performs the
// actual conditional write.
type QuoteService struct {
	quotes    quoteStore
	skips     skipStore
	appts     appointmentReader
	mechanics mechanicDirectory
	feed      feedInvalidator
	logger    *zap.Logger
	now       func() time.Time
}

// NewQuoteService constructs the service.
func NewQuoteService(quotes quoteStore, skips skipStore, appts appointmentReader, mechanics mechanicDirectory, feed feedInvalidator, logger *zap.Logger) *QuoteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuoteService{
		quotes:    quotes,
		skips:     skips,
		appts:     appts,
		mechanics: mechanics,
		feed:      feed,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates and upserts the mechanic's quote. A second submission from
// the same mechanic revises the existing quote rather than creating a
// duplicate. A submission that loses the race against a selection or an
// expiry fails with INVALID_STATE, never silently lands.
func (s *QuoteService) Submit(ctx context.Context, mechanicID, appointmentID string, req dto.SubmitQuoteRequest) (*models.MechanicQuote, error) {
	eta, err := s.validate(ctx, mechanicID, appointmentID, req.Price, req.ETA)
	if err != nil {
		return nil, err
	}

	quote, err := s.quotes.UpsertPending(ctx, repository.UpsertParams{
		AppointmentID: appointmentID,
		MechanicID:    mechanicID,
		Price:         req.Price,
		ETA:           eta,
		Notes:         req.Notes,
		Now:           s.now(),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		if errors.Is(err, repository.ErrPreconditionFailed) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "this appointment is no longer accepting quotes")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit quote")
	}

	// The appointment leaves this mechanic's feed immediately.
	s.feed.InvalidateMechanic(ctx, mechanicID)
	return quote, nil
}

// validate runs the admission checks in order: mechanic resolvable,
// appointment exists and pending, not self-skipped, price positive, ETA a
// valid present-or-future timestamp.
func (s *QuoteService) validate(ctx context.Context, mechanicID, appointmentID string, price float64, rawETA string) (time.Time, error) {
	exists, err := s.mechanics.MechanicExists(ctx, mechanicID)
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve mechanic")
	}
	if !exists {
		return time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "mechanic profile not found")
	}

	appt, err := s.appts.GetByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, appErrors.ErrNotFound
		}
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}
	if appt.Status != models.AppointmentStatusPending {
		return time.Time{}, appErrors.Clone(appErrors.ErrInvalidState, "this appointment is no longer accepting quotes")
	}

	skipped, err := s.skips.Exists(ctx, appointmentID, mechanicID)
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check skip record")
	}
	if skipped {
		// A mechanic who explicitly skipped cannot quote until an edit resets skips.
		return time.Time{}, appErrors.Clone(appErrors.ErrForbidden, "you skipped this appointment")
	}

	if price <= 0 {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "price must be positive")
	}
	eta, err := time.Parse(time.RFC3339, rawETA)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "eta must be RFC3339")
	}
	if eta.Before(s.now()) {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "eta must not be in the past")
	}
	return eta, nil
}

// Withdraw removes the mechanic's own open quote from a pending appointment.
func (s *QuoteService) Withdraw(ctx context.Context, mechanicID, appointmentID string) error {
	err := s.quotes.DeleteOwnPending(ctx, appointmentID, mechanicID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		if errors.Is(err, repository.ErrPreconditionFailed) {
			return appErrors.ErrInvalidState
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw quote")
	}
	s.feed.InvalidateMechanic(ctx, mechanicID)
	return nil
}

// Skip durably hides a pending appointment from the mechanic's feed. Calling
// it twice leaves exactly one record and succeeds both times.
func (s *QuoteService) Skip(ctx context.Context, mechanicID, appointmentID string) error {
	appt, err := s.appts.GetByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}
	if appt.Status != models.AppointmentStatusPending {
		return appErrors.ErrInvalidState
	}

	if err := s.skips.Create(ctx, appointmentID, mechanicID, s.now()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record skip")
	}
	s.feed.InvalidateMechanic(ctx, mechanicID)
	return nil
}

// ListForAppointment returns every quote for the appointment. Customers see
// their own appointments' quotes; a mechanic sees only their own quote.
func (s *QuoteService) ListForAppointment(ctx context.Context, appointmentID string, actor *models.JWTClaims) ([]models.MechanicQuote, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	appt, err := s.appts.GetByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}

	quotes, err := s.quotes.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list quotes")
	}

	switch actor.Role {
	case models.RoleCustomer:
		if appt.CustomerID != actor.UserID {
			return nil, appErrors.ErrForbidden
		}
		return quotes, nil
	case models.RoleMechanic:
		own := make([]models.MechanicQuote, 0, 1)
		for _, quote := range quotes {
			if quote.MechanicID == actor.UserID {
				own = append(own, quote)
			}
		}
		return own, nil
	default:
		return nil, appErrors.ErrForbidden
	}
}

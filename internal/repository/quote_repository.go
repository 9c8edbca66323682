package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mechlink/marketplace-api/internal/models"
)

// QuoteRepository persists mechanic quotes. Uniqueness per (appointment,
// mechanic) is enforced by the table constraint; re-submission is an upsert.
type QuoteRepository struct {
	db *sqlx.DB
}

// NewQuoteRepository constructs the repository.
func NewQuoteRepository(db *sqlx.DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

// UpsertParams describes a quote submission.
type UpsertParams struct {
	AppointmentID string
	MechanicID    string
	Price         float64
	ETA           time.Time
	Notes         string
	Now           time.Time
}

// UpsertPending submits or revises the mechanic's quote. The appointment row
// is locked and its status re-checked inside the same transaction, so a
// submission racing a selection or an expiry sweep fails with
// ErrPreconditionFailed instead of landing on a non-pending appointment.
func (r *QuoteRepository) UpsertPending(ctx context.Context, params UpsertParams) (quote *models.MechanicQuote, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin quote upsert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.AppointmentStatus
	const lockQuery = `SELECT status FROM appointments WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, params.AppointmentID); err != nil {
		return nil, err
	}
	if current != models.AppointmentStatusPending {
		err = ErrPreconditionFailed
		return nil, err
	}

	// The guard on the conflict branch keeps an accepted quote from being
	// overwritten; with the pending-status lock above it is unreachable, but
	// the write states the rule the table must obey either way.
	const upsertQuery = `INSERT INTO mechanic_quotes (id, appointment_id, mechanic_id, price, eta, notes, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	ON CONFLICT (appointment_id, mechanic_id) DO UPDATE
	SET price = EXCLUDED.price, eta = EXCLUDED.eta, notes = EXCLUDED.notes,
	    status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
	WHERE mechanic_quotes.status <> $9
	RETURNING id, appointment_id, mechanic_id, price, eta, notes, status, created_at, updated_at`
	var q models.MechanicQuote
	if err = tx.GetContext(ctx, &q, upsertQuery,
		uuid.NewString(), params.AppointmentID, params.MechanicID,
		params.Price, params.ETA, params.Notes, models.QuoteStatusPending, params.Now,
		models.QuoteStatusAccepted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrPreconditionFailed
			return nil, err
		}
		return nil, fmt.Errorf("upsert quote: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit quote upsert: %w", err)
	}
	return &q, nil
}

// GetByID fetches a quote.
func (r *QuoteRepository) GetByID(ctx context.Context, id string) (*models.MechanicQuote, error) {
	const query = `SELECT id, appointment_id, mechanic_id, price, eta, notes, status, created_at, updated_at
	FROM mechanic_quotes WHERE id = $1`
	var quote models.MechanicQuote
	if err := r.db.GetContext(ctx, &quote, query, id); err != nil {
		return nil, err
	}
	return &quote, nil
}

// ListByAppointment returns every quote for the appointment, cheapest first.
func (r *QuoteRepository) ListByAppointment(ctx context.Context, appointmentID string) ([]models.MechanicQuote, error) {
	const query = `SELECT id, appointment_id, mechanic_id, price, eta, notes, status, created_at, updated_at
	FROM mechanic_quotes WHERE appointment_id = $1 ORDER BY price ASC, created_at ASC`
	var quotes []models.MechanicQuote
	if err := r.db.SelectContext(ctx, &quotes, query, appointmentID); err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	return quotes, nil
}

// DeleteOwnPending withdraws the mechanic's open quote. The appointment must
// still be pending; the quote must still be theirs and open.
func (r *QuoteRepository) DeleteOwnPending(ctx context.Context, appointmentID, mechanicID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin quote withdraw: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.AppointmentStatus
	const lockQuery = `SELECT status FROM appointments WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, appointmentID); err != nil {
		return err
	}
	if current != models.AppointmentStatusPending {
		err = ErrPreconditionFailed
		return err
	}

	const deleteQuery = `DELETE FROM mechanic_quotes
	WHERE appointment_id = $1 AND mechanic_id = $2 AND status = $3`
	result, err := tx.ExecContext(ctx, deleteQuery, appointmentID, mechanicID, models.QuoteStatusPending)
	if err != nil {
		return fmt.Errorf("withdraw quote: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		err = sql.ErrNoRows
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit quote withdraw: %w", err)
	}
	return nil
}

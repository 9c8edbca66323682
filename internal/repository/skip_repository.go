package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// SkipRepository records mechanics' durable decisions to hide an appointment
// from their own feed.
type SkipRepository struct {
	db *sqlx.DB
}

// NewSkipRepository constructs the repository.
func NewSkipRepository(db *sqlx.DB) *SkipRepository {
	return &SkipRepository{db: db}
}

// Create records the skip. Repeated calls for the same pair leave exactly one
// row and succeed.
func (r *SkipRepository) Create(ctx context.Context, appointmentID, mechanicID string, now time.Time) error {
	const query = `INSERT INTO mechanic_skips (appointment_id, mechanic_id, created_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (appointment_id, mechanic_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, appointmentID, mechanicID, now); err != nil {
		return fmt.Errorf("create skip: %w", err)
	}
	return nil
}

// Exists reports whether the mechanic skipped the appointment.
func (r *SkipRepository) Exists(ctx context.Context, appointmentID, mechanicID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM mechanic_skips WHERE appointment_id = $1 AND mechanic_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, appointmentID, mechanicID); err != nil {
		return false, fmt.Errorf("check skip: %w", err)
	}
	return exists, nil
}

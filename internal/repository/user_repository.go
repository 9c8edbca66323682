package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// UserRepository resolves opaque identity references. The rows are owned by
// the identity system; the engine only checks existence.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// MechanicExists reports whether the mechanic ID resolves to a profile.
func (r *UserRepository) MechanicExists(ctx context.Context, mechanicID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM mechanics WHERE id = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, mechanicID); err != nil {
		return false, fmt.Errorf("check mechanic: %w", err)
	}
	return exists, nil
}

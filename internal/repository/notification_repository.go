package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mechlink/marketplace-api/internal/models"
)

// NotificationRepository reads the write-once edit log. Notifications are
// appended inside the owning transaction by AppointmentRepository.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// ListByAppointment returns the appointment's event log, oldest first.
func (r *NotificationRepository) ListByAppointment(ctx context.Context, appointmentID string) ([]models.EditNotification, error) {
	const query = `SELECT id, appointment_id, type, message, created_at
	FROM edit_notifications WHERE appointment_id = $1 ORDER BY created_at ASC`
	var notifications []models.EditNotification
	if err := r.db.SelectContext(ctx, &notifications, query, appointmentID); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mechlink/marketplace-api/internal/models"
)

// ErrPreconditionFailed signals that a conditional write found the row in a
// different lifecycle state than expected. The caller's view was stale; the
// transaction has been rolled back.
var ErrPreconditionFailed = errors.New("appointment state precondition failed")

const appointmentColumns = `id, customer_id, status, address, latitude, longitude, scheduled_at, asap,
	issue_description, selected_services, car_runs, selected_mechanic_id, selected_quote_id,
	edited_after_quotes, is_being_edited, cancelled_by, cancel_reason, created_at, updated_at`

// AppointmentRepository persists appointments and owns every multi-row atomic
// unit touching them.
type AppointmentRepository struct {
	db *sqlx.DB
}

// NewAppointmentRepository constructs the repository.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// CreateWithVehicle inserts the appointment and its 1:1 vehicle atomically.
func (r *AppointmentRepository) CreateWithVehicle(ctx context.Context, appt *models.Appointment, vehicle *models.Vehicle) (err error) {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.Status == "" {
		appt.Status = models.AppointmentStatusPending
	}
	if appt.CarRuns == "" {
		appt.CarRuns = models.CarRunsUnknown
	}
	now := time.Now().UTC()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	appt.UpdatedAt = appt.CreatedAt

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create appointment: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertAppt = `INSERT INTO appointments
	(id, customer_id, status, address, latitude, longitude, scheduled_at, asap, issue_description,
	 selected_services, car_runs, edited_after_quotes, is_being_edited, created_at, updated_at)
	VALUES (:id, :customer_id, :status, :address, :latitude, :longitude, :scheduled_at, :asap,
	 :issue_description, :selected_services, :car_runs, false, false, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertAppt, appt); err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}

	vehicle.ID = uuid.NewString()
	vehicle.AppointmentID = appt.ID
	vehicle.CreatedAt = appt.CreatedAt
	vehicle.UpdatedAt = appt.CreatedAt
	const insertVehicle = `INSERT INTO vehicles (id, appointment_id, year, make, model, vin, mileage, created_at, updated_at)
	VALUES (:id, :appointment_id, :year, :make, :model, :vin, :mileage, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertVehicle, vehicle); err != nil {
		return fmt.Errorf("insert vehicle: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create appointment: %w", err)
	}
	appt.Vehicle = vehicle
	return nil
}

// GetByID fetches an appointment with its vehicle.
func (r *AppointmentRepository) GetByID(ctx context.Context, id string) (*models.Appointment, error) {
	query := fmt.Sprintf(`SELECT %s FROM appointments WHERE id = $1`, appointmentColumns)
	var appt models.Appointment
	if err := r.db.GetContext(ctx, &appt, query, id); err != nil {
		return nil, err
	}

	const vehicleQuery = `SELECT id, appointment_id, year, make, model, vin, mileage, created_at, updated_at
	FROM vehicles WHERE appointment_id = $1`
	var vehicle models.Vehicle
	if err := r.db.GetContext(ctx, &vehicle, vehicleQuery, id); err != nil {
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("get appointment vehicle: %w", err)
		}
	} else {
		appt.Vehicle = &vehicle
	}
	return &appt, nil
}

// List returns appointments matching the filter, newest first.
func (r *AppointmentRepository) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 3)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM appointments", appointmentColumns))

	conditions := make([]string, 0, 2)
	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		args = append(args, pq.Array(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var appts []models.Appointment
	if err := r.db.SelectContext(ctx, &appts, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// ConfirmSelectionParams groups the rows touched by a quote selection.
type ConfirmSelectionParams struct {
	AppointmentID string
	QuoteID       string
	MechanicID    string
	Now           time.Time
}

// ConfirmSelection atomically accepts the chosen quote, rejects its siblings
// and flips the appointment to CONFIRMED. The status check-and-set happens in
// the same transaction as the quote writes, so a selection racing a late
// submit or an expiry sweep either fully applies or fails with
// ErrPreconditionFailed.
func (r *AppointmentRepository) ConfirmSelection(ctx context.Context, params ConfirmSelectionParams) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin confirm selection: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const confirmQuery = `UPDATE appointments
	SET status = $1, selected_mechanic_id = $2, selected_quote_id = $3, updated_at = $4
	WHERE id = $5 AND status = $6`
	result, err := tx.ExecContext(ctx, confirmQuery,
		models.AppointmentStatusConfirmed, params.MechanicID, params.QuoteID, params.Now,
		params.AppointmentID, models.AppointmentStatusPending)
	if err != nil {
		return fmt.Errorf("confirm appointment: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		err = ErrPreconditionFailed
		return err
	}

	const acceptQuery = `UPDATE mechanic_quotes SET status = $1, updated_at = $2
	WHERE id = $3 AND appointment_id = $4 AND status = $5`
	result, err = tx.ExecContext(ctx, acceptQuery,
		models.QuoteStatusAccepted, params.Now, params.QuoteID, params.AppointmentID, models.QuoteStatusPending)
	if err != nil {
		return fmt.Errorf("accept quote: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		err = ErrPreconditionFailed
		return err
	}

	const rejectQuery = `UPDATE mechanic_quotes SET status = $1, updated_at = $2
	WHERE appointment_id = $3 AND id <> $4 AND status = $5`
	if _, err = tx.ExecContext(ctx, rejectQuery,
		models.QuoteStatusRejected, params.Now, params.AppointmentID, params.QuoteID, models.QuoteStatusPending); err != nil {
		return fmt.Errorf("reject sibling quotes: %w", err)
	}

	if err = insertNotification(ctx, tx, params.AppointmentID, models.NotificationTypeConfirmed, "a quote was selected for this appointment", params.Now); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit confirm selection: %w", err)
	}
	return nil
}

// CancelParams describes a cancellation attempt.
type CancelParams struct {
	AppointmentID string
	Expected      []models.AppointmentStatus
	Actor         models.CancelActor
	Reason        string
	Now           time.Time
}

// CancelResult reports what the cancellation touched.
type CancelResult struct {
	PrevStatus        models.AppointmentStatus
	AffectedMechanics []string
}

// Cancel transitions the appointment to CANCELLED if its current status is in
// the expected set, discarding outstanding pending quotes when cancelling a
// still-pending request. Returns sql.ErrNoRows when the appointment does not
// exist and ErrPreconditionFailed when another actor moved it first.
func (r *AppointmentRepository) Cancel(ctx context.Context, params CancelParams) (result CancelResult, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin cancel: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.AppointmentStatus
	const lockQuery = `SELECT status FROM appointments WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, params.AppointmentID); err != nil {
		return result, err
	}
	if !statusIn(current, params.Expected) {
		err = ErrPreconditionFailed
		return result, err
	}
	result.PrevStatus = current

	const cancelQuery = `UPDATE appointments
	SET status = $1, cancelled_by = $2, cancel_reason = $3, updated_at = $4
	WHERE id = $5`
	if _, err = tx.ExecContext(ctx, cancelQuery,
		models.AppointmentStatusCancelled, params.Actor, params.Reason, params.Now, params.AppointmentID); err != nil {
		return result, fmt.Errorf("cancel appointment: %w", err)
	}

	// Pre-selection cancellation discards open offers; post-selection keeps
	// the accepted/rejected rows for audit.
	if current == models.AppointmentStatusPending {
		const deleteQuotes = `DELETE FROM mechanic_quotes WHERE appointment_id = $1 RETURNING mechanic_id`
		if err = tx.SelectContext(ctx, &result.AffectedMechanics, deleteQuotes, params.AppointmentID); err != nil {
			return result, fmt.Errorf("discard quotes on cancel: %w", err)
		}
	}

	notifType := models.NotificationTypeCancelled
	if params.Actor == models.CancelActorSystem {
		notifType = models.NotificationTypeExpired
	}
	if err = insertNotification(ctx, tx, params.AppointmentID, notifType, "this appointment was cancelled", params.Now); err != nil {
		return result, err
	}

	if err = tx.Commit(); err != nil {
		return result, fmt.Errorf("commit cancel: %w", err)
	}
	return result, nil
}

// UpdateStatusParams drives the simple single-row transitions (start/complete).
type UpdateStatusParams struct {
	AppointmentID string
	MechanicID    string
	From          models.AppointmentStatus
	To            models.AppointmentStatus
	Now           time.Time
}

// UpdateStatusAsMechanic moves the appointment From→To only when the caller is
// the selected mechanic and the status still matches. ErrPreconditionFailed on
// a lost race or mismatch.
func (r *AppointmentRepository) UpdateStatusAsMechanic(ctx context.Context, params UpdateStatusParams) error {
	const query = `UPDATE appointments SET status = $1, updated_at = $2
	WHERE id = $3 AND status = $4 AND selected_mechanic_id = $5`
	result, err := r.db.ExecContext(ctx, query,
		params.To, params.Now, params.AppointmentID, params.From, params.MechanicID)
	if err != nil {
		return fmt.Errorf("update appointment status: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrPreconditionFailed
	}
	return nil
}

// SetEditLock toggles the advisory is_being_edited flag. It never blocks other
// transitions; consumers treat it as a soft warning only.
func (r *AppointmentRepository) SetEditLock(ctx context.Context, appointmentID string, locked bool, now time.Time) error {
	const query = `UPDATE appointments SET is_being_edited = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, locked, now, appointmentID)
	if err != nil {
		return fmt.Errorf("set edit lock: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// VehicleUpdate carries the vehicle columns replaced during an edit.
type VehicleUpdate struct {
	Year    int
	Make    string
	Model   string
	VIN     *string
	Mileage *int
}

// ApplyEditParams carries a material revision. Nil pointers leave the column
// untouched; SelectedServices is replaced only when non-nil.
type ApplyEditParams struct {
	AppointmentID    string
	Address          *string
	Latitude         *float64
	Longitude        *float64
	ScheduledAt      *time.Time
	ASAP             *bool
	IssueDescription *string
	SelectedServices models.ServiceList
	CarRuns          *models.CarRuns
	Vehicle          *VehicleUpdate
	Now              time.Time
}

// ApplyEditResult reports whether the invalidation cascade fired and which
// mechanics lost a quote or skip.
type ApplyEditResult struct {
	CascadeFired      bool
	AffectedMechanics []string
}

// ApplyEdit updates the appointment (and vehicle) under a row lock. When one
// or more quotes exist at edit time the invalidation cascade runs in the same
// transaction: all quotes and skips are dropped, the appointment is forced
// back to PENDING with its selection cleared, edited_after_quotes is set, and
// an edit notification is appended. No reader ever observes a partial cascade.
func (r *AppointmentRepository) ApplyEdit(ctx context.Context, params ApplyEditParams) (result ApplyEditResult, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin apply edit: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.AppointmentStatus
	const lockQuery = `SELECT status FROM appointments WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, params.AppointmentID); err != nil {
		return result, err
	}
	if current != models.AppointmentStatusPending && current != models.AppointmentStatusConfirmed {
		err = ErrPreconditionFailed
		return result, err
	}

	setParts := []string{"updated_at = :updated_at", "is_being_edited = false"}
	editArgs := map[string]interface{}{
		"id":         params.AppointmentID,
		"updated_at": params.Now,
	}
	if params.Address != nil {
		setParts = append(setParts, "address = :address")
		editArgs["address"] = *params.Address
	}
	if params.Latitude != nil {
		setParts = append(setParts, "latitude = :latitude")
		editArgs["latitude"] = *params.Latitude
	}
	if params.Longitude != nil {
		setParts = append(setParts, "longitude = :longitude")
		editArgs["longitude"] = *params.Longitude
	}
	if params.ScheduledAt != nil {
		setParts = append(setParts, "scheduled_at = :scheduled_at")
		editArgs["scheduled_at"] = *params.ScheduledAt
	}
	if params.ASAP != nil {
		setParts = append(setParts, "asap = :asap")
		editArgs["asap"] = *params.ASAP
	}
	if params.IssueDescription != nil {
		setParts = append(setParts, "issue_description = :issue_description")
		editArgs["issue_description"] = *params.IssueDescription
	}
	if params.SelectedServices != nil {
		setParts = append(setParts, "selected_services = :selected_services")
		editArgs["selected_services"] = params.SelectedServices
	}
	if params.CarRuns != nil {
		setParts = append(setParts, "car_runs = :car_runs")
		editArgs["car_runs"] = *params.CarRuns
	}

	var quoteMechanics []string
	const quoteOwnersQuery = `SELECT mechanic_id FROM mechanic_quotes WHERE appointment_id = $1`
	if err = tx.SelectContext(ctx, &quoteMechanics, quoteOwnersQuery, params.AppointmentID); err != nil {
		return result, fmt.Errorf("list quote owners: %w", err)
	}

	if len(quoteMechanics) > 0 {
		result.CascadeFired = true
		result.AffectedMechanics = quoteMechanics

		const deleteQuotes = `DELETE FROM mechanic_quotes WHERE appointment_id = $1`
		if _, err = tx.ExecContext(ctx, deleteQuotes, params.AppointmentID); err != nil {
			return result, fmt.Errorf("invalidate quotes: %w", err)
		}

		var skippers []string
		const deleteSkips = `DELETE FROM mechanic_skips WHERE appointment_id = $1 RETURNING mechanic_id`
		if err = tx.SelectContext(ctx, &skippers, deleteSkips, params.AppointmentID); err != nil {
			return result, fmt.Errorf("clear skips: %w", err)
		}
		result.AffectedMechanics = append(result.AffectedMechanics, skippers...)

		setParts = append(setParts,
			"status = :status",
			"edited_after_quotes = true",
			"selected_mechanic_id = NULL",
			"selected_quote_id = NULL",
		)
		editArgs["status"] = models.AppointmentStatusPending
	}

	query := fmt.Sprintf("UPDATE appointments SET %s WHERE id = :id", strings.Join(setParts, ", "))
	if _, err = tx.NamedExecContext(ctx, query, editArgs); err != nil {
		return result, fmt.Errorf("apply edit: %w", err)
	}

	if params.Vehicle != nil {
		const vehicleQuery = `UPDATE vehicles SET year = $1, make = $2, model = $3, vin = $4, mileage = $5, updated_at = $6
		WHERE appointment_id = $7`
		if _, err = tx.ExecContext(ctx, vehicleQuery,
			params.Vehicle.Year, params.Vehicle.Make, params.Vehicle.Model,
			params.Vehicle.VIN, params.Vehicle.Mileage, params.Now, params.AppointmentID); err != nil {
			return result, fmt.Errorf("update vehicle: %w", err)
		}
	}

	if result.CascadeFired {
		if err = insertNotification(ctx, tx, params.AppointmentID, models.NotificationTypeEdited,
			"this appointment was updated, please re-quote", params.Now); err != nil {
			return result, err
		}
	}

	if err = tx.Commit(); err != nil {
		return result, fmt.Errorf("commit apply edit: %w", err)
	}
	return result, nil
}

// ListExpiredPending returns pending appointments whose deadline has passed:
// scheduled requests past scheduled_at+grace, ASAP requests past created_at+ttl.
func (r *AppointmentRepository) ListExpiredPending(ctx context.Context, now time.Time, grace, asapTTL time.Duration, limit int) ([]models.Appointment, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM appointments
	WHERE status = $1
	  AND ((NOT asap AND scheduled_at < $2) OR (asap AND created_at < $3))
	ORDER BY scheduled_at ASC
	LIMIT %d`, appointmentColumns, limit)

	var appts []models.Appointment
	if err := r.db.SelectContext(ctx, &appts, query,
		models.AppointmentStatusPending, now.Add(-grace), now.Add(-asapTTL)); err != nil {
		return nil, fmt.Errorf("list expired pending: %w", err)
	}
	return appts, nil
}

// ListAvailableForMechanic computes the mechanic's feed as a set difference:
// pending appointments minus everything the mechanic skipped or quoted, minus
// anything already past its expiry deadline.
func (r *AppointmentRepository) ListAvailableForMechanic(ctx context.Context, mechanicID string, now time.Time, grace, asapTTL time.Duration) ([]models.AppointmentSummary, error) {
	const query = `SELECT a.id, a.address, a.scheduled_at, a.asap, a.issue_description, a.selected_services,
	a.car_runs, v.year AS vehicle_year, v.make AS vehicle_make, v.model AS vehicle_model, a.created_at
	FROM appointments a
	JOIN vehicles v ON v.appointment_id = a.id
	WHERE a.status = $1
	  AND NOT EXISTS (SELECT 1 FROM mechanic_skips s WHERE s.appointment_id = a.id AND s.mechanic_id = $2)
	  AND NOT EXISTS (SELECT 1 FROM mechanic_quotes q WHERE q.appointment_id = a.id AND q.mechanic_id = $2)
	  AND ((NOT a.asap AND a.scheduled_at >= $3) OR (a.asap AND a.created_at >= $4))
	ORDER BY a.scheduled_at ASC`

	var summaries []models.AppointmentSummary
	if err := r.db.SelectContext(ctx, &summaries, query,
		models.AppointmentStatusPending, mechanicID, now.Add(-grace), now.Add(-asapTTL)); err != nil {
		return nil, fmt.Errorf("list available appointments: %w", err)
	}
	return summaries, nil
}

func insertNotification(ctx context.Context, tx *sqlx.Tx, appointmentID string, notifType models.NotificationType, message string, now time.Time) error {
	const query = `INSERT INTO edit_notifications (id, appointment_id, type, message, created_at)
	VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(ctx, query, uuid.NewString(), appointmentID, notifType, message, now); err != nil {
		return fmt.Errorf("append notification: %w", err)
	}
	return nil
}

func statusIn(status models.AppointmentStatus, set []models.AppointmentStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

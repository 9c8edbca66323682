package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/mechlink/marketplace-api/internal/models"
)

func newAppointmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAppointmentRepositoryCreateWithVehicle(t *testing.T) {
	db, mock, cleanup := newAppointmentRepoMock(t)
	defer cleanup()

	repo := NewAppointmentRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO appointments")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO vehicles")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	appt := &models.Appointment{
		CustomerID:       "customer-1",
		Address:          "12 Main St",
		ScheduledAt:      time.Now().Add(48 * time.Hour),
		IssueDescription: "brakes squeal",
	}
	vehicle := &models.Vehicle{Year: 2019, Make: "Toyota", Model: "Corolla"}
	require.NoError(t, repo.CreateWithVehicle(context.Background(), appt, vehicle))
	require.NotEmpty(t, appt.ID)
	require.Equal(t, models.AppointmentStatusPending, appt.Status)
	require.Equal(t, appt.ID, vehicle.AppointmentID)
	require.Same(t, vehicle, appt.Vehicle)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryConfirmSelection(t *testing.T) {
	db, mock, cleanup := newAppointmentRepoMock(t)
	defer cleanup()

	repo := NewAppointmentRepository(db)
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE appointments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE mechanic_quotes SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE mechanic_quotes SET")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO edit_notifications")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.ConfirmSelection(context.Background(), ConfirmSelectionParams{
		AppointmentID: "appt-1",
		QuoteID:       "quote-1",
		MechanicID:    "mech-1",
		Now:           now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryConfirmSelectionStaleAppointment(t *testing.T) {
	db, mock, cleanup := newAppointmentRepoMock(t)
	defer cleanup()

	repo := NewAppointmentRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE appointments")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.ConfirmSelection(context.Background(), ConfirmSelectionParams{
		AppointmentID: "appt-1",
		QuoteID:       "quote-1",
		MechanicID:    "mech-1",
		Now:           time.Now(),
	})
	require.ErrorIs(t, err, ErrPreconditionFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryConfirmSelectionStaleQuote(t *testing.T) {
	db, mock, cleanup := newAppointmentRepoMock(t)
	defer cleanup()

	repo := NewAppointmentRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE appointments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE mechanic_quotes SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.ConfirmSelection(context.Background(), ConfirmSelectionParams{
		AppointmentID: "appt-1",
		QuoteID:       "quote-gone",
		MechanicID:    "mech-1",
		Now:           time.Now(),
	})
	require.ErrorIs(t, err, ErrPreconditionFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryCancelPendingDiscardsQuotes(t *testing.T) {
	db, mock, cleanup := newAppointmentRepoMock(t)
	defer cleanup()

	repo := NewAppointmentRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM appointments")).
		WithArgs("appt-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PENDING"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE appointments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM mechanic_quotes")).
		WithArgs("appt-1").
		WillReturnRows(sqlmock.NewRows([]string{"mechanic_id"}).AddRow("mech-1").AddRow("mech-2"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO edit_notifications")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, err := repo.Cancel(context.Background(), CancelParams{
		AppointmentID: "appt-1",
		Expected:      []models.AppointmentStatus{models.AppointmentStatusPending},
		Actor:         models.CancelActorCustomer,
		Reason:        "changed plans",
		Now:           time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, models.AppointmentStatusPending, result.PrevStatus)
	require.Equal(t, []string{"mech-1", "mech-2"}, result.AffectedMechanics)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryCancelKeepsQuotesAfterSelection(t *testing.T) {
	db, mock, cleanup := newAppointmentRepoMock(t)
	defer cleanup()

	repo := NewAppointmentRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM appointments")).
		WithArgs("appt-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("CONFIRMED"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE appointments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO edit_notifications")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, err := repo.Cancel(context.Background(), CancelParams{
		AppointmentID: "appt-1",
		Expected: []models.AppointmentStatus{
			models.AppointmentStatusConfirmed,
			models.AppointmentStatusInProgress,
		},
		Actor: models.CancelActorMechanic,
		Now:   time.Now(),
	})
	require.NoError(t, err)
	require.Empty(t, result.AffectedMechanics)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryCancelWrongState(t *testing.T) {
	db, mock, cleanup := newAppointmentRepoMock(t)
	defer cleanup()

	repo := NewAppointmentRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM appointments")).
		WithArgs("appt-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("CONFIRMED"))
	mock.ExpectRollback()

	_, err := repo.Cancel(context.Background(), CancelParams{
		AppointmentID: "appt-1",
		Expected:      []models.AppointmentStatus{models.AppointmentStatusPending},
		Actor:         models.CancelActorSystem,
		Reason:        models.CancelReasonExpired,
		Now:           time.Now(),
	})
	require.ErrorIs(t, err, ErrPreconditionFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryCancelMissing(t *testing.T) {
	db, mock, cleanup := newAppointmentRepoMock(t)
	defer cleanup()

	repo := NewAppointmentRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM appointments")).
		WithArgs("appt-404").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Cancel(context.Background(), CancelParams{
		AppointmentID: "appt-404",
		Expected:      []models.AppointmentStatus{models.AppointmentStatusPending},
		Actor:         models.CancelActorSystem,
		Now:           time.Now(),
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryUpdateStatusAsMechanic(t *testing.T) {
	db, mock, cleanup := newAppointmentRepoMock(t)
	defer cleanup()

	repo := NewAppointmentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE appointments SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	err := repo.UpdateStatusAsMechanic(context.Background(), UpdateStatusParams{
		AppointmentID: "appt-1",
		MechanicID:    "mech-1",
		From:          models.AppointmentStatusConfirmed,
		To:            models.AppointmentStatusInProgress,
		Now:           time.Now(),
	})
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE appointments SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.UpdateStatusAsMechanic(context.Background(), UpdateStatusParams{
		AppointmentID: "appt-1",
		MechanicID:    "mech-1",
		From:          models.AppointmentStatusConfirmed,
		To:            models.AppointmentStatusInProgress,
		Now:           time.Now(),
	})
	require.ErrorIs(t, err, ErrPreconditionFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryApplyEditWithoutQuotes(t *testing.T) {
	db, mock, cleanup := newAppointmentRepoMock(t)
	defer cleanup()

	repo := NewAppointmentRepository(db)
	address := "99 Oak Ave"
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM appointments")).
		WithArgs("appt-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PENDING"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT mechanic_id FROM mechanic_quotes")).
		WithArgs("appt-1").
		WillReturnRows(sqlmock.NewRows([]string{"mechanic_id"}))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE appointments SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.ApplyEdit(context.Background(), ApplyEditParams{
		AppointmentID: "appt-1",
		Address:       &address,
		Now:           time.Now(),
	})
	require.NoError(t, err)
	require.False(t, result.CascadeFired)
	require.Empty(t, result.AffectedMechanics)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryApplyEditCascade(t *testing.T) {
	db, mock, cleanup := newAppointmentRepoMock(t)
	defer cleanup()

	repo := NewAppointmentRepository(db)
	issue := "engine stalls at idle"
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM appointments")).
		WithArgs("appt-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("CONFIRMED"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT mechanic_id FROM mechanic_quotes")).
		WithArgs("appt-1").
		WillReturnRows(sqlmock.NewRows([]string{"mechanic_id"}).AddRow("mech-1").AddRow("mech-2"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM mechanic_quotes")).
		WithArgs("appt-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM mechanic_skips")).
		WithArgs("appt-1").
		WillReturnRows(sqlmock.NewRows([]string{"mechanic_id"}).AddRow("mech-3"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE appointments SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO edit_notifications")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, err := repo.ApplyEdit(context.Background(), ApplyEditParams{
		AppointmentID:    "appt-1",
		IssueDescription: &issue,
		Now:              time.Now(),
	})
	require.NoError(t, err)
	require.True(t, result.CascadeFired)
	require.Equal(t, []string{"mech-1", "mech-2", "mech-3"}, result.AffectedMechanics)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryApplyEditTerminalState(t *testing.T) {
	db, mock, cleanup := newAppointmentRepoMock(t)
	defer cleanup()

	repo := NewAppointmentRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM appointments")).
		WithArgs("appt-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("COMPLETED"))
	mock.ExpectRollback()

	_, err := repo.ApplyEdit(context.Background(), ApplyEditParams{
		AppointmentID: "appt-1",
		Now:           time.Now(),
	})
	require.ErrorIs(t, err, ErrPreconditionFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryListExpiredPending(t *testing.T) {
	db, mock, cleanup := newAppointmentRepoMock(t)
	defer cleanup()

	repo := NewAppointmentRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "customer_id", "status", "address", "latitude", "longitude",
		"scheduled_at", "asap", "issue_description", "selected_services", "car_runs",
		"selected_mechanic_id", "selected_quote_id", "edited_after_quotes", "is_being_edited",
		"cancelled_by", "cancel_reason", "created_at", "updated_at"}).
		AddRow("appt-1", "customer-1", "PENDING", "12 Main St", nil, nil,
			now.Add(-3*time.Hour), false, "dead battery", "{}", "NO",
			nil, nil, false, false, nil, nil, now.Add(-4*time.Hour), now.Add(-4*time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("PENDING", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	expired, err := repo.ListExpiredPending(context.Background(), now, time.Hour, 4*time.Hour, 100)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, "appt-1", expired[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryListAvailableForMechanic(t *testing.T) {
	db, mock, cleanup := newAppointmentRepoMock(t)
	defer cleanup()

	repo := NewAppointmentRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "address", "scheduled_at", "asap", "issue_description",
		"selected_services", "car_runs", "vehicle_year", "vehicle_make", "vehicle_model", "created_at"}).
		AddRow("appt-1", "12 Main St", now.Add(24*time.Hour), false, "brakes squeal",
			"{brake_service}", "YES", 2019, "Toyota", "Corolla", now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT a.id, a.address")).
		WithArgs("PENDING", "mech-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	feed, err := repo.ListAvailableForMechanic(context.Background(), "mech-1", now, time.Hour, 4*time.Hour)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	require.Equal(t, "Toyota", feed[0].VehicleMake)
	require.NoError(t, mock.ExpectationsWereMet())
}

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

func newQuoteRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func quoteColumns() []string {
	return []string{"id", "appointment_id", "mechanic_id", "price", "eta", "notes", "status", "created_at", "updated_at"}
}

func TestQuoteRepositoryUpsertPending(t *testing.T) {
	db, mock, cleanup := newQuoteRepoMock(t)
	defer cleanup()

	repo := NewQuoteRepository(db)
	now := time.Now()
	eta := now.Add(24 * time.Hour)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM appointments")).
		WithArgs("appt-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PENDING"))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO mechanic_quotes")).
		WillReturnRows(sqlmock.NewRows(quoteColumns()).
			AddRow("quote-1", "appt-1", "mech-1", 180.50, eta, "includes pads", "PENDING", now, now))
	mock.ExpectCommit()

	quote, err := repo.UpsertPending(context.Background(), UpsertParams{
		AppointmentID: "appt-1",
		MechanicID:    "mech-1",
		Price:         180.50,
		ETA:           eta,
		Notes:         "includes pads",
		Now:           now,
	})
	require.NoError(t, err)
	require.Equal(t, "quote-1", quote.ID)
	require.Equal(t, models.QuoteStatusPending, quote.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteRepositoryUpsertPendingLostRace(t *testing.T) {
	db, mock, cleanup := newQuoteRepoMock(t)
	defer cleanup()

	repo := NewQuoteRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM appointments")).
		WithArgs("appt-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("CONFIRMED"))
	mock.ExpectRollback()

	_, err := repo.UpsertPending(context.Background(), UpsertParams{
		AppointmentID: "appt-1",
		MechanicID:    "mech-1",
		Price:         99,
		ETA:           time.Now().Add(time.Hour),
		Now:           time.Now(),
	})
	require.ErrorIs(t, err, ErrPreconditionFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteRepositoryUpsertPendingSkipsAcceptedRow(t *testing.T) {
	db, mock, cleanup := newQuoteRepoMock(t)
	defer cleanup()

	repo := NewQuoteRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM appointments")).
		WithArgs("appt-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PENDING"))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO mechanic_quotes")).
		WillReturnRows(sqlmock.NewRows(quoteColumns()))
	mock.ExpectRollback()

	_, err := repo.UpsertPending(context.Background(), UpsertParams{
		AppointmentID: "appt-1",
		MechanicID:    "mech-1",
		Price:         99,
		ETA:           time.Now().Add(time.Hour),
		Now:           time.Now(),
	})
	require.ErrorIs(t, err, ErrPreconditionFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteRepositoryUpsertPendingMissingAppointment(t *testing.T) {
	db, mock, cleanup := newQuoteRepoMock(t)
	defer cleanup()

	repo := NewQuoteRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM appointments")).
		WithArgs("appt-404").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.UpsertPending(context.Background(), UpsertParams{
		AppointmentID: "appt-404",
		MechanicID:    "mech-1",
		Price:         99,
		ETA:           time.Now().Add(time.Hour),
		Now:           time.Now(),
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteRepositoryDeleteOwnPending(t *testing.T) {
	db, mock, cleanup := newQuoteRepoMock(t)
	defer cleanup()

	repo := NewQuoteRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM appointments")).
		WithArgs("appt-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PENDING"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM mechanic_quotes")).
		WithArgs("appt-1", "mech-1", "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.DeleteOwnPending(context.Background(), "appt-1", "mech-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteRepositoryDeleteOwnPendingNothingToWithdraw(t *testing.T) {
	db, mock, cleanup := newQuoteRepoMock(t)
	defer cleanup()

	repo := NewQuoteRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM appointments")).
		WithArgs("appt-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PENDING"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM mechanic_quotes")).
		WithArgs("appt-1", "mech-1", "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.DeleteOwnPending(context.Background(), "appt-1", "mech-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteRepositoryDeleteOwnPendingAfterSelection(t *testing.T) {
	db, mock, cleanup := newQuoteRepoMock(t)
	defer cleanup()

	repo := NewQuoteRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM appointments")).
		WithArgs("appt-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("CONFIRMED"))
	mock.ExpectRollback()

	err := repo.DeleteOwnPending(context.Background(), "appt-1", "mech-1")
	require.ErrorIs(t, err, ErrPreconditionFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteRepositoryListByAppointment(t *testing.T) {
	db, mock, cleanup := newQuoteRepoMock(t)
	defer cleanup()

	repo := NewQuoteRepository(db)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, appointment_id, mechanic_id")).
		WithArgs("appt-1").
		WillReturnRows(sqlmock.NewRows(quoteColumns()).
			AddRow("quote-1", "appt-1", "mech-1", 150.0, now.Add(time.Hour), "", "PENDING", now, now).
			AddRow("quote-2", "appt-1", "mech-2", 210.0, now.Add(2*time.Hour), "", "PENDING", now, now))

	quotes, err := repo.ListByAppointment(context.Background(), "appt-1")
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	require.Equal(t, "quote-1", quotes[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

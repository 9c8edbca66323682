package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mechlink/marketplace-api/internal/dto"
	"github.com/mechlink/marketplace-api/internal/models"
	"github.com/mechlink/marketplace-api/internal/repository"
	"github.com/mechlink/marketplace-api/pkg/config"
	appErrors "github.com/mechlink/marketplace-api/pkg/errors"
)

type appointmentStore interface {
	CreateWithVehicle(ctx context.Context, appt *models.Appointment, vehicle *models.Vehicle) error
	GetByID(ctx context.Context, id string) (*models.Appointment, error)
	List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, error)
	ConfirmSelection(ctx context.Context, params repository.ConfirmSelectionParams) error
	Cancel(ctx context.Context, params repository.CancelParams) (repository.CancelResult, error)
	UpdateStatusAsMechanic(ctx context.Context, params repository.UpdateStatusParams) error
	SetEditLock(ctx context.Context, appointmentID string, locked bool, now time.Time) error
	ApplyEdit(ctx context.Context, params repository.ApplyEditParams) (repository.ApplyEditResult, error)
}

type quoteReader interface {
	GetByID(ctx context.Context, id string) (*models.MechanicQuote, error)
}

type notificationReader interface {
	ListByAppointment(ctx context.Context, appointmentID string) ([]models.EditNotification, error)
}

type eventEmitter interface {
	Emit(event models.AppointmentEvent)
}

type feedInvalidator interface {
	InvalidateMechanic(ctx context.Context, mechanicID string)
	InvalidateAll(ctx context.Context)
}

// AppointmentService owns the authoritative lifecycle transitions of an
// appointment and the side effects each transition triggers. Correctness
// under concurrency comes from the repository's conditional writes, not from
// locks held here: every mutating call re-checks its status precondition
// inside the storage transaction and fails typed when the caller's view was
// stale.
type AppointmentService struct {
	repo          appointmentStore
	quotes        quoteReader
	notifications notificationReader
	events        eventEmitter
	feed          feedInvalidator
	metrics       *MetricsService
	scheduling    config.SchedulingConfig
	validator     *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
}

// NewAppointmentService constructs the service.
func NewAppointmentService(
	repo appointmentStore,
	quotes quoteReader,
	notifications notificationReader,
	events eventEmitter,
	feed feedInvalidator,
	metrics *MetricsService,
	scheduling config.SchedulingConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *AppointmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppointmentService{
		repo:          repo,
		quotes:        quotes,
		notifications: notifications,
		events:        events,
		feed:          feed,
		metrics:       metrics,
		scheduling:    scheduling,
		validator:     validate,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Create opens a new repair request in PENDING with its vehicle attached.
func (s *AppointmentService) Create(ctx context.Context, customerID string, req dto.CreateAppointmentRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid appointment payload")
	}

	scheduledAt, err := s.resolveSchedule(req.ScheduledAt, req.ASAP)
	if err != nil {
		return nil, err
	}

	carRuns := models.CarRuns(req.CarRuns)
	if carRuns == "" {
		carRuns = models.CarRunsUnknown
	}

	appt := &models.Appointment{
		CustomerID:       customerID,
		Status:           models.AppointmentStatusPending,
		Address:          req.Address,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		ScheduledAt:      scheduledAt,
		ASAP:             req.ASAP,
		IssueDescription: req.IssueDescription,
		SelectedServices: models.ServiceList(req.SelectedServices),
		CarRuns:          carRuns,
		CreatedAt:        s.now(),
	}
	vehicle := &models.Vehicle{
		Year:    req.Vehicle.Year,
		Make:    req.Vehicle.Make,
		Model:   req.Vehicle.Model,
		VIN:     req.Vehicle.VIN,
		Mileage: req.Vehicle.Mileage,
	}

	if err := s.repo.CreateWithVehicle(ctx, appt, vehicle); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create appointment")
	}

	s.metrics.ObserveTransition(string(models.AppointmentStatusPending))
	// A new pending request enters every mechanic's feed.
	s.feed.InvalidateAll(ctx)
	return appt, nil
}

// Get returns the appointment to its owner or its selected mechanic.
func (s *AppointmentService) Get(ctx context.Context, appointmentID string, actor *models.JWTClaims) (*models.Appointment, error) {
	appt, err := s.getAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !canView(appt, actor) {
		return nil, appErrors.ErrForbidden
	}
	return appt, nil
}

// ListForCustomer returns the customer's own appointments.
func (s *AppointmentService) ListForCustomer(ctx context.Context, customerID string, statuses []models.AppointmentStatus, limit, offset int) ([]models.Appointment, error) {
	appts, err := s.repo.List(ctx, models.AppointmentFilter{
		CustomerID: customerID,
		Status:     statuses,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list appointments")
	}
	return appts, nil
}

// SelectQuote accepts the chosen quote, rejects its siblings and confirms the
// appointment as one atomic unit.
func (s *AppointmentService) SelectQuote(ctx context.Context, customerID, appointmentID, quoteID string) error {
	appt, err := s.getAppointment(ctx, appointmentID)
	if err != nil {
		return err
	}
	if appt.CustomerID != customerID {
		return appErrors.ErrForbidden
	}
	if appt.Status != models.AppointmentStatusPending {
		return appErrors.Clone(appErrors.ErrInvalidState, "this quote is no longer available")
	}

	quote, err := s.quotes.GetByID(ctx, quoteID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "quote not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quote")
	}
	if quote.AppointmentID != appointmentID {
		return appErrors.Clone(appErrors.ErrNotFound, "quote not found for this appointment")
	}
	if quote.Status != models.QuoteStatusPending {
		return appErrors.Clone(appErrors.ErrInvalidState, "this quote is no longer available")
	}

	err = s.repo.ConfirmSelection(ctx, repository.ConfirmSelectionParams{
		AppointmentID: appointmentID,
		QuoteID:       quoteID,
		MechanicID:    quote.MechanicID,
		Now:           s.now(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrPreconditionFailed) {
			return s.disambiguateSelectRace(ctx, appointmentID)
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to select quote")
	}

	s.metrics.ObserveTransition(string(models.AppointmentStatusConfirmed))
	s.events.Emit(models.AppointmentEvent{
		AppointmentID: appointmentID,
		Type:          models.NotificationTypeConfirmed,
		Message:       "a quote was selected for this appointment",
		OccurredAt:    s.now(),
	})
	s.feed.InvalidateAll(ctx)
	return nil
}

// disambiguateSelectRace refetches after a failed conditional confirm: if the
// appointment itself is still pending, the quote side of the transaction lost
// a race and a retry may succeed; otherwise the caller's view was stale.
func (s *AppointmentService) disambiguateSelectRace(ctx context.Context, appointmentID string) error {
	appt, err := s.repo.GetByID(ctx, appointmentID)
	if err == nil && appt.Status == models.AppointmentStatusPending {
		return appErrors.ErrConflict
	}
	return appErrors.Clone(appErrors.ErrInvalidState, "this quote is no longer available")
}

// Cancel moves a non-terminal appointment to CANCELLED on behalf of the
// customer, the selected mechanic, or the system reaper.
func (s *AppointmentService) Cancel(ctx context.Context, appointmentID string, actor models.CancelActor, actorID, reason string) error {
	appt, err := s.getAppointment(ctx, appointmentID)
	if err != nil {
		return err
	}
	if appt.Status.Terminal() {
		return appErrors.ErrInvalidState
	}

	var expected []models.AppointmentStatus
	switch actor {
	case models.CancelActorCustomer:
		if appt.CustomerID != actorID {
			return appErrors.ErrForbidden
		}
		expected = []models.AppointmentStatus{
			models.AppointmentStatusPending,
			models.AppointmentStatusConfirmed,
			models.AppointmentStatusInProgress,
		}
	case models.CancelActorMechanic:
		if appt.SelectedMechanicID == nil || *appt.SelectedMechanicID != actorID {
			return appErrors.ErrForbidden
		}
		expected = []models.AppointmentStatus{
			models.AppointmentStatusConfirmed,
			models.AppointmentStatusInProgress,
		}
	case models.CancelActorSystem:
		expected = []models.AppointmentStatus{models.AppointmentStatusPending}
	default:
		return appErrors.ErrForbidden
	}

	result, err := s.repo.Cancel(ctx, repository.CancelParams{
		AppointmentID: appointmentID,
		Expected:      expected,
		Actor:         actor,
		Reason:        reason,
		Now:           s.now(),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		if errors.Is(err, repository.ErrPreconditionFailed) {
			return appErrors.ErrInvalidState
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel appointment")
	}

	s.metrics.ObserveTransition(string(models.AppointmentStatusCancelled))
	eventType := models.NotificationTypeCancelled
	if actor == models.CancelActorSystem {
		eventType = models.NotificationTypeExpired
	}
	s.events.Emit(models.AppointmentEvent{
		AppointmentID: appointmentID,
		Type:          eventType,
		Message:       "this appointment was cancelled",
		OccurredAt:    s.now(),
	})
	s.feed.InvalidateAll(ctx)
	for _, mechanicID := range result.AffectedMechanics {
		s.feed.InvalidateMechanic(ctx, mechanicID)
	}
	return nil
}

// StartWork transitions CONFIRMED → IN_PROGRESS for the selected mechanic.
func (s *AppointmentService) StartWork(ctx context.Context, mechanicID, appointmentID string) error {
	return s.mechanicTransition(ctx, mechanicID, appointmentID,
		models.AppointmentStatusConfirmed, models.AppointmentStatusInProgress)
}

// CompleteWork transitions IN_PROGRESS → COMPLETED for the selected mechanic.
func (s *AppointmentService) CompleteWork(ctx context.Context, mechanicID, appointmentID string) error {
	return s.mechanicTransition(ctx, mechanicID, appointmentID,
		models.AppointmentStatusInProgress, models.AppointmentStatusCompleted)
}

func (s *AppointmentService) mechanicTransition(ctx context.Context, mechanicID, appointmentID string, from, to models.AppointmentStatus) error {
	appt, err := s.getAppointment(ctx, appointmentID)
	if err != nil {
		return err
	}
	if appt.SelectedMechanicID == nil || *appt.SelectedMechanicID != mechanicID {
		return appErrors.ErrForbidden
	}
	if appt.Status != from {
		return appErrors.ErrInvalidState
	}

	err = s.repo.UpdateStatusAsMechanic(ctx, repository.UpdateStatusParams{
		AppointmentID: appointmentID,
		MechanicID:    mechanicID,
		From:          from,
		To:            to,
		Now:           s.now(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrPreconditionFailed) {
			return appErrors.ErrInvalidState
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update appointment status")
	}

	s.metrics.ObserveTransition(string(to))
	return nil
}

// BeginEdit raises the advisory is_being_edited flag. It signals mechanics
// that the appointment is mid-revision; it blocks nothing.
func (s *AppointmentService) BeginEdit(ctx context.Context, customerID, appointmentID string) error {
	return s.setEditLock(ctx, customerID, appointmentID, true)
}

// EndEdit clears the advisory flag.
func (s *AppointmentService) EndEdit(ctx context.Context, customerID, appointmentID string) error {
	return s.setEditLock(ctx, customerID, appointmentID, false)
}

func (s *AppointmentService) setEditLock(ctx context.Context, customerID, appointmentID string, locked bool) error {
	appt, err := s.getAppointment(ctx, appointmentID)
	if err != nil {
		return err
	}
	if appt.CustomerID != customerID {
		return appErrors.ErrForbidden
	}
	if appt.Status.Terminal() {
		return appErrors.ErrInvalidState
	}
	if err := s.repo.SetEditLock(ctx, appointmentID, locked, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle edit lock")
	}
	return nil
}

// ApplyEdit revises an open appointment. A revision of a quoted appointment
// fires the invalidation cascade: a quote is a binding offer against a
// specific scope of work, so once the scope changes every outstanding offer
// is stale and must be re-solicited.
func (s *AppointmentService) ApplyEdit(ctx context.Context, customerID, appointmentID string, req dto.EditAppointmentRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid edit payload")
	}

	appt, err := s.getAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.CustomerID != customerID {
		return nil, appErrors.ErrForbidden
	}
	if appt.Status != models.AppointmentStatusPending && appt.Status != models.AppointmentStatusConfirmed {
		return nil, appErrors.ErrInvalidState
	}

	params := repository.ApplyEditParams{
		AppointmentID:    appointmentID,
		Address:          req.Address,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		IssueDescription: req.IssueDescription,
		Now:              s.now(),
	}
	if req.SelectedServices != nil {
		params.SelectedServices = models.ServiceList(req.SelectedServices)
	}
	if req.CarRuns != nil {
		carRuns := models.CarRuns(*req.CarRuns)
		params.CarRuns = &carRuns
	}
	if req.ASAP != nil || req.ScheduledAt != nil {
		asap := appt.ASAP
		switch {
		case req.ASAP != nil:
			asap = *req.ASAP
		case req.ScheduledAt != nil:
			// A concrete time on an open-ended request converts it to a
			// scheduled one.
			asap = false
		}
		raw := ""
		if req.ScheduledAt != nil {
			raw = *req.ScheduledAt
		}
		scheduledAt, err := s.resolveSchedule(raw, asap)
		if err != nil {
			return nil, err
		}
		params.ScheduledAt = &scheduledAt
		params.ASAP = &asap
	}
	if req.Vehicle != nil {
		params.Vehicle = &repository.VehicleUpdate{
			Year:    req.Vehicle.Year,
			Make:    req.Vehicle.Make,
			Model:   req.Vehicle.Model,
			VIN:     req.Vehicle.VIN,
			Mileage: req.Vehicle.Mileage,
		}
	}

	result, err := s.repo.ApplyEdit(ctx, params)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		if errors.Is(err, repository.ErrPreconditionFailed) {
			return nil, appErrors.ErrInvalidState
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply edit")
	}

	if result.CascadeFired {
		s.metrics.ObserveCascade()
		s.metrics.ObserveTransition(string(models.AppointmentStatusPending))
		s.events.Emit(models.AppointmentEvent{
			AppointmentID: appointmentID,
			Type:          models.NotificationTypeEdited,
			Message:       "this appointment was updated, please re-quote",
			OccurredAt:    s.now(),
		})
		// Skips were cleared too; the edited request re-enters every feed.
		s.feed.InvalidateAll(ctx)
		for _, mechanicID := range result.AffectedMechanics {
			s.feed.InvalidateMechanic(ctx, mechanicID)
		}
	}

	return s.getAppointment(ctx, appointmentID)
}

// ListNotifications returns the appointment's append-only event log.
func (s *AppointmentService) ListNotifications(ctx context.Context, appointmentID string, actor *models.JWTClaims) ([]models.EditNotification, error) {
	appt, err := s.getAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if actor != nil && actor.Role == models.RoleCustomer && appt.CustomerID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	notifications, err := s.notifications.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

func (s *AppointmentService) getAppointment(ctx context.Context, appointmentID string) (*models.Appointment, error) {
	appt, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}
	return appt, nil
}

// resolveSchedule validates the requested time. ASAP bypasses time validation
// and is recorded as scheduled at submission time. Same-day requests must be
// at least the configured buffer ahead of now; future-dated requests are
// exempt from the buffer check. Day boundaries follow the customer's UTC
// offset as carried by the RFC3339 payload.
func (s *AppointmentService) resolveSchedule(raw string, asap bool) (time.Time, error) {
	now := s.now()
	if asap {
		return now, nil
	}
	if raw == "" {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "scheduled_at is required unless asap is set")
	}
	scheduledAt, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "scheduled_at must be RFC3339")
	}

	localNow := now.In(scheduledAt.Location())
	sy, sm, sd := scheduledAt.Date()
	ny, nm, nd := localNow.Date()
	switch {
	case sy < ny || (sy == ny && (sm < nm || (sm == nm && sd < nd))):
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "scheduled time is in the past")
	case sy == ny && sm == nm && sd == nd:
		if scheduledAt.Before(now.Add(s.scheduling.SameDayBuffer)) {
			return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "same-day appointments need more lead time")
		}
	}
	return scheduledAt, nil
}

func canView(appt *models.Appointment, actor *models.JWTClaims) bool {
	if actor == nil {
		return false
	}
	if actor.Role == models.RoleCustomer {
		return appt.CustomerID == actor.UserID
	}
	if appt.SelectedMechanicID != nil && *appt.SelectedMechanicID == actor.UserID {
		return true
	}
	// Any mechanic may inspect a pending request before quoting.
	return appt.Status == models.AppointmentStatusPending
}

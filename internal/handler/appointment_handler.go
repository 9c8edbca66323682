package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mechlink/marketplace-api/internal/dto"
	"github.com/mechlink/marketplace-api/internal/models"
	appErrors "github.com/mechlink/marketplace-api/pkg/errors"
	"github.com/mechlink/marketplace-api/pkg/response"
)

type appointmentService interface {
	Create(ctx context.Context, customerID string, req dto.CreateAppointmentRequest) (*models.Appointment, error)
	Get(ctx context.Context, appointmentID string, actor *models.JWTClaims) (*models.Appointment, error)
	ListForCustomer(ctx context.Context, customerID string, statuses []models.AppointmentStatus, limit, offset int) ([]models.Appointment, error)
	SelectQuote(ctx context.Context, customerID, appointmentID, quoteID string) error
	Cancel(ctx context.Context, appointmentID string, actor models.CancelActor, actorID, reason string) error
	StartWork(ctx context.Context, mechanicID, appointmentID string) error
	CompleteWork(ctx context.Context, mechanicID, appointmentID string) error
	BeginEdit(ctx context.Context, customerID, appointmentID string) error
	EndEdit(ctx context.Context, customerID, appointmentID string) error
	ApplyEdit(ctx context.Context, customerID, appointmentID string, req dto.EditAppointmentRequest) (*models.Appointment, error)
	ListNotifications(ctx context.Context, appointmentID string, actor *models.JWTClaims) ([]models.EditNotification, error)
}

type summaryRenderer interface {
	AppointmentSummary(appt *models.Appointment, accepted *models.MechanicQuote) ([]byte, error)
}

// AppointmentHandler exposes the customer-facing lifecycle endpoints.
type AppointmentHandler struct {
	service appointmentService
	quotes  quoteService
	pdf     summaryRenderer
}

// NewAppointmentHandler constructs the handler.
func NewAppointmentHandler(service appointmentService, quotes quoteService, pdf summaryRenderer) *AppointmentHandler {
	return &AppointmentHandler{service: service, quotes: quotes, pdf: pdf}
}

// Create godoc
// @Summary Create a repair appointment
// @Tags Appointments
// @Accept json
// @Produce json
// @Param payload body dto.CreateAppointmentRequest true "Appointment payload"
// @Success 201 {object} response.Envelope
// @Router /appointments [post]
func (h *AppointmentHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid appointment payload"))
		return
	}
	appt, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, appt)
}

// Get godoc
// @Summary Get appointment detail
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id} [get]
func (h *AppointmentHandler) Get(c *gin.Context) {
	appt, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appt)
}

// List godoc
// @Summary List own appointments
// @Tags Appointments
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Success 200 {object} response.Envelope
// @Router /appointments [get]
func (h *AppointmentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var statuses []models.AppointmentStatus
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			status := models.AppointmentStatus(part)
			if !status.Valid() {
				response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown status "+part))
				return
			}
			statuses = append(statuses, status)
		}
	}
	appts, err := h.service.ListForCustomer(c.Request.Context(), claims.UserID, statuses, 0, 0)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appts)
}

// Edit godoc
// @Summary Apply a material edit
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body dto.EditAppointmentRequest true "Edit payload"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id} [put]
func (h *AppointmentHandler) Edit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.EditAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid edit payload"))
		return
	}
	appt, err := h.service.ApplyEdit(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appt)
}

// BeginEdit godoc
// @Summary Raise the advisory edit flag
// @Tags Appointments
// @Param id path string true "Appointment ID"
// @Success 204
// @Router /appointments/{id}/edit-lock [post]
func (h *AppointmentHandler) BeginEdit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.BeginEdit(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// EndEdit godoc
// @Summary Clear the advisory edit flag
// @Tags Appointments
// @Param id path string true "Appointment ID"
// @Success 204
// @Router /appointments/{id}/edit-lock [delete]
func (h *AppointmentHandler) EndEdit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.EndEdit(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SelectQuote godoc
// @Summary Select the winning quote
// @Tags Appointments
// @Accept json
// @Param id path string true "Appointment ID"
// @Param payload body dto.SelectQuoteRequest true "Selection payload"
// @Success 204
// @Router /appointments/{id}/select [post]
func (h *AppointmentHandler) SelectQuote(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SelectQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.QuoteID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "quote_id is required"))
		return
	}
	if err := h.service.SelectQuote(c.Request.Context(), claims.UserID, c.Param("id"), req.QuoteID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Cancel godoc
// @Summary Cancel an appointment
// @Tags Appointments
// @Accept json
// @Param id path string true "Appointment ID"
// @Param payload body dto.CancelAppointmentRequest false "Cancel payload"
// @Success 204
// @Router /appointments/{id}/cancel [post]
func (h *AppointmentHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CancelAppointmentRequest
	_ = c.ShouldBindJSON(&req)

	actor := models.CancelActorCustomer
	if claims.Role == models.RoleMechanic {
		actor = models.CancelActorMechanic
	}
	if err := h.service.Cancel(c.Request.Context(), c.Param("id"), actor, claims.UserID, req.Reason); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Start godoc
// @Summary Selected mechanic starts work
// @Tags Appointments
// @Param id path string true "Appointment ID"
// @Success 204
// @Router /appointments/{id}/start [post]
func (h *AppointmentHandler) Start(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.StartWork(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Complete godoc
// @Summary Selected mechanic completes work
// @Tags Appointments
// @Param id path string true "Appointment ID"
// @Success 204
// @Router /appointments/{id}/complete [post]
func (h *AppointmentHandler) Complete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.CompleteWork(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Notifications godoc
// @Summary List the appointment event log
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/notifications [get]
func (h *AppointmentHandler) Notifications(c *gin.Context) {
	notifications, err := h.service.ListNotifications(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notifications)
}

// Summary godoc
// @Summary Download the appointment summary PDF
// @Tags Appointments
// @Produce application/pdf
// @Param id path string true "Appointment ID"
// @Success 200
// @Router /appointments/{id}/summary [get]
func (h *AppointmentHandler) Summary(c *gin.Context) {
	claims := claimsFromContext(c)
	appt, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	if appt.Status == models.AppointmentStatusPending || appt.Status == models.AppointmentStatusCancelled {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidState, "summary is available after a quote is selected"))
		return
	}

	var accepted *models.MechanicQuote
	quotes, err := h.quotes.ListForAppointment(c.Request.Context(), appt.ID, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	for i := range quotes {
		if quotes[i].Status == models.QuoteStatusAccepted {
			accepted = &quotes[i]
			break
		}
	}

	payload, err := h.pdf.AppointmentSummary(appt, accepted)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render summary"))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="appointment-summary.pdf"`)
	c.Data(http.StatusOK, "application/pdf", payload)
}

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mechlink/marketplace-api/internal/models"
	appErrors "github.com/mechlink/marketplace-api/pkg/errors"
	"github.com/mechlink/marketplace-api/pkg/response"
)

type availabilityService interface {
	ListForMechanic(ctx context.Context, mechanicID string) ([]models.AppointmentSummary, error)
}

type skipService interface {
	Skip(ctx context.Context, mechanicID, appointmentID string) error
}

// MechanicHandler exposes the mechanic-facing feed endpoints.
type MechanicHandler struct {
	availability availabilityService
	skips        skipService
}

// NewMechanicHandler constructs the handler.
func NewMechanicHandler(availability availabilityService, skips skipService) *MechanicHandler {
	return &MechanicHandler{availability: availability, skips: skips}
}

// Feed godoc
// @Summary List appointments available to quote
// @Tags Mechanics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /mechanics/feed [get]
func (h *MechanicHandler) Feed(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	feed, err := h.availability.ListForMechanic(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, feed)
}

// Skip godoc
// @Summary Skip an appointment
// @Tags Mechanics
// @Param id path string true "Appointment ID"
// @Success 204
// @Router /appointments/{id}/skip [post]
func (h *MechanicHandler) Skip(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.skips.Skip(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mechlink/marketplace-api/internal/dto"
	"github.com/mechlink/marketplace-api/internal/models"
	appErrors "github.com/mechlink/marketplace-api/pkg/errors"
	"github.com/mechlink/marketplace-api/pkg/response"
)

type quoteService interface {
	Submit(ctx context.Context, mechanicID, appointmentID string, req dto.SubmitQuoteRequest) (*models.MechanicQuote, error)
	Withdraw(ctx context.Context, mechanicID, appointmentID string) error
	ListForAppointment(ctx context.Context, appointmentID string, actor *models.JWTClaims) ([]models.MechanicQuote, error)
}

// QuoteHandler exposes the quoting endpoints.
type QuoteHandler struct {
	service quoteService
}

// NewQuoteHandler constructs the handler.
func NewQuoteHandler(service quoteService) *QuoteHandler {
	return &QuoteHandler{service: service}
}

// Submit godoc
// @Summary Submit or revise a quote
// @Tags Quotes
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body dto.SubmitQuoteRequest true "Quote payload"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/quotes [post]
func (h *QuoteHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SubmitQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid quote payload"))
		return
	}
	quote, err := h.service.Submit(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quote)
}

// Withdraw godoc
// @Summary Withdraw an unaccepted quote
// @Tags Quotes
// @Param id path string true "Appointment ID"
// @Success 204
// @Router /appointments/{id}/quotes [delete]
func (h *QuoteHandler) Withdraw(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Withdraw(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// List godoc
// @Summary List quotes for an appointment
// @Tags Quotes
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/quotes [get]
func (h *QuoteHandler) List(c *gin.Context) {
	quotes, err := h.service.ListForAppointment(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quotes)
}

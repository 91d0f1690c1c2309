package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/shulepay-api/internal/models"
	"github.com/noah-isme/shulepay-api/internal/service"
	appErrors "github.com/noah-isme/shulepay-api/pkg/errors"
	"github.com/noah-isme/shulepay-api/pkg/response"
)

// ReminderHandler exposes balance reminder sweeps and history.
type ReminderHandler struct {
	service *service.ReminderService
}

// NewReminderHandler creates a new handler.
func NewReminderHandler(svc *service.ReminderService) *ReminderHandler {
	return &ReminderHandler{service: svc}
}

// Sweep godoc
// @Summary Queue balance reminders for students over the threshold
// @Tags Reminders
// @Accept json
// @Produce json
// @Param payload body models.SendRemindersRequest true "Sweep payload"
// @Success 202 {object} response.Envelope
// @Router /reminders/sweep [post]
func (h *ReminderHandler) Sweep(c *gin.Context) {
	var req models.SendRemindersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid sweep payload"))
		return
	}

	queued, err := h.service.Sweep(c.Request.Context(), currentSchool(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"queued": queued}, nil)
}

// History godoc
// @Summary List sent and pending reminders
// @Tags Reminders
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reminders [get]
func (h *ReminderHandler) History(c *gin.Context) {
	reminders, err := h.service.History(c.Request.Context(), currentSchool(c),
		queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reminders, nil)
}

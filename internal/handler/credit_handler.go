package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/shulepay-api/internal/models"
	"github.com/noah-isme/shulepay-api/internal/service"
	appErrors "github.com/noah-isme/shulepay-api/pkg/errors"
	"github.com/noah-isme/shulepay-api/pkg/response"
)

// CreditHandler exposes overpayment credit operations.
type CreditHandler struct {
	service *service.CreditService
}

// NewCreditHandler creates a new handler.
func NewCreditHandler(svc *service.CreditService) *CreditHandler {
	return &CreditHandler{service: svc}
}

// Apply godoc
// @Summary Apply a student's credit against their balance
// @Tags Credit
// @Accept json
// @Produce json
// @Param payload body models.CreditActionRequest true "Credit payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /credit/apply [post]
func (h *CreditHandler) Apply(c *gin.Context) {
	var req models.CreditActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid credit payload"))
		return
	}

	outcome, err := h.service.Apply(c.Request.Context(), currentSchool(c), currentUserID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcome, nil)
}

// Refund godoc
// @Summary Refund part of a student's credit
// @Tags Credit
// @Accept json
// @Produce json
// @Param payload body models.CreditActionRequest true "Credit payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /credit/refund [post]
func (h *CreditHandler) Refund(c *gin.Context) {
	var req models.CreditActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid credit payload"))
		return
	}

	outcome, err := h.service.Refund(c.Request.Context(), currentSchool(c), currentUserID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcome, nil)
}

// Transfer godoc
// @Summary Move credit between two students
// @Tags Credit
// @Accept json
// @Produce json
// @Param payload body models.CreditTransferRequest true "Transfer payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /credit/transfer [post]
func (h *CreditHandler) Transfer(c *gin.Context) {
	var req models.CreditTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid transfer payload"))
		return
	}

	transfer, err := h.service.Transfer(c.Request.Context(), currentSchool(c), currentUserID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transfer, nil)
}

// History godoc
// @Summary List a student's credit operations
// @Tags Credit
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/credit [get]
func (h *CreditHandler) History(c *gin.Context) {
	ops, err := h.service.History(c.Request.Context(), currentSchool(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ops, nil)
}

// CarryForwards godoc
// @Summary List a student's carry forwards
// @Tags Credit
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/carry-forwards [get]
func (h *CreditHandler) CarryForwards(c *gin.Context) {
	rows, err := h.service.CarryForwards(c.Request.Context(), currentSchool(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

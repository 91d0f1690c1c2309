package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/shulepay-api/internal/models"
	"github.com/noah-isme/shulepay-api/internal/service"
	appErrors "github.com/noah-isme/shulepay-api/pkg/errors"
	"github.com/noah-isme/shulepay-api/pkg/response"
)

// FeeHandler exposes fee components, per-class and per-student amounts,
// and invoice generation.
type FeeHandler struct {
	service *service.FeeService
}

// NewFeeHandler creates a new handler.
func NewFeeHandler(svc *service.FeeService) *FeeHandler {
	return &FeeHandler{service: svc}
}

// ListComponents godoc
// @Summary List fee components
// @Tags Fees
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /fees/components [get]
func (h *FeeHandler) ListComponents(c *gin.Context) {
	components, err := h.service.ListComponents(c.Request.Context(), currentSchool(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, components, nil)
}

// CreateComponent godoc
// @Summary Create a fee component
// @Tags Fees
// @Accept json
// @Produce json
// @Param payload body models.CreateFeeComponentRequest true "Component payload"
// @Success 201 {object} response.Envelope
// @Router /fees/components [post]
func (h *FeeHandler) CreateComponent(c *gin.Context) {
	var req models.CreateFeeComponentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid component payload"))
		return
	}

	component, err := h.service.CreateComponent(c.Request.Context(), currentSchool(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, component)
}

// UpdateComponent godoc
// @Summary Edit a fee component
// @Tags Fees
// @Accept json
// @Produce json
// @Param id path string true "Component ID"
// @Param payload body models.CreateFeeComponentRequest true "Component payload"
// @Success 200 {object} response.Envelope
// @Router /fees/components/{id} [put]
func (h *FeeHandler) UpdateComponent(c *gin.Context) {
	var req models.CreateFeeComponentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid component payload"))
		return
	}

	component, err := h.service.UpdateComponent(c.Request.Context(), currentSchool(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, component, nil)
}

// DeleteComponent godoc
// @Summary Delete a fee component
// @Tags Fees
// @Produce json
// @Param id path string true "Component ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /fees/components/{id} [delete]
func (h *FeeHandler) DeleteComponent(c *gin.Context) {
	if err := h.service.DeleteComponent(c.Request.Context(), currentSchool(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListClassDefaults godoc
// @Summary List class-level amounts for a term
// @Tags Fees
// @Produce json
// @Param termId path string true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /terms/{termId}/class-fees [get]
func (h *FeeHandler) ListClassDefaults(c *gin.Context) {
	defaults, err := h.service.ListClassDefaults(c.Request.Context(), currentSchool(c), c.Param("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, defaults, nil)
}

// SetClassDefault godoc
// @Summary Set the amount one class pays for a component
// @Tags Fees
// @Accept json
// @Produce json
// @Param termId path string true "Term ID"
// @Param className path string true "Class name"
// @Param payload body models.SetFeeAmountRequest true "Amount payload"
// @Success 204 {object} response.Envelope
// @Router /terms/{termId}/class-fees/{className} [put]
func (h *FeeHandler) SetClassDefault(c *gin.Context) {
	var req models.SetFeeAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid amount payload"))
		return
	}

	if err := h.service.SetClassDefault(c.Request.Context(), currentSchool(c), c.Param("termId"), c.Param("className"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DeleteClassDefault godoc
// @Summary Remove a class-level amount
// @Tags Fees
// @Produce json
// @Success 204 {object} response.Envelope
// @Router /terms/{termId}/class-fees/{className}/{componentId} [delete]
func (h *FeeHandler) DeleteClassDefault(c *gin.Context) {
	err := h.service.DeleteClassDefault(c.Request.Context(), currentSchool(c),
		c.Param("termId"), c.Param("className"), c.Param("componentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListStudentOverrides godoc
// @Summary List a student's per-component amounts for a term
// @Tags Fees
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /terms/{termId}/students/{studentId}/fees [get]
func (h *FeeHandler) ListStudentOverrides(c *gin.Context) {
	overrides, err := h.service.ListStudentOverrides(c.Request.Context(), currentSchool(c),
		c.Param("termId"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overrides, nil)
}

// SetStudentOverride godoc
// @Summary Set the amount one student pays for a component
// @Tags Fees
// @Accept json
// @Produce json
// @Param payload body models.SetFeeAmountRequest true "Amount payload"
// @Success 204 {object} response.Envelope
// @Router /terms/{termId}/students/{studentId}/fees [put]
func (h *FeeHandler) SetStudentOverride(c *gin.Context) {
	var req models.SetFeeAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid amount payload"))
		return
	}

	if err := h.service.SetStudentOverride(c.Request.Context(), currentSchool(c), c.Param("termId"), c.Param("studentId"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DeleteStudentOverride godoc
// @Summary Remove a per-student amount
// @Tags Fees
// @Produce json
// @Success 204 {object} response.Envelope
// @Router /terms/{termId}/students/{studentId}/fees/{componentId} [delete]
func (h *FeeHandler) DeleteStudentOverride(c *gin.Context) {
	err := h.service.DeleteStudentOverride(c.Request.Context(), currentSchool(c),
		c.Param("termId"), c.Param("studentId"), c.Param("componentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SetDiscount godoc
// @Summary Set the invoice-level discount for a student in a term
// @Description The discount survives invoice regeneration; zero clears it.
// @Tags Invoices
// @Accept json
// @Produce json
// @Param termId path string true "Term ID"
// @Param studentId path string true "Student ID"
// @Param payload body models.SetDiscountRequest true "Discount payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /terms/{termId}/students/{studentId}/discount [put]
func (h *FeeHandler) SetDiscount(c *gin.Context) {
	var req models.SetDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid discount payload"))
		return
	}

	invoice, err := h.service.SetDiscount(c.Request.Context(), currentSchool(c),
		c.Param("termId"), c.Param("studentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invoice, nil)
}

// GetInvoice godoc
// @Summary Get a student's invoice for a term
// @Tags Invoices
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /terms/{termId}/students/{studentId}/invoice [get]
func (h *FeeHandler) GetInvoice(c *gin.Context) {
	invoice, err := h.service.GetInvoice(c.Request.Context(), currentSchool(c),
		c.Param("studentId"), c.Param("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invoice, nil)
}

// GenerateInvoices godoc
// @Summary Rebuild invoices for every active student in a term
// @Description Only the difference against the previous total is charged, so reruns are safe.
// @Tags Invoices
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /terms/{termId}/invoices/generate [post]
func (h *FeeHandler) GenerateInvoices(c *gin.Context) {
	count, err := h.service.GenerateInvoices(c.Request.Context(), currentSchool(c), c.Param("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"generated": count}, nil)
}

// RegenerateInvoice godoc
// @Summary Rebuild one student's invoice after a fee change
// @Tags Invoices
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /terms/{termId}/students/{studentId}/invoice/regenerate [post]
func (h *FeeHandler) RegenerateInvoice(c *gin.Context) {
	invoice, err := h.service.RegenerateInvoice(c.Request.Context(), currentSchool(c),
		c.Param("termId"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invoice, nil)
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/shulepay-api/internal/service"
	appErrors "github.com/noah-isme/shulepay-api/pkg/errors"
	"github.com/noah-isme/shulepay-api/pkg/response"
)

// ExportHandler exposes receipt, statement and report exports plus the
// signed download route.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler creates a new handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Receipt godoc
// @Summary Render a payment receipt PDF
// @Tags Exports
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Router /payments/{id}/receipt [post]
func (h *ExportHandler) Receipt(c *gin.Context) {
	file, err := h.service.Receipt(c.Request.Context(), currentSchool(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, file, nil)
}

// Statement godoc
// @Summary Render a student fee statement PDF
// @Tags Exports
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/statement [post]
func (h *ExportHandler) Statement(c *gin.Context) {
	file, err := h.service.Statement(c.Request.Context(), currentSchool(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, file, nil)
}

// Defaulters godoc
// @Summary Export the defaulter list
// @Tags Exports
// @Produce json
// @Param format query string false "csv or pdf, default csv"
// @Success 200 {object} response.Envelope
// @Router /exports/defaulters [post]
func (h *ExportHandler) Defaulters(c *gin.Context) {
	file, err := h.service.Defaulters(c.Request.Context(), currentSchool(c),
		queryFloat(c, "min_balance", 0), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, file, nil)
}

// Collections godoc
// @Summary Export a term's payment list
// @Tags Exports
// @Produce json
// @Param termId path string true "Term ID"
// @Param format query string false "csv or pdf, default csv"
// @Success 200 {object} response.Envelope
// @Router /exports/terms/{termId}/collections [post]
func (h *ExportHandler) Collections(c *gin.Context) {
	file, err := h.service.Collections(c.Request.Context(), currentSchool(c),
		c.Param("termId"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, file, nil)
}

// Download godoc
// @Summary Download a generated export by signed token
// @Tags Exports
// @Produce application/octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "download token is required"))
		return
	}

	file, name, err := h.service.Open(c.Request.Context(), currentSchool(c), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	c.FileAttachment(file.Name(), name)
}

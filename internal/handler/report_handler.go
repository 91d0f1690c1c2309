package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/shulepay-api/internal/service"
	"github.com/noah-isme/shulepay-api/pkg/response"
)

// ReportHandler exposes the dashboard and collection reports.
type ReportHandler struct {
	service *service.ReportService
}

// NewReportHandler creates a new handler.
func NewReportHandler(svc *service.ReportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// Dashboard godoc
// @Summary School dashboard summary
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reports/dashboard [get]
func (h *ReportHandler) Dashboard(c *gin.Context) {
	summary, err := h.service.Dashboard(c.Request.Context(), currentSchool(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// CollectionsByMethod godoc
// @Summary Collections per payment method for a term
// @Tags Reports
// @Produce json
// @Param termId path string true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /reports/terms/{termId}/collections-by-method [get]
func (h *ReportHandler) CollectionsByMethod(c *gin.Context) {
	totals, err := h.service.CollectionsByMethod(c.Request.Context(), currentSchool(c), c.Param("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, totals, nil)
}

// DailyCollections godoc
// @Summary Per-day collection totals
// @Tags Reports
// @Produce json
// @Param days query int false "Trailing window in days, default 30"
// @Success 200 {object} response.Envelope
// @Router /reports/daily-collections [get]
func (h *ReportHandler) DailyCollections(c *gin.Context) {
	totals, err := h.service.DailyCollections(c.Request.Context(), currentSchool(c), queryInt(c, "days", 30))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, totals, nil)
}

// OutstandingByClass godoc
// @Summary Outstanding balance grouped by class
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reports/outstanding-by-class [get]
func (h *ReportHandler) OutstandingByClass(c *gin.Context) {
	rows, err := h.service.OutstandingByClass(c.Request.Context(), currentSchool(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Defaulters godoc
// @Summary Students over the outstanding-balance threshold
// @Tags Reports
// @Produce json
// @Param min_balance query number false "Threshold, default 0"
// @Success 200 {object} response.Envelope
// @Router /reports/defaulters [get]
func (h *ReportHandler) Defaulters(c *gin.Context) {
	rows, err := h.service.Defaulters(c.Request.Context(), currentSchool(c),
		queryFloat(c, "min_balance", 0), queryInt(c, "limit", 200))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// LedgerDrift godoc
// @Summary Students whose stored balances disagree with the ledger
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reports/ledger-drift [get]
func (h *ReportHandler) LedgerDrift(c *gin.Context) {
	students, err := h.service.LedgerDrift(c.Request.Context(), currentSchool(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}

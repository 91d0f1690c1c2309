package handler

import (
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/shulepay-api/internal/models"
	"github.com/noah-isme/shulepay-api/internal/service"
	appErrors "github.com/noah-isme/shulepay-api/pkg/errors"
	"github.com/noah-isme/shulepay-api/pkg/response"
)

const maxCallbackBytes = 64 << 10

// MpesaHandler exposes STK push initiation and the Daraja callback.
type MpesaHandler struct {
	service       *service.MpesaService
	callbackToken string
}

// NewMpesaHandler creates a new handler. The callback token guards the
// public callback route; Daraja is given a URL embedding it.
func NewMpesaHandler(svc *service.MpesaService, callbackToken string) *MpesaHandler {
	return &MpesaHandler{service: svc, callbackToken: callbackToken}
}

// Initiate godoc
// @Summary Send an STK push prompt to the payer's handset
// @Tags M-Pesa
// @Accept json
// @Produce json
// @Param payload body models.STKPushRequest true "STK push payload"
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /mpesa/stk-push [post]
func (h *MpesaHandler) Initiate(c *gin.Context) {
	var req models.STKPushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid stk push payload"))
		return
	}

	txn, err := h.service.Initiate(c.Request.Context(), currentSchool(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, txn, nil)
}

// Callback godoc
// @Summary Daraja result callback
// @Description Public endpoint guarded by the path token. Duplicate deliveries are idempotent.
// @Tags M-Pesa
// @Accept json
// @Produce json
// @Param token path string true "Callback token"
// @Success 200 {object} response.Envelope
// @Router /mpesa/callback/{token} [post]
func (h *MpesaHandler) Callback(c *gin.Context) {
	if h.callbackToken == "" ||
		subtle.ConstantTimeCompare([]byte(c.Param("token")), []byte(h.callbackToken)) != 1 {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBytes))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "could not read callback body"))
		return
	}

	if err := h.service.HandleCallback(c.Request.Context(), raw); err != nil {
		response.Error(c, err)
		return
	}

	// Daraja expects this acknowledgement shape.
	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}

// Status godoc
// @Summary Get one STK push tracking row
// @Tags M-Pesa
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} response.Envelope
// @Router /mpesa/transactions/{id} [get]
func (h *MpesaHandler) Status(c *gin.Context) {
	txn, err := h.service.Status(c.Request.Context(), currentSchool(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, txn, nil)
}

// History godoc
// @Summary List a student's STK push attempts
// @Tags M-Pesa
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/mpesa [get]
func (h *MpesaHandler) History(c *gin.Context) {
	txns, err := h.service.History(c.Request.Context(), currentSchool(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, txns, nil)
}

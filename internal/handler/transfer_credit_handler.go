package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campusops/registrar-api/internal/service"
	appErrors "github.com/campusops/registrar-api/pkg/errors"
	"github.com/campusops/registrar-api/pkg/response"
)

// TransferCreditHandler exposes transfer credit review endpoints.
type TransferCreditHandler struct {
	transfers *service.TransferCreditService
}

// NewTransferCreditHandler constructs TransferCreditHandler.
func NewTransferCreditHandler(transfers *service.TransferCreditService) *TransferCreditHandler {
	return &TransferCreditHandler{transfers: transfers}
}

// List godoc
// @Summary List a student's transfer credits
// @Tags Transfers
// @Produce json
// @Param id path string true "Student ID"
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/transfer-credits [get]
func (h *TransferCreditHandler) List(c *gin.Context) {
	status := strings.ToUpper(c.Query("status"))
	transfers, err := h.transfers.List(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transfers, nil)
}

// Submit godoc
// @Summary Submit external coursework for review
// @Tags Transfers
// @Accept json
// @Produce json
// @Param payload body service.SubmitTransferRequest true "Transfer payload"
// @Success 201 {object} response.Envelope
// @Router /transfer-credits [post]
func (h *TransferCreditHandler) Submit(c *gin.Context) {
	var req service.SubmitTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	transfer, err := h.transfers.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, transfer)
}

// Decide godoc
// @Summary Approve or reject a transfer credit
// @Description Approval requires an equivalent catalog course. Approved
// credits count toward degree requirements but never toward GPA.
// @Tags Transfers
// @Accept json
// @Produce json
// @Param id path string true "Transfer ID"
// @Param payload body service.DecideTransferRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /transfer-credits/{id}/decision [post]
func (h *TransferCreditHandler) Decide(c *gin.Context) {
	var req service.DecideTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.TransferID = c.Param("id")
	if actor := actorID(c); actor != "" {
		req.DecidedBy = actor
	}
	transfer, err := h.transfers.Decide(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transfer, nil)
}

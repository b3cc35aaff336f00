// internal/handlers/billing/usage_handler.go
package billing

import (
	"net/http"

	"opsdesk-service/internal/domain/billing"
	"opsdesk-service/internal/pkg/response"
	"opsdesk-service/internal/service/usage"

	"github.com/gin-gonic/gin"
)

type UsageHandler struct {
	usageService *usage.Service
}

func NewUsageHandler(usageService *usage.Service) *UsageHandler {
	return &UsageHandler{usageService: usageService}
}

// GetUsage returns the current month's metered usage counters. Works even
// when no payment provider is configured.
func (h *UsageHandler) GetUsage(c *gin.Context) {
	businessID, err := parseBusinessID(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid business ID", err)
		return
	}

	summary, err := h.usageService.GetUsage(c.Request.Context(), businessID)
	if err != nil {
		response.FromError(c, "failed to get usage", err)
		return
	}

	response.Success(c, http.StatusOK, "usage retrieved", summary)
}

// RecordUsage increments one usage counter for the business. Called by the
// metering collaborators (receptionist, booking engine).
func (h *UsageHandler) RecordUsage(c *gin.Context) {
	businessID, err := parseBusinessID(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid business ID", err)
		return
	}

	var req billing.RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	if err := h.usageService.RecordCall(c.Request.Context(), businessID, req.Kind); err != nil {
		response.FromError(c, "failed to record usage", err)
		return
	}

	response.Success(c, http.StatusOK, "usage recorded", nil)
}

// RecordOverage registers a pending overage charge (admin / billing job).
func (h *UsageHandler) RecordOverage(c *gin.Context) {
	var req billing.RecordOverageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	charge, err := h.usageService.RecordOverageCharge(c.Request.Context(), req.BusinessID, req.ProviderInvoiceID, req.Amount)
	if err != nil {
		response.FromError(c, "failed to record overage charge", err)
		return
	}

	response.Success(c, http.StatusCreated, "overage charge recorded", charge)
}

// GetOverageHistory lists overage charges for a business, newest first.
func (h *UsageHandler) GetOverageHistory(c *gin.Context) {
	businessID, err := parseBusinessID(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid business ID", err)
		return
	}

	charges, err := h.usageService.GetOverageHistory(c.Request.Context(), businessID)
	if err != nil {
		response.FromError(c, "failed to get overage history", err)
		return
	}

	response.Success(c, http.StatusOK, "overage history retrieved", charges)
}

// internal/handlers/billing/billing_handler.go
package billing

import (
	"net/http"
	"strconv"

	"opsdesk-service/internal/domain/billing"
	"opsdesk-service/internal/middleware"
	"opsdesk-service/internal/pkg/response"
	service "opsdesk-service/internal/service/billing"

	"github.com/gin-gonic/gin"
)

type BillingHandler struct {
	lifecycleService *service.LifecycleService
}

func NewBillingHandler(lifecycleService *service.LifecycleService) *BillingHandler {
	return &BillingHandler{lifecycleService: lifecycleService}
}

// GetStatus returns the cached billing state for a business.
func (h *BillingHandler) GetStatus(c *gin.Context) {
	businessID, err := parseBusinessID(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid business ID", err)
		return
	}

	state, err := h.lifecycleService.GetStatus(c.Request.Context(), businessID)
	if err != nil {
		response.FromError(c, "failed to get billing status", err)
		return
	}

	response.Success(c, http.StatusOK, "billing status retrieved", state)
}

// CreateSubscription starts a checkout for the selected plan.
func (h *BillingHandler) CreateSubscription(c *gin.Context) {
	var req billing.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	if caller, ok := middleware.GetBusinessID(c); !middleware.IsAdmin(c) && (!ok || caller != req.BusinessID) {
		response.Forbidden(c, "business does not belong to caller")
		return
	}

	result, err := h.lifecycleService.CreateSubscription(c.Request.Context(), req.BusinessID, req.PlanID)
	if err != nil {
		response.FromError(c, "failed to create subscription", err)
		return
	}

	response.Success(c, http.StatusCreated, "subscription created", result)
}

// CancelSubscription schedules cancellation at the end of the paid period.
func (h *BillingHandler) CancelSubscription(c *gin.Context) {
	businessID, err := parseBusinessID(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid business ID", err)
		return
	}

	if err := h.lifecycleService.CancelSubscription(c.Request.Context(), businessID); err != nil {
		response.FromError(c, "failed to cancel subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription will cancel at period end", nil)
}

// ResumeSubscription reverts a pending cancellation.
func (h *BillingHandler) ResumeSubscription(c *gin.Context) {
	businessID, err := parseBusinessID(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid business ID", err)
		return
	}

	if err := h.lifecycleService.ResumeSubscription(c.Request.Context(), businessID); err != nil {
		response.FromError(c, "failed to resume subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription resumed", nil)
}

func parseBusinessID(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("businessId"), 10, 64)
}

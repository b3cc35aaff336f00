// internal/handlers/billing/plan_handler.go
package billing

import (
	"net/http"
	"strconv"

	"opsdesk-service/internal/domain/billing"
	"opsdesk-service/internal/pkg/response"
	service "opsdesk-service/internal/service/billing"

	"github.com/gin-gonic/gin"
)

type PlanHandler struct {
	planService *service.PlanService
}

func NewPlanHandler(planService *service.PlanService) *PlanHandler {
	return &PlanHandler{planService: planService}
}

// ListPlans returns the active plan catalog for signup and upgrade pages.
func (h *PlanHandler) ListPlans(c *gin.Context) {
	plans, err := h.planService.ListActivePlans(c.Request.Context())
	if err != nil {
		response.FromError(c, "failed to list plans", err)
		return
	}

	response.Success(c, http.StatusOK, "plans retrieved", plans)
}

// ========== Admin Endpoints ==========

// CreatePlan creates a plan and provisions it with the payment provider.
func (h *PlanHandler) CreatePlan(c *gin.Context) {
	var req billing.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	plan, err := h.planService.CreatePlan(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, "failed to create plan", err)
		return
	}

	response.Success(c, http.StatusCreated, "plan created successfully", plan)
}

// UpdatePlan patches a plan's mutable fields.
func (h *PlanHandler) UpdatePlan(c *gin.Context) {
	planID, err := parseID(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid plan ID", err)
		return
	}

	var req billing.UpdatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	plan, err := h.planService.UpdatePlan(c.Request.Context(), planID, &req)
	if err != nil {
		response.FromError(c, "failed to update plan", err)
		return
	}

	response.Success(c, http.StatusOK, "plan updated successfully", plan)
}

// DeactivatePlan hides a plan from the catalog. Existing subscriptions
// keep running on it.
func (h *PlanHandler) DeactivatePlan(c *gin.Context) {
	planID, err := parseID(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid plan ID", err)
		return
	}

	if err := h.planService.DeactivatePlan(c.Request.Context(), planID); err != nil {
		response.FromError(c, "failed to deactivate plan", err)
		return
	}

	response.Success(c, http.StatusOK, "plan deactivated", nil)
}

func parseID(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

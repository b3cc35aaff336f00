// internal/service/billing/plan_service.go
package billing

import (
	"context"
	"database/sql"
	"fmt"

	"opsdesk-service/internal/domain/billing"
	xerrors "opsdesk-service/internal/pkg/errors"
	"opsdesk-service/internal/provider"

	"go.uber.org/zap"
)

// PlanService is the plan catalog: the administrable list of subscription
// plans and their mapping onto provider product/price objects.
type PlanService struct {
	plans    PlanRepo
	provider provider.Client
	logger   *zap.Logger
}

func NewPlanService(plans PlanRepo, providerClient provider.Client, logger *zap.Logger) *PlanService {
	return &PlanService{
		plans:    plans,
		provider: providerClient,
		logger:   logger,
	}
}

// ListActivePlans returns subscribable plans ordered by sort order.
// Reports ErrNotConfigured in billing-disabled mode so the endpoint
// degrades to 503.
func (s *PlanService) ListActivePlans(ctx context.Context) ([]billing.SubscriptionPlan, error) {
	if !s.provider.Enabled() {
		return nil, xerrors.ErrNotConfigured
	}
	return s.plans.ListActive(ctx)
}

// GetPlan retrieves a single plan by id.
func (s *PlanService) GetPlan(ctx context.Context, id int64) (*billing.SubscriptionPlan, error) {
	return s.plans.FindByID(ctx, id)
}

// CreatePlan provisions the provider product and price first and persists
// the plan row only when both exist. A provider failure leaves no local
// record behind (all-or-nothing).
func (s *PlanService) CreatePlan(ctx context.Context, req *billing.CreatePlanRequest) (*billing.SubscriptionPlan, error) {
	productID, err := s.provider.EnsureProduct(ctx, "", req.Name, req.Description)
	if err != nil {
		return nil, fmt.Errorf("failed to provision provider product: %w", err)
	}

	priceID, err := s.provider.EnsurePrice(ctx, "", productID, req.Price, req.Interval)
	if err != nil {
		return nil, fmt.Errorf("failed to provision provider price: %w", err)
	}

	plan := &billing.SubscriptionPlan{
		Name:              req.Name,
		Price:             req.Price,
		Interval:          req.Interval,
		Features:          req.Features,
		ProviderProductID: productID,
		ProviderPriceID:   priceID,
		Active:            true,
		SortOrder:         req.SortOrder,
	}
	if req.Description != "" {
		plan.Description = sql.NullString{String: req.Description, Valid: true}
	}

	if err := s.plans.Create(ctx, plan); err != nil {
		return nil, err
	}

	s.logger.Info("subscription plan created",
		zap.Int64("plan_id", plan.ID),
		zap.String("name", plan.Name),
		zap.String("provider_product_id", productID),
		zap.String("provider_price_id", priceID),
	)
	return plan, nil
}

// UpdatePlan patches the mutable plan fields and re-ensures the provider
// objects exist, backfilling ids that were provisioned out-of-band.
func (s *PlanService) UpdatePlan(ctx context.Context, id int64, req *billing.UpdatePlanRequest) (*billing.SubscriptionPlan, error) {
	plan, err := s.plans.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.EnsurePlanProvisioned(ctx, plan); err != nil {
		return nil, err
	}

	if req.Name != nil {
		plan.Name = *req.Name
	}
	if req.Description != nil {
		plan.Description = sql.NullString{String: *req.Description, Valid: *req.Description != ""}
	}
	if req.Features != nil {
		plan.Features = req.Features
	}
	if req.Active != nil {
		plan.Active = *req.Active
	}
	if req.SortOrder != nil {
		plan.SortOrder = *req.SortOrder
	}

	if err := s.plans.Update(ctx, id, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// DeactivatePlan hides a plan from the catalog without touching live
// subscriptions referencing it.
func (s *PlanService) DeactivatePlan(ctx context.Context, id int64) error {
	return s.plans.SetActive(ctx, id, false)
}

// EnsurePlanProvisioned guarantees the plan has provider product and price
// ids, creating the provider objects only when missing and persisting any
// backfilled ids before returning.
func (s *PlanService) EnsurePlanProvisioned(ctx context.Context, plan *billing.SubscriptionPlan) error {
	productID, err := s.provider.EnsureProduct(ctx, plan.ProviderProductID, plan.Name, plan.Description.String)
	if err != nil {
		return fmt.Errorf("failed to ensure provider product: %w", err)
	}

	priceID, err := s.provider.EnsurePrice(ctx, plan.ProviderPriceID, productID, plan.Price, plan.Interval)
	if err != nil {
		return fmt.Errorf("failed to ensure provider price: %w", err)
	}

	if productID != plan.ProviderProductID || priceID != plan.ProviderPriceID {
		if err := s.plans.UpdateProviderIDs(ctx, plan.ID, productID, priceID); err != nil {
			return err
		}
		plan.ProviderProductID = productID
		plan.ProviderPriceID = priceID
	}
	return nil
}

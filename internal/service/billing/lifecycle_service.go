// internal/service/billing/lifecycle_service.go
package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"opsdesk-service/internal/domain/billing"
	xerrors "opsdesk-service/internal/pkg/errors"
	"opsdesk-service/internal/provider"

	"go.uber.org/zap"
)

// LifecycleService owns the explicit subscription actions: create, cancel,
// resume. It orchestrates provider calls and local writes; the webhook
// reconciliation engine remains the final authority over cached state.
type LifecycleService struct {
	businesses BusinessRepo
	plans      PlanRepo
	catalog    *PlanService
	provider   provider.Client
	notifier   Notifier
	logger     *zap.Logger
}

func NewLifecycleService(
	businesses BusinessRepo,
	plans PlanRepo,
	catalog *PlanService,
	providerClient provider.Client,
	notifier Notifier,
	logger *zap.Logger,
) *LifecycleService {
	return &LifecycleService{
		businesses: businesses,
		plans:      plans,
		catalog:    catalog,
		provider:   providerClient,
		notifier:   notifier,
		logger:     logger,
	}
}

// CreateSubscription starts a subscription for a business on the given
// plan and returns the payment confirmation handle the frontend completes
// out-of-band.
//
// The provider customer id is persisted immediately after creation, before
// any later step can fail, so a retried checkout reuses the customer
// instead of minting a duplicate. If the local write after a successful
// provider subscription create fails, local state stays behind until the
// next webhook re-syncs it; that gap is logged, not hidden.
func (s *LifecycleService) CreateSubscription(ctx context.Context, businessID, planID int64) (*billing.CheckoutResult, error) {
	biz, err := s.businesses.FindByID(ctx, businessID)
	if err != nil {
		return nil, wrapLookup(err, "business")
	}

	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		return nil, wrapLookup(err, "subscription plan")
	}
	if !plan.Active {
		return nil, fmt.Errorf("%w: plan is not active", xerrors.ErrInvalidInput)
	}

	if biz.ProviderSubscriptionID.Valid &&
		biz.BillingStatus != billing.StatusCanceled && biz.BillingStatus != billing.StatusNone {
		return nil, fmt.Errorf("%w: business already has a subscription", xerrors.ErrConflict)
	}

	cust, err := s.provider.EnsureCustomer(ctx, biz.ProviderCustomerID.String, biz.OwnerEmail, biz.Name, biz.ID)
	if err != nil {
		return nil, err
	}
	if !biz.ProviderCustomerID.Valid || biz.ProviderCustomerID.String != cust.ID {
		if err := s.businesses.SetProviderCustomerID(ctx, biz.ID, cust.ID); err != nil {
			return nil, err
		}
	}

	if err := s.catalog.EnsurePlanProvisioned(ctx, plan); err != nil {
		return nil, err
	}

	sub, err := s.provider.CreateSubscription(ctx, cust.ID, plan.ProviderPriceID, biz.ID)
	if err != nil {
		return nil, err
	}

	status := billing.StatusFromProvider(sub.Status, sub.CancelAtPeriodEnd)
	periodEnd := nullTime(sub.CurrentPeriodEnd)
	trialEnd := nullTime(sub.TrialEnd)

	if err := s.businesses.SetSubscription(ctx, biz.ID, sub.ID, plan.ID, status, periodEnd, trialEnd); err != nil {
		s.logger.Error("provider subscription created but local write failed; state will re-sync on next webhook",
			zap.Int64("business_id", biz.ID),
			zap.String("subscription_id", sub.ID),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("subscription created",
		zap.Int64("business_id", biz.ID),
		zap.Int64("plan_id", plan.ID),
		zap.String("subscription_id", sub.ID),
		zap.String("status", string(status)),
	)

	result := &billing.CheckoutResult{
		SubscriptionID: sub.ID,
		Status:         status,
		ClientSecret:   sub.ClientSecret,
	}
	if periodEnd.Valid {
		t := periodEnd.Time
		result.CurrentPeriodEnd = &t
	}
	return result, nil
}

// CancelSubscription schedules cancellation at period end. The local
// canceling status is optimistic so the UI reflects intent immediately;
// reconciliation may overwrite it with whatever the provider later reports.
func (s *LifecycleService) CancelSubscription(ctx context.Context, businessID int64) error {
	biz, err := s.businesses.FindByID(ctx, businessID)
	if err != nil {
		return wrapLookup(err, "business")
	}
	if !biz.ProviderSubscriptionID.Valid {
		return fmt.Errorf("%w: business has no subscription", xerrors.ErrNotFound)
	}

	if _, err := s.provider.SetCancelAtPeriodEnd(ctx, biz.ProviderSubscriptionID.String, true); err != nil {
		return err
	}

	if err := s.businesses.UpdateStatus(ctx, biz.ID, billing.StatusCanceling); err != nil {
		return err
	}

	s.logger.Info("subscription cancellation scheduled",
		zap.Int64("business_id", biz.ID),
		zap.String("subscription_id", biz.ProviderSubscriptionID.String),
	)
	s.publish(ctx, biz.ID)
	return nil
}

// ResumeSubscription reverses a scheduled cancellation. Status and period
// end come from the provider response, never invented locally.
func (s *LifecycleService) ResumeSubscription(ctx context.Context, businessID int64) error {
	biz, err := s.businesses.FindByID(ctx, businessID)
	if err != nil {
		return wrapLookup(err, "business")
	}
	if !biz.ProviderSubscriptionID.Valid {
		return fmt.Errorf("%w: business has no subscription", xerrors.ErrNotFound)
	}

	sub, err := s.provider.SetCancelAtPeriodEnd(ctx, biz.ProviderSubscriptionID.String, false)
	if err != nil {
		return err
	}

	status := billing.StatusFromProvider(sub.Status, sub.CancelAtPeriodEnd)
	if err := s.businesses.UpdateStatusPeriod(ctx, biz.ID, status, nullTime(sub.CurrentPeriodEnd)); err != nil {
		return err
	}

	s.logger.Info("subscription resumed",
		zap.Int64("business_id", biz.ID),
		zap.String("subscription_id", sub.ID),
		zap.String("status", string(status)),
	)
	s.publish(ctx, biz.ID)
	return nil
}

// GetStatus returns the cached billing state for a business.
func (s *LifecycleService) GetStatus(ctx context.Context, businessID int64) (*billing.BillingStateResponse, error) {
	biz, err := s.businesses.FindByID(ctx, businessID)
	if err != nil {
		return nil, err
	}
	state := biz.BillingState()
	return &state, nil
}

func (s *LifecycleService) publish(ctx context.Context, businessID int64) {
	if s.notifier == nil {
		return
	}
	biz, err := s.businesses.FindByID(ctx, businessID)
	if err != nil {
		return
	}
	s.notifier.PublishBillingState(businessID, biz.BillingState())
}

// wrapLookup keeps the "not found" wording for genuine misses only;
// infrastructure failures must not masquerade as a 404.
func wrapLookup(err error, what string) error {
	if xerrors.Is(err, xerrors.ErrNotFound) {
		return fmt.Errorf("%s not found: %w", what, err)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

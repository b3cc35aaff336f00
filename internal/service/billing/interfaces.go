// internal/service/billing/interfaces.go
package billing

import (
	"context"
	"database/sql"
	"time"

	"opsdesk-service/internal/domain/billing"
	"opsdesk-service/internal/domain/business"
)

// BusinessRepo is the slice of business persistence the billing services
// need. Two writers share the same row: explicit user actions through the
// lifecycle service and asynchronous webhooks through reconciliation, which
// is why ApplyEvent is a compare-and-set rather than a plain update.
type BusinessRepo interface {
	FindByID(ctx context.Context, id int64) (*business.Business, error)
	FindByProviderSubscriptionID(ctx context.Context, subscriptionID string) (*business.Business, error)
	SetProviderCustomerID(ctx context.Context, businessID int64, customerID string) error
	SetSubscription(ctx context.Context, businessID int64, subscriptionID string, planID int64, status billing.BillingStatus, periodEnd, trialEnd sql.NullTime) error
	UpdateStatus(ctx context.Context, businessID int64, status billing.BillingStatus) error
	UpdateStatusPeriod(ctx context.Context, businessID int64, status billing.BillingStatus, periodEnd sql.NullTime) error
	ApplyEvent(ctx context.Context, businessID int64, status billing.BillingStatus, periodEnd sql.NullTime, eventAt time.Time) (bool, error)
}

type PlanRepo interface {
	Create(ctx context.Context, plan *billing.SubscriptionPlan) error
	FindByID(ctx context.Context, id int64) (*billing.SubscriptionPlan, error)
	ListActive(ctx context.Context) ([]billing.SubscriptionPlan, error)
	Update(ctx context.Context, id int64, plan *billing.SubscriptionPlan) error
	UpdateProviderIDs(ctx context.Context, id int64, productID, priceID string) error
	SetActive(ctx context.Context, id int64, active bool) error
}

// OverageRepo is the settlement slice of the overage ledger. Both methods
// transition pending rows only; terminal rows are left untouched and the
// false return tells the caller the delivery was a no-op.
type OverageRepo interface {
	MarkPaid(ctx context.Context, providerInvoiceID string) (bool, error)
	MarkFailed(ctx context.Context, providerInvoiceID, reason string) (bool, error)
}

// Notifier pushes billing-state changes to connected UI sessions. May be
// nil when no push transport is wired.
type Notifier interface {
	PublishBillingState(businessID int64, state billing.BillingStateResponse)
}

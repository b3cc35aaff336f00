// internal/domain/business/entity.go
package business

import (
	"database/sql"
	"time"

	"opsdesk-service/internal/domain/billing"
)

// Business carries the billing columns this core owns. The wider business
// record (address, hours, staff, ...) is managed by the CRUD layer and not
// modelled here.
//
// Invariant: BillingStatus == none exactly when ProviderSubscriptionID is
// null. LastEventAt is the provider-reported creation time of the last
// applied webhook event; reconciliation writes are conditional on it so
// out-of-order deliveries cannot roll the state backwards.
type Business struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	OwnerEmail string `json:"owner_email"`

	ProviderCustomerID     sql.NullString        `json:"provider_customer_id,omitempty"`
	ProviderSubscriptionID sql.NullString        `json:"provider_subscription_id,omitempty"`
	PlanID                 sql.NullInt64         `json:"plan_id,omitempty"`
	BillingStatus          billing.BillingStatus `json:"billing_status"`
	CurrentPeriodEnd       sql.NullTime          `json:"current_period_end,omitempty"`
	TrialEndsAt            sql.NullTime          `json:"trial_ends_at,omitempty"`
	LastEventAt            sql.NullTime          `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BillingState projects the billing columns into the API response shape.
func (b *Business) BillingState() billing.BillingStateResponse {
	resp := billing.BillingStateResponse{
		BusinessID: b.ID,
		Status:     b.BillingStatus,
	}
	if b.PlanID.Valid {
		planID := b.PlanID.Int64
		resp.PlanID = &planID
	}
	if b.ProviderCustomerID.Valid {
		resp.ProviderCustomerID = b.ProviderCustomerID.String
	}
	if b.ProviderSubscriptionID.Valid {
		resp.ProviderSubscriptionID = b.ProviderSubscriptionID.String
	}
	if b.CurrentPeriodEnd.Valid {
		t := b.CurrentPeriodEnd.Time
		resp.CurrentPeriodEnd = &t
	}
	if b.TrialEndsAt.Valid {
		t := b.TrialEndsAt.Time
		resp.TrialEndsAt = &t
	}
	return resp
}

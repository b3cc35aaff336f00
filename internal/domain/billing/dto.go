// internal/domain/billing/dto.go
package billing

import "time"

type CreateSubscriptionRequest struct {
	BusinessID int64 `json:"business_id" binding:"required,min=1"`
	PlanID     int64 `json:"plan_id" binding:"required,min=1"`
}

// CheckoutResult is returned from subscription creation. The client secret
// is handed to the frontend to complete payment collection out-of-band.
type CheckoutResult struct {
	SubscriptionID   string        `json:"subscription_id"`
	Status           BillingStatus `json:"status"`
	ClientSecret     string        `json:"client_secret"`
	CurrentPeriodEnd *time.Time    `json:"current_period_end,omitempty"`
}

// BillingStateResponse is the view of a business's cached billing state.
type BillingStateResponse struct {
	BusinessID             int64         `json:"business_id"`
	Status                 BillingStatus `json:"status"`
	PlanID                 *int64        `json:"plan_id,omitempty"`
	ProviderCustomerID     string        `json:"provider_customer_id,omitempty"`
	ProviderSubscriptionID string        `json:"provider_subscription_id,omitempty"`
	CurrentPeriodEnd       *time.Time    `json:"current_period_end,omitempty"`
	TrialEndsAt            *time.Time    `json:"trial_ends_at,omitempty"`
}

// RecordOverageRequest registers a pending overage charge for an invoice
// already issued at the provider.
type RecordOverageRequest struct {
	BusinessID        int64   `json:"business_id" binding:"required,min=1"`
	ProviderInvoiceID string  `json:"provider_invoice_id" binding:"required"`
	Amount            float64 `json:"amount" binding:"required,min=0"`
}

// RecordUsageRequest increments one usage counter for the current period.
type RecordUsageRequest struct {
	Kind string `json:"kind" binding:"required,max=64"`
}

type CreatePlanRequest struct {
	Name        string       `json:"name" binding:"required,max=255"`
	Description string       `json:"description"`
	Price       float64      `json:"price" binding:"required,min=0"`
	Interval    PlanInterval `json:"interval" binding:"required,oneof=monthly yearly"`
	Features    []string     `json:"features"`
	SortOrder   int          `json:"sort_order" binding:"min=0"`
}

type UpdatePlanRequest struct {
	Name        *string  `json:"name" binding:"omitempty,max=255"`
	Description *string  `json:"description"`
	Features    []string `json:"features"`
	Active      *bool    `json:"active"`
	SortOrder   *int     `json:"sort_order" binding:"omitempty,min=0"`
}

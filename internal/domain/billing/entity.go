// internal/domain/billing/entity.go
package billing

import (
	"database/sql"
	"time"
)

type PlanInterval string

const (
	IntervalMonthly PlanInterval = "monthly"
	IntervalYearly  PlanInterval = "yearly"
)

// BillingStatus is the locally cached subscription status for a business.
// The provider is authoritative; these values mirror what it reports plus
// the local-only "none" (never subscribed) and "error" (unmappable) states.
type BillingStatus string

const (
	StatusNone       BillingStatus = "none"
	StatusIncomplete BillingStatus = "incomplete"
	StatusTrialing   BillingStatus = "trialing"
	StatusActive     BillingStatus = "active"
	StatusCanceling  BillingStatus = "canceling"
	StatusCanceled   BillingStatus = "canceled"
	StatusPastDue    BillingStatus = "past_due"
	StatusError      BillingStatus = "error"
)

// StatusFromProvider maps a provider-reported subscription status onto the
// local enum. A subscription that is still active but flagged to stop at
// period end is reported as canceling.
func StatusFromProvider(providerStatus string, cancelAtPeriodEnd bool) BillingStatus {
	if cancelAtPeriodEnd && (providerStatus == "active" || providerStatus == "trialing") {
		return StatusCanceling
	}

	switch providerStatus {
	case "incomplete":
		return StatusIncomplete
	case "trialing":
		return StatusTrialing
	case "active":
		return StatusActive
	case "canceled", "incomplete_expired":
		return StatusCanceled
	case "past_due", "unpaid":
		return StatusPastDue
	default:
		return StatusError
	}
}

type SubscriptionPlan struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Description sql.NullString `json:"description,omitempty"`

	// Pricing, major currency units
	Price    float64      `json:"price"`
	Interval PlanInterval `json:"interval"`

	Features []string `json:"features,omitempty"`

	// Provider object identifiers, written once at creation
	ProviderProductID string `json:"provider_product_id,omitempty"`
	ProviderPriceID   string `json:"provider_price_id,omitempty"`

	Active    bool `json:"active"`
	SortOrder int  `json:"sort_order"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type OverageStatus string

const (
	OveragePending OverageStatus = "pending"
	OveragePaid    OverageStatus = "paid"
	OverageFailed  OverageStatus = "failed"
)

// OverageCharge is a usage-based supplemental invoice issued outside the
// base subscription. Rows are created pending by the usage-billing path and
// settled exclusively by webhook reconciliation. pending -> paid and
// pending -> failed are the only legal transitions.
type OverageCharge struct {
	ID                int64          `json:"id"`
	BusinessID        int64          `json:"business_id"`
	ProviderInvoiceID string         `json:"provider_invoice_id"`
	Amount            float64        `json:"amount"`
	Status            OverageStatus  `json:"status"`
	FailureReason     sql.NullString `json:"failure_reason,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

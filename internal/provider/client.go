// internal/provider/client.go
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"opsdesk-service/internal/domain/billing"
	xerrors "opsdesk-service/internal/pkg/errors"

	stripesdk "github.com/stripe/stripe-go/v76"
)

// Client is the synchronous wrapper around the payment provider. Exactly one
// implementation is chosen at wiring time: the Stripe client when credentials
// are configured, the disabled client otherwise. Every method returns a
// normalized result or an error matching one of the xerrors sentinels.
type Client interface {
	Enabled() bool

	// EnsureCustomer returns the provider customer for a business,
	// reusing existingID when it still resolves and creating one only
	// when missing.
	EnsureCustomer(ctx context.Context, existingID, email, name string, businessID int64) (*Customer, error)

	// EnsureProduct / EnsurePrice are idempotent: a resolvable existing
	// id is returned as-is, creation happens only when absent.
	EnsureProduct(ctx context.Context, existingID, name, description string) (string, error)
	EnsurePrice(ctx context.Context, existingID, productID string, amount float64, interval billing.PlanInterval) (string, error)

	// CreateSubscription starts a subscription in the provider's
	// incomplete payment state and returns the client secret the caller
	// needs to finish payment collection.
	CreateSubscription(ctx context.Context, customerID, priceID string, businessID int64) (*Subscription, error)

	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*Subscription, error)

	// VerifyWebhook checks the signature of an inbound event payload.
	// It must be called before any event-driven state mutation.
	VerifyWebhook(payload []byte, signature string) (*Event, error)
}

type Customer struct {
	ID    string
	Email string
	Name  string
}

type Subscription struct {
	ID                string
	CustomerID        string
	Status            string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  time.Time
	TrialEnd          time.Time
	ClientSecret      string
}

type Invoice struct {
	ID             string
	SubscriptionID string
	Amount         float64
	Metadata       map[string]string
	FailureMessage string
}

// Event is a verified provider webhook event. Created carries the
// provider-side creation timestamp used for stale-event ordering.
type Event struct {
	ID      string
	Type    string
	Created time.Time
	Data    json.RawMessage
}

// Subscription decodes the event payload as a subscription object.
func (e *Event) Subscription() (*Subscription, error) {
	var sub stripesdk.Subscription
	if err := json.Unmarshal(e.Data, &sub); err != nil {
		return nil, fmt.Errorf("%w: malformed subscription payload: %v", xerrors.ErrInvalidInput, err)
	}
	return normalizeSubscription(&sub), nil
}

// Invoice decodes the event payload as an invoice object.
func (e *Event) Invoice() (*Invoice, error) {
	var inv stripesdk.Invoice
	if err := json.Unmarshal(e.Data, &inv); err != nil {
		return nil, fmt.Errorf("%w: malformed invoice payload: %v", xerrors.ErrInvalidInput, err)
	}

	out := &Invoice{
		ID:       inv.ID,
		Amount:   float64(inv.AmountDue) / 100,
		Metadata: inv.Metadata,
	}
	if inv.Subscription != nil {
		out.SubscriptionID = inv.Subscription.ID
	}
	if inv.LastFinalizationError != nil && inv.LastFinalizationError.Msg != "" {
		out.FailureMessage = inv.LastFinalizationError.Msg
	} else {
		out.FailureMessage = "payment failed"
	}
	return out, nil
}

func normalizeSubscription(sub *stripesdk.Subscription) *Subscription {
	out := &Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		out.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}
	if sub.TrialEnd > 0 {
		out.TrialEnd = time.Unix(sub.TrialEnd, 0).UTC()
	}
	if sub.LatestInvoice != nil && sub.LatestInvoice.PaymentIntent != nil {
		out.ClientSecret = sub.LatestInvoice.PaymentIntent.ClientSecret
	}
	return out
}

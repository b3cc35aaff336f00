// internal/provider/disabled.go
package provider

import (
	"context"

	"opsdesk-service/internal/domain/billing"
	xerrors "opsdesk-service/internal/pkg/errors"
)

// Disabled is the provider client wired in when no credentials are
// configured. Every operation reports ErrNotConfigured so billing endpoints
// answer 503 while usage metering keeps running.
type Disabled struct{}

func NewDisabled() *Disabled { return &Disabled{} }

func (*Disabled) Enabled() bool { return false }

func (*Disabled) EnsureCustomer(ctx context.Context, existingID, email, name string, businessID int64) (*Customer, error) {
	return nil, xerrors.ErrNotConfigured
}

func (*Disabled) EnsureProduct(ctx context.Context, existingID, name, description string) (string, error) {
	return "", xerrors.ErrNotConfigured
}

func (*Disabled) EnsurePrice(ctx context.Context, existingID, productID string, amount float64, interval billing.PlanInterval) (string, error) {
	return "", xerrors.ErrNotConfigured
}

func (*Disabled) CreateSubscription(ctx context.Context, customerID, priceID string, businessID int64) (*Subscription, error) {
	return nil, xerrors.ErrNotConfigured
}

func (*Disabled) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	return nil, xerrors.ErrNotConfigured
}

func (*Disabled) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*Subscription, error) {
	return nil, xerrors.ErrNotConfigured
}

func (*Disabled) VerifyWebhook(payload []byte, signature string) (*Event, error) {
	return nil, xerrors.ErrNotConfigured
}

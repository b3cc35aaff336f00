// internal/provider/stripe.go
package provider

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"opsdesk-service/internal/config"
	"opsdesk-service/internal/domain/billing"
	xerrors "opsdesk-service/internal/pkg/errors"

	"github.com/oklog/ulid/v2"
	stripesdk "github.com/stripe/stripe-go/v76"
	stripeclient "github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// StripeClient implements Client against the Stripe API. It holds its own
// API client instance rather than the SDK's package-level key so a fake can
// be substituted behind the Client interface in tests.
type StripeClient struct {
	api           *stripeclient.API
	webhookSecret string
	timeout       time.Duration
	logger        *zap.Logger
}

func NewStripeClient(cfg config.BillingConfig, timeout time.Duration, logger *zap.Logger) *StripeClient {
	api := &stripeclient.API{}
	api.Init(cfg.SecretKey, nil)

	return &StripeClient{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		timeout:       timeout,
		logger:        logger,
	}
}

func (s *StripeClient) Enabled() bool { return true }

func (s *StripeClient) EnsureCustomer(ctx context.Context, existingID, email, name string, businessID int64) (*Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if existingID != "" {
		params := &stripesdk.CustomerParams{}
		params.Context = ctx
		cust, err := s.api.Customers.Get(existingID, params)
		if err == nil {
			return &Customer{ID: cust.ID, Email: cust.Email, Name: cust.Name}, nil
		}
		if !isResourceMissing(err) {
			return nil, mapStripeError(err)
		}
		s.logger.Warn("cached provider customer no longer resolves, creating a new one",
			zap.String("customer_id", existingID),
			zap.Int64("business_id", businessID),
		)
	}

	params := &stripesdk.CustomerParams{
		Email: stripesdk.String(email),
		Name:  stripesdk.String(name),
	}
	params.Context = ctx
	params.AddMetadata("business_id", fmt.Sprintf("%d", businessID))
	// Deterministic key so a crashed-and-retried checkout cannot mint a
	// second customer before the id is cached locally.
	params.IdempotencyKey = stripesdk.String(fmt.Sprintf("opsdesk-customer-%d", businessID))

	cust, err := s.api.Customers.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}

	return &Customer{ID: cust.ID, Email: cust.Email, Name: cust.Name}, nil
}

func (s *StripeClient) EnsureProduct(ctx context.Context, existingID, name, description string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if existingID != "" {
		params := &stripesdk.ProductParams{}
		params.Context = ctx
		if prod, err := s.api.Products.Get(existingID, params); err == nil {
			return prod.ID, nil
		} else if !isResourceMissing(err) {
			return "", mapStripeError(err)
		}
	}

	params := &stripesdk.ProductParams{
		Name: stripesdk.String(name),
	}
	if description != "" {
		params.Description = stripesdk.String(description)
	}
	params.Context = ctx
	params.IdempotencyKey = stripesdk.String(newIdempotencyKey())

	prod, err := s.api.Products.New(params)
	if err != nil {
		return "", mapStripeError(err)
	}
	return prod.ID, nil
}

func (s *StripeClient) EnsurePrice(ctx context.Context, existingID, productID string, amount float64, interval billing.PlanInterval) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if existingID != "" {
		params := &stripesdk.PriceParams{}
		params.Context = ctx
		if price, err := s.api.Prices.Get(existingID, params); err == nil {
			return price.ID, nil
		} else if !isResourceMissing(err) {
			return "", mapStripeError(err)
		}
	}

	params := &stripesdk.PriceParams{
		Product:    stripesdk.String(productID),
		Currency:   stripesdk.String(string(stripesdk.CurrencyUSD)),
		UnitAmount: stripesdk.Int64(int64(amount * 100)), // convert to cents
		Recurring: &stripesdk.PriceRecurringParams{
			Interval: stripesdk.String(stripeInterval(interval)),
		},
	}
	params.Context = ctx
	params.IdempotencyKey = stripesdk.String(newIdempotencyKey())

	price, err := s.api.Prices.New(params)
	if err != nil {
		return "", mapStripeError(err)
	}
	return price.ID, nil
}

func (s *StripeClient) CreateSubscription(ctx context.Context, customerID, priceID string, businessID int64) (*Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := &stripesdk.SubscriptionParams{
		Customer: stripesdk.String(customerID),
		Items: []*stripesdk.SubscriptionItemsParams{
			{Price: stripesdk.String(priceID)},
		},
		PaymentBehavior: stripesdk.String("default_incomplete"),
		PaymentSettings: &stripesdk.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripesdk.String("on_subscription"),
		},
	}
	params.Context = ctx
	params.AddMetadata("business_id", fmt.Sprintf("%d", businessID))
	params.AddExpand("latest_invoice.payment_intent")
	params.IdempotencyKey = stripesdk.String(newIdempotencyKey())

	sub, err := s.api.Subscriptions.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return normalizeSubscription(sub), nil
}

func (s *StripeClient) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := &stripesdk.SubscriptionParams{}
	params.Context = ctx

	sub, err := s.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return normalizeSubscription(sub), nil
}

func (s *StripeClient) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*Subscription, error) {
	ctx, cancelFn := context.WithTimeout(ctx, s.timeout)
	defer cancelFn()

	params := &stripesdk.SubscriptionParams{
		CancelAtPeriodEnd: stripesdk.Bool(cancel),
	}
	params.Context = ctx

	sub, err := s.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return normalizeSubscription(sub), nil
}

func (s *StripeClient) VerifyWebhook(payload []byte, signature string) (*Event, error) {
	if signature == "" {
		return nil, xerrors.ErrSignatureInvalid
	}

	// IgnoreAPIVersionMismatch: CLI-forwarded events can carry a newer
	// API version than the SDK; the signature check is unaffected.
	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrSignatureInvalid, err)
	}

	return &Event{
		ID:      ev.ID,
		Type:    string(ev.Type),
		Created: time.Unix(ev.Created, 0).UTC(),
		Data:    ev.Data.Raw,
	}, nil
}

// --- helpers ---

func stripeInterval(interval billing.PlanInterval) string {
	if interval == billing.IntervalYearly {
		return "year"
	}
	return "month"
}

func newIdempotencyKey() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return "opsdesk-" + strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}

func isResourceMissing(err error) bool {
	var sErr *stripesdk.Error
	return errors.As(err, &sErr) && sErr.Code == stripesdk.ErrorCodeResourceMissing
}

// mapStripeError folds SDK errors into the sentinel taxonomy. Timeouts and
// transport failures are ProviderUnavailable; the caller must not assume the
// remote operation did or did not complete.
func mapStripeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", xerrors.ErrProviderUnavailable, err)
	}

	var sErr *stripesdk.Error
	if errors.As(err, &sErr) {
		if sErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("%w: %s", xerrors.ErrProviderUnavailable, sErr.Msg)
		}
		if sErr.Code == stripesdk.ErrorCodeResourceMissing {
			return fmt.Errorf("%w: %s", xerrors.ErrNotFound, sErr.Msg)
		}
		return fmt.Errorf("%w: %s", xerrors.ErrProviderRejected, sErr.Msg)
	}

	return fmt.Errorf("%w: %v", xerrors.ErrProviderUnavailable, err)
}

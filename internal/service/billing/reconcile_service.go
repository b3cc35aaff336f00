// internal/service/billing/reconcile_service.go
package billing

import (
	"context"
	"errors"

	"opsdesk-service/internal/domain/billing"
	xerrors "opsdesk-service/internal/pkg/errors"
	"opsdesk-service/internal/provider"

	"go.uber.org/zap"
)

// ReconcileService consumes provider webhook events and applies the
// resulting state to the business billing cache and the overage ledger.
//
// Delivery is at-least-once and unordered, so every branch must be
// idempotent and subscription-state writes are guarded by the per-business
// applied-event marker: an event older than the last applied one is
// discarded, never reapplied over newer state.
type ReconcileService struct {
	businesses BusinessRepo
	overages   OverageRepo
	provider   provider.Client
	notifier   Notifier
	logger     *zap.Logger
}

func NewReconcileService(
	businesses BusinessRepo,
	overages OverageRepo,
	providerClient provider.Client,
	notifier Notifier,
	logger *zap.Logger,
) *ReconcileService {
	return &ReconcileService{
		businesses: businesses,
		overages:   overages,
		provider:   providerClient,
		notifier:   notifier,
		logger:     logger,
	}
}

// HandleEvent verifies and processes one inbound webhook delivery.
//
// A nil return means the delivery is consumed and must be acknowledged,
// including every intentional no-op branch; only a signature failure or a
// processing error propagates so the provider redelivers.
func (s *ReconcileService) HandleEvent(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.provider.VerifyWebhook(payload, signature)
	if err != nil {
		return err
	}

	switch ev.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		sub, err := ev.Subscription()
		if err != nil {
			s.logger.Warn("unparseable subscription event, acknowledging", zap.String("event_id", ev.ID), zap.Error(err))
			return nil
		}
		return s.applySubscription(ctx, sub, ev, "")

	case "customer.subscription.deleted":
		sub, err := ev.Subscription()
		if err != nil {
			s.logger.Warn("unparseable subscription event, acknowledging", zap.String("event_id", ev.ID), zap.Error(err))
			return nil
		}
		return s.applySubscription(ctx, sub, ev, billing.StatusCanceled)

	case "invoice.payment_succeeded":
		return s.handleInvoice(ctx, ev, true)

	case "invoice.payment_failed":
		return s.handleInvoice(ctx, ev, false)

	default:
		s.logger.Debug("ignoring unhandled event type",
			zap.String("event_id", ev.ID),
			zap.String("event_type", ev.Type),
		)
		return nil
	}
}

// applySubscription looks up the owning business and compare-and-sets the
// cached state. override forces a status regardless of the payload
// (subscription deleted => canceled).
func (s *ReconcileService) applySubscription(ctx context.Context, sub *provider.Subscription, ev *provider.Event, override billing.BillingStatus) error {
	biz, err := s.businesses.FindByProviderSubscriptionID(ctx, sub.ID)
	if errors.Is(err, xerrors.ErrNotFound) {
		// Not an error: events can reference subscriptions this system
		// never tracked (other environments, deleted test data).
		s.logger.Info("event for unknown subscription, acknowledging",
			zap.String("event_id", ev.ID),
			zap.String("subscription_id", sub.ID),
		)
		return nil
	}
	if err != nil {
		return err
	}

	status := override
	if status == "" {
		status = billing.StatusFromProvider(sub.Status, sub.CancelAtPeriodEnd)
	}

	applied, err := s.businesses.ApplyEvent(ctx, biz.ID, status, nullTime(sub.CurrentPeriodEnd), ev.Created)
	if err != nil {
		return err
	}
	if !applied {
		s.logger.Info("stale event discarded",
			zap.String("event_id", ev.ID),
			zap.Int64("business_id", biz.ID),
			zap.Time("event_created", ev.Created),
		)
		return nil
	}

	s.logger.Info("billing state reconciled",
		zap.String("event_id", ev.ID),
		zap.Int64("business_id", biz.ID),
		zap.String("status", string(status)),
	)

	if s.notifier != nil {
		if fresh, err := s.businesses.FindByID(ctx, biz.ID); err == nil {
			s.notifier.PublishBillingState(biz.ID, fresh.BillingState())
		}
	}
	return nil
}

func (s *ReconcileService) handleInvoice(ctx context.Context, ev *provider.Event, succeeded bool) error {
	inv, err := ev.Invoice()
	if err != nil {
		s.logger.Warn("unparseable invoice event, acknowledging", zap.String("event_id", ev.ID), zap.Error(err))
		return nil
	}

	if inv.Metadata["type"] == "overage" {
		return s.settleOverage(ctx, ev, inv, succeeded)
	}

	if inv.SubscriptionID != "" {
		// The invoice payload's view of the subscription may be older
		// than the subscription's own events; re-fetch the current
		// state instead of trusting the invoice snapshot.
		sub, err := s.provider.GetSubscription(ctx, inv.SubscriptionID)
		if err != nil {
			if errors.Is(err, xerrors.ErrNotFound) {
				s.logger.Info("invoice references unknown subscription, acknowledging",
					zap.String("event_id", ev.ID),
					zap.String("subscription_id", inv.SubscriptionID),
				)
				return nil
			}
			return err
		}
		return s.applySubscription(ctx, sub, ev, "")
	}

	s.logger.Debug("invoice event without subscription or overage tag, acknowledging",
		zap.String("event_id", ev.ID),
		zap.String("invoice_id", inv.ID),
	)
	return nil
}

// settleOverage drives the pending -> paid/failed transitions. Terminal
// rows are untouchable at the SQL level, so a replayed delivery settles
// nothing and is acknowledged as a no-op.
func (s *ReconcileService) settleOverage(ctx context.Context, ev *provider.Event, inv *provider.Invoice, succeeded bool) error {
	var (
		settled bool
		err     error
	)
	if succeeded {
		settled, err = s.overages.MarkPaid(ctx, inv.ID)
	} else {
		settled, err = s.overages.MarkFailed(ctx, inv.ID, inv.FailureMessage)
	}
	if err != nil {
		return err
	}

	if !settled {
		s.logger.Info("overage charge not transitioned (missing or already terminal)",
			zap.String("event_id", ev.ID),
			zap.String("invoice_id", inv.ID),
		)
		return nil
	}

	s.logger.Info("overage charge settled",
		zap.String("event_id", ev.ID),
		zap.String("invoice_id", inv.ID),
		zap.Bool("paid", succeeded),
	)
	return nil
}

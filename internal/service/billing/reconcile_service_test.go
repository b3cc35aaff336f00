// internal/service/billing/reconcile_service_test.go
package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"opsdesk-service/internal/domain/billing"
	"opsdesk-service/internal/domain/business"
	xerrors "opsdesk-service/internal/pkg/errors"
	"opsdesk-service/internal/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func subscribedBusiness(id int64, subID string, status billing.BillingStatus) *business.Business {
	return &business.Business{
		ID:                     id,
		Name:                   "Acme Salon",
		OwnerEmail:             "owner@acme.test",
		ProviderCustomerID:     sql.NullString{String: fmt.Sprintf("cus_%d", id), Valid: true},
		ProviderSubscriptionID: sql.NullString{String: subID, Valid: true},
		PlanID:                 sql.NullInt64{Int64: 1, Valid: true},
		BillingStatus:          status,
	}
}

func subscriptionEvent(eventType, subID, status string, cancelAtPeriodEnd bool, created time.Time) *provider.Event {
	payload := map[string]interface{}{
		"id":                   subID,
		"status":               status,
		"cancel_at_period_end": cancelAtPeriodEnd,
		"customer":             map[string]interface{}{"id": "cus_1"},
		"current_period_end":   created.Add(30 * 24 * time.Hour).Unix(),
	}
	data, _ := json.Marshal(payload)
	return &provider.Event{
		ID:      "evt_" + status,
		Type:    eventType,
		Created: created,
		Data:    data,
	}
}

func invoiceEvent(eventType, invoiceID, subID string, metadata map[string]string, created time.Time) *provider.Event {
	payload := map[string]interface{}{
		"id":         invoiceID,
		"amount_due": 2500,
		"metadata":   metadata,
	}
	if subID != "" {
		payload["subscription"] = map[string]interface{}{"id": subID}
	}
	data, _ := json.Marshal(payload)
	return &provider.Event{
		ID:      "evt_" + invoiceID,
		Type:    eventType,
		Created: created,
		Data:    data,
	}
}

func newReconcileFixture(bizs ...*business.Business) (*ReconcileService, *fakeBusinessRepo, *fakeOverageRepo, *fakeProvider, *fakeNotifier) {
	businesses := newFakeBusinessRepo(bizs...)
	overages := newFakeOverageRepo()
	prov := newFakeProvider()
	notifier := &fakeNotifier{}
	svc := NewReconcileService(businesses, overages, prov, notifier, zap.NewNop())
	return svc, businesses, overages, prov, notifier
}

func TestHandleEventAppliesSubscriptionState(t *testing.T) {
	svc, businesses, _, prov, notifier := newReconcileFixture(
		subscribedBusiness(1, "sub_1", billing.StatusIncomplete),
	)

	now := time.Now().UTC().Truncate(time.Second)
	prov.verifyEvent = subscriptionEvent("customer.subscription.updated", "sub_1", "active", false, now)

	require.NoError(t, svc.HandleEvent(context.Background(), []byte(`{}`), "sig"))

	biz := businesses.businesses[1]
	assert.Equal(t, billing.StatusActive, biz.BillingStatus)
	assert.True(t, biz.CurrentPeriodEnd.Valid)
	assert.True(t, biz.LastEventAt.Valid)
	require.Len(t, notifier.published, 1)
	assert.Equal(t, billing.StatusActive, notifier.published[0].Status)
}

func TestHandleEventReplayIsIdempotent(t *testing.T) {
	svc, businesses, _, prov, _ := newReconcileFixture(
		subscribedBusiness(1, "sub_1", billing.StatusIncomplete),
	)

	now := time.Now().UTC().Truncate(time.Second)
	prov.verifyEvent = subscriptionEvent("customer.subscription.updated", "sub_1", "active", false, now)

	require.NoError(t, svc.HandleEvent(context.Background(), []byte(`{}`), "sig"))
	require.NoError(t, svc.HandleEvent(context.Background(), []byte(`{}`), "sig"))

	assert.Equal(t, billing.StatusActive, businesses.businesses[1].BillingStatus)
	assert.Equal(t, now, businesses.businesses[1].LastEventAt.Time)
}

func TestHandleEventDiscardsStaleEvent(t *testing.T) {
	svc, businesses, _, prov, notifier := newReconcileFixture(
		subscribedBusiness(1, "sub_1", billing.StatusIncomplete),
	)

	now := time.Now().UTC().Truncate(time.Second)

	// Newer event lands first.
	prov.verifyEvent = subscriptionEvent("customer.subscription.updated", "sub_1", "active", false, now)
	require.NoError(t, svc.HandleEvent(context.Background(), []byte(`{}`), "sig"))

	// Then the delayed older one arrives.
	prov.verifyEvent = subscriptionEvent("customer.subscription.updated", "sub_1", "past_due", false, now.Add(-time.Minute))
	require.NoError(t, svc.HandleEvent(context.Background(), []byte(`{}`), "sig"))

	biz := businesses.businesses[1]
	assert.Equal(t, billing.StatusActive, biz.BillingStatus, "stale event must not roll state backwards")
	assert.Equal(t, now, biz.LastEventAt.Time)
	assert.Len(t, notifier.published, 1, "discarded event must not publish")
}

func TestHandleEventSubscriptionDeleted(t *testing.T) {
	svc, businesses, _, prov, _ := newReconcileFixture(
		subscribedBusiness(1, "sub_1", billing.StatusCanceling),
	)

	// Payload still says active; the event type wins.
	prov.verifyEvent = subscriptionEvent("customer.subscription.deleted", "sub_1", "active", false, time.Now().UTC())

	require.NoError(t, svc.HandleEvent(context.Background(), []byte(`{}`), "sig"))
	assert.Equal(t, billing.StatusCanceled, businesses.businesses[1].BillingStatus)
}

func TestHandleEventCancelAtPeriodEndMapsToCanceling(t *testing.T) {
	svc, businesses, _, prov, _ := newReconcileFixture(
		subscribedBusiness(1, "sub_1", billing.StatusActive),
	)

	prov.verifyEvent = subscriptionEvent("customer.subscription.updated", "sub_1", "active", true, time.Now().UTC())

	require.NoError(t, svc.HandleEvent(context.Background(), []byte(`{}`), "sig"))
	assert.Equal(t, billing.StatusCanceling, businesses.businesses[1].BillingStatus)
}

func TestHandleEventUnknownSubscriptionAcked(t *testing.T) {
	svc, businesses, _, prov, _ := newReconcileFixture(
		subscribedBusiness(1, "sub_1", billing.StatusActive),
	)

	prov.verifyEvent = subscriptionEvent("customer.subscription.updated", "sub_other", "past_due", false, time.Now().UTC())

	require.NoError(t, svc.HandleEvent(context.Background(), []byte(`{}`), "sig"))
	assert.Equal(t, billing.StatusActive, businesses.businesses[1].BillingStatus)
}

func TestHandleEventBadSignature(t *testing.T) {
	svc, businesses, _, prov, _ := newReconcileFixture(
		subscribedBusiness(1, "sub_1", billing.StatusActive),
	)

	prov.verifyErr = xerrors.ErrSignatureInvalid

	err := svc.HandleEvent(context.Background(), []byte(`{}`), "bad")
	require.ErrorIs(t, err, xerrors.ErrSignatureInvalid)
	assert.False(t, businesses.businesses[1].LastEventAt.Valid, "no state may change on signature failure")
}

func TestHandleEventUnhandledTypeAcked(t *testing.T) {
	svc, _, _, prov, _ := newReconcileFixture()

	prov.verifyEvent = &provider.Event{ID: "evt_x", Type: "charge.refunded", Created: time.Now().UTC()}
	require.NoError(t, svc.HandleEvent(context.Background(), []byte(`{}`), "sig"))
}

func TestHandleEventUnparseablePayloadAcked(t *testing.T) {
	svc, businesses, _, prov, _ := newReconcileFixture(
		subscribedBusiness(1, "sub_1", billing.StatusActive),
	)

	prov.verifyEvent = &provider.Event{
		ID:      "evt_bad",
		Type:    "customer.subscription.updated",
		Created: time.Now().UTC(),
		Data:    json.RawMessage(`{"id":123}`),
	}

	require.NoError(t, svc.HandleEvent(context.Background(), []byte(`{}`), "sig"))
	assert.Equal(t, billing.StatusActive, businesses.businesses[1].BillingStatus)
}

func TestHandleEventInvoiceRefetchesSubscription(t *testing.T) {
	svc, businesses, _, prov, _ := newReconcileFixture(
		subscribedBusiness(1, "sub_1", billing.StatusIncomplete),
	)

	periodEnd := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)
	prov.subscription = &provider.Subscription{
		ID:               "sub_1",
		Status:           "active",
		CurrentPeriodEnd: periodEnd,
	}
	prov.verifyEvent = invoiceEvent("invoice.payment_succeeded", "in_1", "sub_1", nil, time.Now().UTC())

	require.NoError(t, svc.HandleEvent(context.Background(), []byte(`{}`), "sig"))

	biz := businesses.businesses[1]
	assert.Equal(t, billing.StatusActive, biz.BillingStatus)
	assert.Equal(t, periodEnd, biz.CurrentPeriodEnd.Time)
}

func TestHandleEventInvoiceUnknownSubscriptionAcked(t *testing.T) {
	svc, _, _, prov, _ := newReconcileFixture()

	prov.verifyEvent = invoiceEvent("invoice.payment_succeeded", "in_1", "sub_gone", nil, time.Now().UTC())
	require.NoError(t, svc.HandleEvent(context.Background(), []byte(`{}`), "sig"))
}

func TestOverageSettlement(t *testing.T) {
	overageMeta := map[string]string{"type": "overage"}

	t.Run("paid", func(t *testing.T) {
		svc, _, overages, prov, _ := newReconcileFixture()
		overages.charges["in_ov1"] = &billing.OverageCharge{
			BusinessID:        1,
			ProviderInvoiceID: "in_ov1",
			Status:            billing.OveragePending,
		}

		prov.verifyEvent = invoiceEvent("invoice.payment_succeeded", "in_ov1", "", overageMeta, time.Now().UTC())
		require.NoError(t, svc.HandleEvent(context.Background(), []byte(`{}`), "sig"))
		assert.Equal(t, billing.OveragePaid, overages.charges["in_ov1"].Status)
	})

	t.Run("failed records reason", func(t *testing.T) {
		svc, _, overages, prov, _ := newReconcileFixture()
		overages.charges["in_ov2"] = &billing.OverageCharge{
			BusinessID:        1,
			ProviderInvoiceID: "in_ov2",
			Status:            billing.OveragePending,
		}

		prov.verifyEvent = invoiceEvent("invoice.payment_failed", "in_ov2", "", overageMeta, time.Now().UTC())
		require.NoError(t, svc.HandleEvent(context.Background(), []byte(`{}`), "sig"))

		charge := overages.charges["in_ov2"]
		assert.Equal(t, billing.OverageFailed, charge.Status)
		assert.True(t, charge.FailureReason.Valid)
	})

	t.Run("terminal rows stay terminal", func(t *testing.T) {
		svc, _, overages, prov, _ := newReconcileFixture()
		overages.charges["in_ov3"] = &billing.OverageCharge{
			BusinessID:        1,
			ProviderInvoiceID: "in_ov3",
			Status:            billing.OveragePending,
		}

		// Failure lands first, then a duplicate success delivery.
		prov.verifyEvent = invoiceEvent("invoice.payment_failed", "in_ov3", "", overageMeta, time.Now().UTC())
		require.NoError(t, svc.HandleEvent(context.Background(), []byte(`{}`), "sig"))

		prov.verifyEvent = invoiceEvent("invoice.payment_succeeded", "in_ov3", "", overageMeta, time.Now().UTC())
		require.NoError(t, svc.HandleEvent(context.Background(), []byte(`{}`), "sig"))

		assert.Equal(t, billing.OverageFailed, overages.charges["in_ov3"].Status)
	})

	t.Run("unknown invoice acked", func(t *testing.T) {
		svc, _, _, prov, _ := newReconcileFixture()
		prov.verifyEvent = invoiceEvent("invoice.payment_succeeded", "in_missing", "", overageMeta, time.Now().UTC())
		require.NoError(t, svc.HandleEvent(context.Background(), []byte(`{}`), "sig"))
	})
}

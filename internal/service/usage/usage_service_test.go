// internal/service/usage/usage_service_test.go
package usage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"opsdesk-service/internal/domain/billing"
	xerrors "opsdesk-service/internal/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubOverageRepo struct {
	charges   []billing.OverageCharge
	createErr error
}

func (r *stubOverageRepo) Create(_ context.Context, charge *billing.OverageCharge) error {
	if r.createErr != nil {
		return r.createErr
	}
	charge.ID = int64(len(r.charges) + 1)
	r.charges = append(r.charges, *charge)
	return nil
}

func (r *stubOverageRepo) ListByBusiness(_ context.Context, businessID int64) ([]billing.OverageCharge, error) {
	var out []billing.OverageCharge
	for _, c := range r.charges {
		if c.BusinessID == businessID {
			out = append(out, c)
		}
	}
	return out, nil
}

func newUsageFixture(t *testing.T) (*Service, *miniredis.Miniredis, *stubOverageRepo) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := &stubOverageRepo{}
	return NewService(client, repo, zap.NewNop()), mr, repo
}

func TestRecordCallAndGetUsage(t *testing.T) {
	svc, _, _ := newUsageFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordCall(ctx, 1, "calls"))
	require.NoError(t, svc.RecordCall(ctx, 1, "calls"))
	require.NoError(t, svc.RecordCall(ctx, 1, "bookings"))
	require.NoError(t, svc.RecordCall(ctx, 2, "calls"))

	summary, err := svc.GetUsage(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.BusinessID)
	assert.Equal(t, int64(2), summary.Counters["calls"])
	assert.Equal(t, int64(1), summary.Counters["bookings"])

	now := time.Now().UTC()
	wantStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, wantStart, summary.PeriodStart)
	assert.Equal(t, wantStart.AddDate(0, 1, 0), summary.PeriodEnd)
}

func TestGetUsageEmptyPeriod(t *testing.T) {
	svc, _, _ := newUsageFixture(t)

	summary, err := svc.GetUsage(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, summary.Counters)
}

func TestGetUsageSkipsMalformedCounter(t *testing.T) {
	svc, mr, _ := newUsageFixture(t)

	key := usageKey(7, time.Now().UTC())
	mr.HSet(key, "calls", "3", "broken", "not-a-number")

	summary, err := svc.GetUsage(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.Counters["calls"])
	_, ok := summary.Counters["broken"]
	assert.False(t, ok)
}

func TestRecordCallSetsExpiry(t *testing.T) {
	svc, mr, _ := newUsageFixture(t)

	require.NoError(t, svc.RecordCall(context.Background(), 1, "calls"))

	key := usageKey(1, time.Now().UTC())
	ttl := mr.TTL(key)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRecordOverageCharge(t *testing.T) {
	svc, _, repo := newUsageFixture(t)

	charge, err := svc.RecordOverageCharge(context.Background(), 1, "in_42", 12.50)
	require.NoError(t, err)
	assert.Equal(t, billing.OveragePending, charge.Status)
	assert.Equal(t, "in_42", charge.ProviderInvoiceID)
	require.Len(t, repo.charges, 1)

	_, err = svc.RecordOverageCharge(context.Background(), 1, "", 5)
	require.Error(t, err)
}

func TestRecordOverageChargeDuplicateInvoice(t *testing.T) {
	svc, _, repo := newUsageFixture(t)
	repo.createErr = xerrors.ErrConflict

	_, err := svc.RecordOverageCharge(context.Background(), 1, "in_42", 12.50)
	require.ErrorIs(t, err, xerrors.ErrConflict)
}

func TestGetOverageHistory(t *testing.T) {
	svc, _, repo := newUsageFixture(t)
	repo.charges = []billing.OverageCharge{
		{BusinessID: 1, ProviderInvoiceID: "in_1", Status: billing.OveragePaid},
		{BusinessID: 1, ProviderInvoiceID: "in_2", Status: billing.OverageFailed,
			FailureReason: sql.NullString{String: "card_declined", Valid: true}},
		{BusinessID: 2, ProviderInvoiceID: "in_3", Status: billing.OveragePending},
	}

	charges, err := svc.GetOverageHistory(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, charges, 2)
}

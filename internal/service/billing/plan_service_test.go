// internal/service/billing/plan_service_test.go
package billing

import (
	"context"
	"testing"

	"opsdesk-service/internal/domain/billing"
	xerrors "opsdesk-service/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPlanFixture() (*PlanService, *fakePlanRepo, *fakeProvider) {
	plans := newFakePlanRepo()
	prov := newFakeProvider()
	svc := NewPlanService(plans, prov, zap.NewNop())
	return svc, plans, prov
}

func TestCreatePlanProvisionsProviderObjects(t *testing.T) {
	svc, plans, _ := newPlanFixture()

	plan, err := svc.CreatePlan(context.Background(), &billing.CreatePlanRequest{
		Name:     "Pro",
		Price:    79,
		Interval: billing.IntervalMonthly,
		Features: []string{"unlimited bookings"},
	})
	require.NoError(t, err)

	assert.Equal(t, "prod_Pro", plan.ProviderProductID)
	assert.Equal(t, "price_prod_Pro", plan.ProviderPriceID)
	assert.True(t, plan.Active)

	stored, err := plans.FindByID(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.ProviderPriceID, stored.ProviderPriceID)
}

func TestCreatePlanProviderFailureLeavesNoRecord(t *testing.T) {
	svc, plans, prov := newPlanFixture()
	prov.priceErr = xerrors.ErrProviderUnavailable

	_, err := svc.CreatePlan(context.Background(), &billing.CreatePlanRequest{
		Name:     "Pro",
		Price:    79,
		Interval: billing.IntervalMonthly,
	})
	require.ErrorIs(t, err, xerrors.ErrProviderUnavailable)
	assert.Empty(t, plans.plans, "a half-provisioned plan must not be persisted")
}

func TestListActivePlansDisabled(t *testing.T) {
	svc, _, prov := newPlanFixture()
	prov.enabled = false

	_, err := svc.ListActivePlans(context.Background())
	require.ErrorIs(t, err, xerrors.ErrNotConfigured)
}

func TestUpdatePlanPatchesFields(t *testing.T) {
	svc, plans, _ := newPlanFixture()
	plan, err := svc.CreatePlan(context.Background(), &billing.CreatePlanRequest{
		Name:     "Pro",
		Price:    79,
		Interval: billing.IntervalMonthly,
	})
	require.NoError(t, err)

	name := "Pro Plus"
	order := 3
	updated, err := svc.UpdatePlan(context.Background(), plan.ID, &billing.UpdatePlanRequest{
		Name:      &name,
		SortOrder: &order,
	})
	require.NoError(t, err)
	assert.Equal(t, "Pro Plus", updated.Name)
	assert.Equal(t, 3, updated.SortOrder)

	stored, err := plans.FindByID(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pro Plus", stored.Name)
}

func TestEnsurePlanProvisionedBackfillsIDs(t *testing.T) {
	svc, plans, _ := newPlanFixture()
	plan := &billing.SubscriptionPlan{
		Name:     "Legacy",
		Price:    19,
		Interval: billing.IntervalMonthly,
		Active:   true,
	}
	require.NoError(t, plans.Create(context.Background(), plan))

	require.NoError(t, svc.EnsurePlanProvisioned(context.Background(), plan))
	assert.NotEmpty(t, plan.ProviderProductID)
	assert.NotEmpty(t, plan.ProviderPriceID)

	stored, err := plans.FindByID(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.ProviderPriceID, stored.ProviderPriceID)
}

func TestDeactivatePlanHidesFromCatalog(t *testing.T) {
	svc, _, _ := newPlanFixture()
	plan, err := svc.CreatePlan(context.Background(), &billing.CreatePlanRequest{
		Name:     "Pro",
		Price:    79,
		Interval: billing.IntervalMonthly,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeactivatePlan(context.Background(), plan.ID))

	active, err := svc.ListActivePlans(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

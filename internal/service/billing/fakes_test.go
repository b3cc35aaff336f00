// internal/service/billing/fakes_test.go
package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"opsdesk-service/internal/domain/billing"
	"opsdesk-service/internal/domain/business"
	xerrors "opsdesk-service/internal/pkg/errors"
	"opsdesk-service/internal/provider"
)

// ---- business repo ----

type fakeBusinessRepo struct {
	businesses map[int64]*business.Business

	findErr            error
	setCustomerErr     error
	setSubscriptionErr error
}

func newFakeBusinessRepo(bizs ...*business.Business) *fakeBusinessRepo {
	r := &fakeBusinessRepo{businesses: make(map[int64]*business.Business)}
	for _, b := range bizs {
		r.businesses[b.ID] = b
	}
	return r
}

func (r *fakeBusinessRepo) FindByID(_ context.Context, id int64) (*business.Business, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	b, ok := r.businesses[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *fakeBusinessRepo) FindByProviderSubscriptionID(_ context.Context, subscriptionID string) (*business.Business, error) {
	for _, b := range r.businesses {
		if b.ProviderSubscriptionID.Valid && b.ProviderSubscriptionID.String == subscriptionID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (r *fakeBusinessRepo) SetProviderCustomerID(_ context.Context, businessID int64, customerID string) error {
	if r.setCustomerErr != nil {
		return r.setCustomerErr
	}
	b, ok := r.businesses[businessID]
	if !ok {
		return xerrors.ErrNotFound
	}
	b.ProviderCustomerID = sql.NullString{String: customerID, Valid: true}
	return nil
}

func (r *fakeBusinessRepo) SetSubscription(_ context.Context, businessID int64, subscriptionID string, planID int64, status billing.BillingStatus, periodEnd, trialEnd sql.NullTime) error {
	if r.setSubscriptionErr != nil {
		return r.setSubscriptionErr
	}
	b, ok := r.businesses[businessID]
	if !ok {
		return xerrors.ErrNotFound
	}
	b.ProviderSubscriptionID = sql.NullString{String: subscriptionID, Valid: true}
	b.PlanID = sql.NullInt64{Int64: planID, Valid: true}
	b.BillingStatus = status
	b.CurrentPeriodEnd = periodEnd
	b.TrialEndsAt = trialEnd
	return nil
}

func (r *fakeBusinessRepo) UpdateStatus(_ context.Context, businessID int64, status billing.BillingStatus) error {
	b, ok := r.businesses[businessID]
	if !ok {
		return xerrors.ErrNotFound
	}
	b.BillingStatus = status
	return nil
}

func (r *fakeBusinessRepo) UpdateStatusPeriod(_ context.Context, businessID int64, status billing.BillingStatus, periodEnd sql.NullTime) error {
	b, ok := r.businesses[businessID]
	if !ok {
		return xerrors.ErrNotFound
	}
	b.BillingStatus = status
	if periodEnd.Valid {
		b.CurrentPeriodEnd = periodEnd
	}
	return nil
}

// ApplyEvent mirrors the conditional SQL update: older events lose.
func (r *fakeBusinessRepo) ApplyEvent(_ context.Context, businessID int64, status billing.BillingStatus, periodEnd sql.NullTime, eventAt time.Time) (bool, error) {
	b, ok := r.businesses[businessID]
	if !ok {
		return false, nil
	}
	if b.LastEventAt.Valid && b.LastEventAt.Time.After(eventAt) {
		return false, nil
	}
	b.BillingStatus = status
	if periodEnd.Valid {
		b.CurrentPeriodEnd = periodEnd
	}
	b.LastEventAt = sql.NullTime{Time: eventAt, Valid: true}
	return true, nil
}

// ---- plan repo ----

type fakePlanRepo struct {
	plans  map[int64]*billing.SubscriptionPlan
	nextID int64
}

func newFakePlanRepo(plans ...*billing.SubscriptionPlan) *fakePlanRepo {
	r := &fakePlanRepo{plans: make(map[int64]*billing.SubscriptionPlan), nextID: 100}
	for _, p := range plans {
		r.plans[p.ID] = p
	}
	return r
}

func (r *fakePlanRepo) Create(_ context.Context, plan *billing.SubscriptionPlan) error {
	r.nextID++
	plan.ID = r.nextID
	cp := *plan
	r.plans[plan.ID] = &cp
	return nil
}

func (r *fakePlanRepo) FindByID(_ context.Context, id int64) (*billing.SubscriptionPlan, error) {
	p, ok := r.plans[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakePlanRepo) ListActive(_ context.Context) ([]billing.SubscriptionPlan, error) {
	var out []billing.SubscriptionPlan
	for _, p := range r.plans {
		if p.Active {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakePlanRepo) Update(_ context.Context, id int64, plan *billing.SubscriptionPlan) error {
	if _, ok := r.plans[id]; !ok {
		return xerrors.ErrNotFound
	}
	cp := *plan
	cp.ID = id
	r.plans[id] = &cp
	return nil
}

func (r *fakePlanRepo) UpdateProviderIDs(_ context.Context, id int64, productID, priceID string) error {
	p, ok := r.plans[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	p.ProviderProductID = productID
	p.ProviderPriceID = priceID
	return nil
}

func (r *fakePlanRepo) SetActive(_ context.Context, id int64, active bool) error {
	p, ok := r.plans[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	p.Active = active
	return nil
}

// ---- overage repo ----

type fakeOverageRepo struct {
	charges map[string]*billing.OverageCharge
}

func newFakeOverageRepo(charges ...*billing.OverageCharge) *fakeOverageRepo {
	r := &fakeOverageRepo{charges: make(map[string]*billing.OverageCharge)}
	for _, c := range charges {
		r.charges[c.ProviderInvoiceID] = c
	}
	return r
}

func (r *fakeOverageRepo) MarkPaid(_ context.Context, providerInvoiceID string) (bool, error) {
	c, ok := r.charges[providerInvoiceID]
	if !ok || c.Status != billing.OveragePending {
		return false, nil
	}
	c.Status = billing.OveragePaid
	return true, nil
}

func (r *fakeOverageRepo) MarkFailed(_ context.Context, providerInvoiceID, reason string) (bool, error) {
	c, ok := r.charges[providerInvoiceID]
	if !ok || c.Status != billing.OveragePending {
		return false, nil
	}
	c.Status = billing.OverageFailed
	c.FailureReason = sql.NullString{String: reason, Valid: true}
	return true, nil
}

// ---- provider client ----

type fakeProvider struct {
	enabled bool

	customers      map[string]*provider.Customer
	customerCalls  int
	createSubCalls int

	subscription *provider.Subscription
	subErr       error

	productErr error
	priceErr   error

	verifyEvent *provider.Event
	verifyErr   error

	cancelCalls []bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		enabled:   true,
		customers: make(map[string]*provider.Customer),
	}
}

func (p *fakeProvider) Enabled() bool { return p.enabled }

func (p *fakeProvider) EnsureCustomer(_ context.Context, existingID, email, name string, businessID int64) (*provider.Customer, error) {
	if existingID != "" {
		if c, ok := p.customers[existingID]; ok {
			return c, nil
		}
	}
	p.customerCalls++
	c := &provider.Customer{
		ID:    fmt.Sprintf("cus_%d", businessID),
		Email: email,
		Name:  name,
	}
	p.customers[c.ID] = c
	return c, nil
}

func (p *fakeProvider) EnsureProduct(_ context.Context, existingID, name, _ string) (string, error) {
	if p.productErr != nil {
		return "", p.productErr
	}
	if existingID != "" {
		return existingID, nil
	}
	return "prod_" + name, nil
}

func (p *fakeProvider) EnsurePrice(_ context.Context, existingID, productID string, _ float64, _ billing.PlanInterval) (string, error) {
	if p.priceErr != nil {
		return "", p.priceErr
	}
	if existingID != "" {
		return existingID, nil
	}
	return "price_" + productID, nil
}

func (p *fakeProvider) CreateSubscription(_ context.Context, customerID, priceID string, businessID int64) (*provider.Subscription, error) {
	p.createSubCalls++
	if p.subErr != nil {
		return nil, p.subErr
	}
	if p.subscription != nil {
		return p.subscription, nil
	}
	return &provider.Subscription{
		ID:               fmt.Sprintf("sub_%d", businessID),
		CustomerID:       customerID,
		Status:           "incomplete",
		ClientSecret:     "pi_secret",
		CurrentPeriodEnd: time.Now().Add(30 * 24 * time.Hour).UTC(),
	}, nil
}

func (p *fakeProvider) GetSubscription(_ context.Context, subscriptionID string) (*provider.Subscription, error) {
	if p.subErr != nil {
		return nil, p.subErr
	}
	if p.subscription != nil {
		return p.subscription, nil
	}
	return nil, xerrors.ErrNotFound
}

func (p *fakeProvider) SetCancelAtPeriodEnd(_ context.Context, subscriptionID string, cancel bool) (*provider.Subscription, error) {
	p.cancelCalls = append(p.cancelCalls, cancel)
	if p.subErr != nil {
		return nil, p.subErr
	}
	if p.subscription != nil {
		sub := *p.subscription
		sub.CancelAtPeriodEnd = cancel
		return &sub, nil
	}
	return &provider.Subscription{
		ID:                subscriptionID,
		Status:            "active",
		CancelAtPeriodEnd: cancel,
		CurrentPeriodEnd:  time.Now().Add(20 * 24 * time.Hour).UTC(),
	}, nil
}

func (p *fakeProvider) VerifyWebhook(_ []byte, _ string) (*provider.Event, error) {
	if p.verifyErr != nil {
		return nil, p.verifyErr
	}
	return p.verifyEvent, nil
}

// ---- notifier ----

type fakeNotifier struct {
	published []billing.BillingStateResponse
}

func (n *fakeNotifier) PublishBillingState(_ int64, state billing.BillingStateResponse) {
	n.published = append(n.published, state)
}

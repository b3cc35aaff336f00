// internal/repository/postgres/business_repo.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"opsdesk-service/internal/domain/billing"
	"opsdesk-service/internal/domain/business"
	xerrors "opsdesk-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BusinessRepository struct {
	db *pgxpool.Pool
}

func NewBusinessRepository(db *pgxpool.Pool) *BusinessRepository {
	return &BusinessRepository{db: db}
}

const businessColumns = `
	id, name, owner_email,
	provider_customer_id, provider_subscription_id, plan_id,
	billing_status, current_period_end, trial_ends_at, last_event_at,
	created_at, updated_at`

func scanBusiness(row pgx.Row) (*business.Business, error) {
	var b business.Business
	err := row.Scan(
		&b.ID, &b.Name, &b.OwnerEmail,
		&b.ProviderCustomerID, &b.ProviderSubscriptionID, &b.PlanID,
		&b.BillingStatus, &b.CurrentPeriodEnd, &b.TrialEndsAt, &b.LastEventAt,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan business: %w", err)
	}
	return &b, nil
}

func (r *BusinessRepository) FindByID(ctx context.Context, id int64) (*business.Business, error) {
	query := fmt.Sprintf(`SELECT %s FROM businesses WHERE id = $1`, businessColumns)
	return scanBusiness(r.db.QueryRow(ctx, query, id))
}

func (r *BusinessRepository) FindByProviderSubscriptionID(ctx context.Context, subscriptionID string) (*business.Business, error) {
	query := fmt.Sprintf(`SELECT %s FROM businesses WHERE provider_subscription_id = $1`, businessColumns)
	return scanBusiness(r.db.QueryRow(ctx, query, subscriptionID))
}

// SetProviderCustomerID caches the provider customer id. This write happens
// immediately after customer creation so a failed checkout retried later
// reuses the same provider customer.
func (r *BusinessRepository) SetProviderCustomerID(ctx context.Context, businessID int64, customerID string) error {
	query := `UPDATE businesses SET provider_customer_id = $1, updated_at = now() WHERE id = $2`

	result, err := r.db.Exec(ctx, query, customerID, businessID)
	if err != nil {
		return fmt.Errorf("failed to set provider customer id: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// SetSubscription persists the outcome of a successful provider
// subscription create.
func (r *BusinessRepository) SetSubscription(ctx context.Context, businessID int64, subscriptionID string, planID int64, status billing.BillingStatus, periodEnd, trialEnd sql.NullTime) error {
	query := `
		UPDATE businesses
		SET provider_subscription_id = $1, plan_id = $2, billing_status = $3,
		    current_period_end = $4, trial_ends_at = $5, updated_at = now()
		WHERE id = $6
	`

	result, err := r.db.Exec(ctx, query, subscriptionID, planID, status, periodEnd, trialEnd, businessID)
	if err != nil {
		return fmt.Errorf("failed to set subscription: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// UpdateStatus writes an optimistic local status (user-initiated cancel).
// It deliberately leaves last_event_at untouched so the next webhook always
// overrides the optimistic value.
func (r *BusinessRepository) UpdateStatus(ctx context.Context, businessID int64, status billing.BillingStatus) error {
	query := `UPDATE businesses SET billing_status = $1, updated_at = now() WHERE id = $2`

	result, err := r.db.Exec(ctx, query, status, businessID)
	if err != nil {
		return fmt.Errorf("failed to update billing status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// UpdateStatusPeriod writes status plus the provider-reported period end
// (resume path). The period end is never locally invented.
func (r *BusinessRepository) UpdateStatusPeriod(ctx context.Context, businessID int64, status billing.BillingStatus, periodEnd sql.NullTime) error {
	query := `
		UPDATE businesses
		SET billing_status = $1, current_period_end = $2, updated_at = now()
		WHERE id = $3
	`

	result, err := r.db.Exec(ctx, query, status, periodEnd, businessID)
	if err != nil {
		return fmt.Errorf("failed to update billing status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// ApplyEvent is the reconciliation write: a compare-and-set guarded by the
// per-business applied-event marker. Returns false when the incoming event
// is older than the last applied one (stale delivery, discarded).
func (r *BusinessRepository) ApplyEvent(ctx context.Context, businessID int64, status billing.BillingStatus, periodEnd sql.NullTime, eventAt time.Time) (bool, error) {
	query := `
		UPDATE businesses
		SET billing_status = $1,
		    current_period_end = COALESCE($2, current_period_end),
		    last_event_at = $3,
		    updated_at = now()
		WHERE id = $4
		  AND (last_event_at IS NULL OR last_event_at <= $3)
	`

	result, err := r.db.Exec(ctx, query, status, periodEnd, eventAt, businessID)
	if err != nil {
		return false, fmt.Errorf("failed to apply billing event: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

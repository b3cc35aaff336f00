// internal/repository/postgres/subscription_plan_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"opsdesk-service/internal/domain/billing"
	xerrors "opsdesk-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SubscriptionPlanRepository struct {
	db *pgxpool.Pool
}

func NewSubscriptionPlanRepository(db *pgxpool.Pool) *SubscriptionPlanRepository {
	return &SubscriptionPlanRepository{db: db}
}

// Create creates a new subscription plan. Provider ids are expected to be
// resolved by the caller before the row is persisted.
func (r *SubscriptionPlanRepository) Create(ctx context.Context, plan *billing.SubscriptionPlan) error {
	query := `
		INSERT INTO subscription_plans (
			name, description, price, interval, features,
			provider_product_id, provider_price_id, active, sort_order
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	featuresJSON, err := marshalFeatures(plan.Features)
	if err != nil {
		return err
	}

	err = r.db.QueryRow(
		ctx, query,
		plan.Name, plan.Description, plan.Price, plan.Interval, featuresJSON,
		plan.ProviderProductID, plan.ProviderPriceID, plan.Active, plan.SortOrder,
	).Scan(&plan.ID, &plan.CreatedAt, &plan.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create subscription plan: %w", err)
	}
	return nil
}

// FindByID retrieves a subscription plan by ID
func (r *SubscriptionPlanRepository) FindByID(ctx context.Context, id int64) (*billing.SubscriptionPlan, error) {
	query := `
		SELECT id, name, description, price, interval, features,
		       provider_product_id, provider_price_id, active, sort_order,
		       created_at, updated_at
		FROM subscription_plans
		WHERE id = $1
	`

	return r.scanPlan(r.db.QueryRow(ctx, query, id))
}

// ListActive retrieves active plans ordered by sort_order.
func (r *SubscriptionPlanRepository) ListActive(ctx context.Context) ([]billing.SubscriptionPlan, error) {
	query := `
		SELECT id, name, description, price, interval, features,
		       provider_product_id, provider_price_id, active, sort_order,
		       created_at, updated_at
		FROM subscription_plans
		WHERE active = TRUE
		ORDER BY sort_order ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	plans := []billing.SubscriptionPlan{}
	for rows.Next() {
		plan, err := r.scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *plan)
	}
	return plans, nil
}

// Update patches the mutable plan fields. Price, interval and provider ids
// are immutable once the plan exists.
func (r *SubscriptionPlanRepository) Update(ctx context.Context, id int64, plan *billing.SubscriptionPlan) error {
	query := `
		UPDATE subscription_plans
		SET name = $1, description = $2, features = $3,
		    active = $4, sort_order = $5, updated_at = now()
		WHERE id = $6
	`

	featuresJSON, err := marshalFeatures(plan.Features)
	if err != nil {
		return err
	}

	result, err := r.db.Exec(ctx, query,
		plan.Name, plan.Description, featuresJSON,
		plan.Active, plan.SortOrder, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription plan: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// UpdateProviderIDs backfills provider object ids resolved after creation.
func (r *SubscriptionPlanRepository) UpdateProviderIDs(ctx context.Context, id int64, productID, priceID string) error {
	query := `
		UPDATE subscription_plans
		SET provider_product_id = $1, provider_price_id = $2, updated_at = now()
		WHERE id = $3
	`

	result, err := r.db.Exec(ctx, query, productID, priceID, id)
	if err != nil {
		return fmt.Errorf("failed to update plan provider ids: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// SetActive activates or deactivates a plan. Plans are never deleted.
func (r *SubscriptionPlanRepository) SetActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE subscription_plans SET active = $1, updated_at = now() WHERE id = $2`

	result, err := r.db.Exec(ctx, query, active, id)
	if err != nil {
		return fmt.Errorf("failed to set plan active: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *SubscriptionPlanRepository) scanPlan(row pgx.Row) (*billing.SubscriptionPlan, error) {
	var plan billing.SubscriptionPlan
	var featuresJSON []byte

	err := row.Scan(
		&plan.ID, &plan.Name, &plan.Description, &plan.Price, &plan.Interval, &featuresJSON,
		&plan.ProviderProductID, &plan.ProviderPriceID, &plan.Active, &plan.SortOrder,
		&plan.CreatedAt, &plan.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscription plan: %w", err)
	}

	if len(featuresJSON) > 0 {
		if err := json.Unmarshal(featuresJSON, &plan.Features); err != nil {
			return nil, fmt.Errorf("failed to unmarshal features: %w", err)
		}
	}
	return &plan, nil
}

func marshalFeatures(features []string) ([]byte, error) {
	if features == nil {
		return nil, nil
	}
	data, err := json.Marshal(features)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal features: %w", err)
	}
	return data, nil
}

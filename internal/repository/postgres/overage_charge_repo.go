// internal/repository/postgres/overage_charge_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"opsdesk-service/internal/domain/billing"
	xerrors "opsdesk-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OverageChargeRepository struct {
	db *pgxpool.Pool
}

func NewOverageChargeRepository(db *pgxpool.Pool) *OverageChargeRepository {
	return &OverageChargeRepository{db: db}
}

// Create inserts a pending charge. Issuance belongs to the usage-billing
// path; this repository exists here so reconciliation and history reads
// share one source.
func (r *OverageChargeRepository) Create(ctx context.Context, charge *billing.OverageCharge) error {
	query := `
		INSERT INTO overage_charges (business_id, provider_invoice_id, amount, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	if charge.Status == "" {
		charge.Status = billing.OveragePending
	}

	err := r.db.QueryRow(ctx, query,
		charge.BusinessID, charge.ProviderInvoiceID, charge.Amount, charge.Status,
	).Scan(&charge.ID, &charge.CreatedAt, &charge.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// provider_invoice_id is unique; a replayed issuance is a conflict,
			// not a server fault.
			return fmt.Errorf("%w: overage charge for invoice %s", xerrors.ErrConflict, charge.ProviderInvoiceID)
		}
		return fmt.Errorf("failed to create overage charge: %w", err)
	}
	return nil
}

// ListByBusiness retrieves a business's overage charges newest-first.
func (r *OverageChargeRepository) ListByBusiness(ctx context.Context, businessID int64) ([]billing.OverageCharge, error) {
	query := `
		SELECT id, business_id, provider_invoice_id, amount, status, failure_reason, created_at, updated_at
		FROM overage_charges
		WHERE business_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list overage charges: %w", err)
	}
	defer rows.Close()

	charges := []billing.OverageCharge{}
	for rows.Next() {
		var charge billing.OverageCharge
		err := rows.Scan(
			&charge.ID, &charge.BusinessID, &charge.ProviderInvoiceID, &charge.Amount,
			&charge.Status, &charge.FailureReason, &charge.CreatedAt, &charge.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan overage charge: %w", err)
		}
		charges = append(charges, charge)
	}
	return charges, nil
}

// MarkPaid transitions pending -> paid. The WHERE clause makes terminal
// rows untouchable, so webhook replays are no-ops. Returns false when no
// transition happened (row missing or already terminal).
func (r *OverageChargeRepository) MarkPaid(ctx context.Context, providerInvoiceID string) (bool, error) {
	query := `
		UPDATE overage_charges
		SET status = $1, updated_at = now()
		WHERE provider_invoice_id = $2 AND status = $3
	`

	result, err := r.db.Exec(ctx, query, billing.OveragePaid, providerInvoiceID, billing.OveragePending)
	if err != nil {
		return false, fmt.Errorf("failed to mark overage charge paid: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// MarkFailed transitions pending -> failed with a failure reason.
func (r *OverageChargeRepository) MarkFailed(ctx context.Context, providerInvoiceID, reason string) (bool, error) {
	query := `
		UPDATE overage_charges
		SET status = $1, failure_reason = $2, updated_at = now()
		WHERE provider_invoice_id = $3 AND status = $4
	`

	result, err := r.db.Exec(ctx, query, billing.OverageFailed, reason, providerInvoiceID, billing.OveragePending)
	if err != nil {
		return false, fmt.Errorf("failed to mark overage charge failed: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

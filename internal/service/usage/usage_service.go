// internal/service/usage/usage_service.go
package usage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"opsdesk-service/internal/domain/billing"
	xerrors "opsdesk-service/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// OverageRepo is the slice of the overage ledger this service needs.
// Settlement (paid/failed) belongs to webhook reconciliation, not here.
type OverageRepo interface {
	Create(ctx context.Context, charge *billing.OverageCharge) error
	ListByBusiness(ctx context.Context, businessID int64) ([]billing.OverageCharge, error)
}

// Service reads current-period usage counters and overage history. It has
// no dependency on the billing provider, so usage metering keeps working
// when billing is disabled.
type Service struct {
	redis    *redis.Client
	overages OverageRepo
	logger   *zap.Logger
}

func NewService(redisClient *redis.Client, overages OverageRepo, logger *zap.Logger) *Service {
	return &Service{
		redis:    redisClient,
		overages: overages,
		logger:   logger,
	}
}

// Summary is the current billing period's usage for a business.
type Summary struct {
	BusinessID  int64            `json:"business_id"`
	PeriodStart time.Time        `json:"period_start"`
	PeriodEnd   time.Time        `json:"period_end"`
	Counters    map[string]int64 `json:"counters"`
}

// GetUsage returns the business's counters for the current calendar month.
// A business with no recorded activity gets an empty counter set, not an
// error.
func (s *Service) GetUsage(ctx context.Context, businessID int64) (*Summary, error) {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	raw, err := s.redis.HGetAll(ctx, usageKey(businessID, now)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read usage counters: %w", err)
	}

	counters := make(map[string]int64, len(raw))
	for kind, val := range raw {
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			s.logger.Warn("skipping malformed usage counter",
				zap.Int64("business_id", businessID),
				zap.String("kind", kind),
				zap.String("value", val),
			)
			continue
		}
		counters[kind] = n
	}

	return &Summary{
		BusinessID:  businessID,
		PeriodStart: start,
		PeriodEnd:   start.AddDate(0, 1, 0),
		Counters:    counters,
	}, nil
}

// RecordCall increments one usage counter for the current period. This is
// the hook the metering collaborators (receptionist, booking engine) call.
func (s *Service) RecordCall(ctx context.Context, businessID int64, kind string) error {
	key := usageKey(businessID, time.Now().UTC())

	if err := s.redis.HIncrBy(ctx, key, kind, 1).Err(); err != nil {
		return fmt.Errorf("failed to increment usage counter: %w", err)
	}
	// Counters outlive the period by a month so late overage issuance
	// can still read them.
	if err := s.redis.Expire(ctx, key, 62*24*time.Hour).Err(); err != nil {
		s.logger.Warn("failed to set usage key expiry", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// RecordOverageCharge inserts a pending ledger row for an overage invoice
// issued at the provider by the external billing job. The row is settled
// later by webhook reconciliation; this path never marks it paid or failed.
func (s *Service) RecordOverageCharge(ctx context.Context, businessID int64, providerInvoiceID string, amount float64) (*billing.OverageCharge, error) {
	if providerInvoiceID == "" {
		return nil, fmt.Errorf("%w: provider invoice id is required", xerrors.ErrInvalidInput)
	}

	charge := &billing.OverageCharge{
		BusinessID:        businessID,
		ProviderInvoiceID: providerInvoiceID,
		Amount:            amount,
		Status:            billing.OveragePending,
	}
	if err := s.overages.Create(ctx, charge); err != nil {
		return nil, err
	}

	s.logger.Info("overage charge recorded",
		zap.Int64("business_id", businessID),
		zap.String("provider_invoice_id", providerInvoiceID),
		zap.Float64("amount", amount),
	)
	return charge, nil
}

// GetOverageHistory lists a business's overage charges newest-first.
func (s *Service) GetOverageHistory(ctx context.Context, businessID int64) ([]billing.OverageCharge, error) {
	return s.overages.ListByBusiness(ctx, businessID)
}

func usageKey(businessID int64, t time.Time) string {
	return fmt.Sprintf("usage:%d:%s", businessID, t.Format("2006-01"))
}

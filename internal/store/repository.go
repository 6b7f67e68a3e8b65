/**
 * @description
 * This file defines the `Repository` interface consumed by the billing engine
 * and the parameter/result types for its atomic operations. Keeping the
 * interface here lets the application layer run against stubs in tests while
 * the PostgreSQL implementation lives alongside it.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/netwatch/billing-service/internal/domain"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrTariffNotFound    = errors.New("tariff not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// ApplyChargeParams describes one atomic debit against an account's ledger.
type ApplyChargeParams struct {
	AccountID   uuid.UUID
	PassType    domain.PassType
	PeriodKey   string
	AmountMinor int64 // positive; stored negated on the charge record
}

// ApplyChargeResult reports the outcome of an atomic debit. AlreadyApplied is
// the clean no-op signal for re-triggered passes, not an error.
type ApplyChargeResult struct {
	NewBalanceMinor int64
	AlreadyApplied  bool
}

// Repository defines the ledger-store operations needed by the engine.
type Repository interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetTariff(ctx context.Context, id uuid.UUID) (*domain.Tariff, error)
	ListEligibleAccounts(ctx context.Context, pass domain.PassType, periodKey string) ([]domain.Account, error)

	// ApplyCharge debits the account and writes the applied charge record in a
	// single transaction. The unique index on (account_id, period_key,
	// pass_type) makes concurrent or duplicate triggers collapse into
	// AlreadyApplied instead of a second debit.
	ApplyCharge(ctx context.Context, params ApplyChargeParams) (*ApplyChargeResult, error)

	// RecordFailedCharge appends a failed-outcome charge record for audit. It
	// never participates in the idempotency check.
	RecordFailedCharge(ctx context.Context, accountID uuid.UUID, pass domain.PassType, periodKey string, reason string) error

	SetAccountStatus(ctx context.Context, id uuid.UUID, status domain.AccountStatus) error

	// CreditAccount applies a payment: row-locked balance increment plus an
	// append-only payment history row in one transaction.
	CreditAccount(ctx context.Context, accountID uuid.UUID, amountMinor int64, source string) (int64, error)

	// AdjustBalance applies a signed manual correction through the same
	// row-locked update path the engine uses.
	AdjustBalance(ctx context.Context, accountID uuid.UUID, deltaMinor int64, reason string) (int64, error)
}

/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains the SQL for account and tariff reads, the atomic
 * charge application that anchors the engine's idempotency guarantee, and the
 * row-locked credit/adjustment paths shared with the manual endpoints.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/netwatch/billing-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `
	id, client_id, tariff_id, balance_minor, status, block_threshold_minor,
	device_id, mac_address, last_monthly_period, last_hourly_period,
	created_at, updated_at
`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID, &a.ClientID, &a.TariffID, &a.BalanceMinor, &a.Status,
		&a.BlockThresholdMinor, &a.DeviceID, &a.MACAddress,
		&a.LastMonthlyPeriod, &a.LastHourlyPeriod, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccount retrieves a single account by its ID.
func (r *PostgresRepository) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	account, err := scanAccount(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// GetTariff retrieves a tariff by its ID.
func (r *PostgresRepository) GetTariff(ctx context.Context, id uuid.UUID) (*domain.Tariff, error) {
	var t domain.Tariff
	query := `
		SELECT id, name, billing_mode, price_minor, hourly_price_minor,
		       notification_threshold_minor, created_at, updated_at
		FROM tariffs
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.BillingMode, &t.PriceMinor, &t.HourlyPriceMinor,
		&t.NotificationThresholdMinor, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTariffNotFound
		}
		return nil, err
	}
	return &t, nil
}

// ListEligibleAccounts selects the account set for one pass. Monthly picks
// active prepaid-periodic accounts not yet charged for the period, hourly
// picks active metered accounts, notifications picks every active account.
func (r *PostgresRepository) ListEligibleAccounts(ctx context.Context, pass domain.PassType, periodKey string) ([]domain.Account, error) {
	var query string
	var args []interface{}

	switch pass {
	case domain.PassMonthly:
		query = `
			SELECT ` + qualifiedAccountColumns + `
			FROM accounts a
			JOIN tariffs t ON t.id = a.tariff_id
			WHERE a.status = 'active'
			  AND t.billing_mode = 'prepaid_periodic'
			  AND a.last_monthly_period IS DISTINCT FROM $1
			ORDER BY a.created_at
		`
		args = []interface{}{periodKey}
	case domain.PassHourly:
		query = `
			SELECT ` + qualifiedAccountColumns + `
			FROM accounts a
			JOIN tariffs t ON t.id = a.tariff_id
			WHERE a.status = 'active'
			  AND t.billing_mode = 'metered'
			ORDER BY a.created_at
		`
	case domain.PassNotifications:
		query = `
			SELECT ` + qualifiedAccountColumns + `
			FROM accounts a
			WHERE a.status = 'active'
			ORDER BY a.created_at
		`
	default:
		return nil, fmt.Errorf("unknown pass type %q", pass)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

const qualifiedAccountColumns = `
	a.id, a.client_id, a.tariff_id, a.balance_minor, a.status, a.block_threshold_minor,
	a.device_id, a.mac_address, a.last_monthly_period, a.last_hourly_period,
	a.created_at, a.updated_at
`

// ApplyCharge performs the all-or-nothing per-account debit. The charge record
// insert hits the partial unique index on applied records first: a conflict
// means the period was already billed and nothing else runs. Otherwise the
// balance row is locked, checked for sufficient funds, debited, and the
// last-charged marker advanced, all in one transaction.
func (r *PostgresRepository) ApplyCharge(ctx context.Context, params ApplyChargeParams) (*ApplyChargeResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	insertQuery := `
		INSERT INTO charge_records (id, account_id, pass_type, period_key, amount_minor, outcome)
		VALUES ($1, $2, $3, $4, $5, 'applied')
		ON CONFLICT (account_id, period_key, pass_type) WHERE outcome = 'applied'
		DO NOTHING
	`
	tag, err := tx.Exec(ctx, insertQuery,
		uuid.New(), params.AccountID, params.PassType, params.PeriodKey, -params.AmountMinor)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		// Already billed for this period; a legitimate no-op.
		return &ApplyChargeResult{AlreadyApplied: true}, nil
	}

	var balance int64
	// Use FOR UPDATE to lock the row, preventing race conditions with manual
	// payments and concurrent passes.
	err = tx.QueryRow(ctx, "SELECT balance_minor FROM accounts WHERE id = $1 FOR UPDATE", params.AccountID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	if balance < params.AmountMinor {
		return nil, ErrInsufficientFunds
	}

	markerColumn := "last_hourly_period"
	if params.PassType == domain.PassMonthly {
		markerColumn = "last_monthly_period"
	}
	updateQuery := fmt.Sprintf(`
		UPDATE accounts
		SET balance_minor = balance_minor - $1, %s = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING balance_minor
	`, markerColumn)

	var newBalance int64
	if err := tx.QueryRow(ctx, updateQuery, params.AmountMinor, params.PeriodKey, params.AccountID).Scan(&newBalance); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &ApplyChargeResult{NewBalanceMinor: newBalance}, nil
}

// RecordFailedCharge appends a failed-outcome charge record. Failed records
// sit outside the partial unique index, so the next scheduled pass retries
// the account normally.
func (r *PostgresRepository) RecordFailedCharge(ctx context.Context, accountID uuid.UUID, pass domain.PassType, periodKey string, reason string) error {
	query := `
		INSERT INTO charge_records (id, account_id, pass_type, period_key, amount_minor, outcome, reason)
		VALUES ($1, $2, $3, $4, 0, 'failed', $5)
	`
	_, err := r.db.Exec(ctx, query, uuid.New(), accountID, pass, periodKey, reason)
	return err
}

// SetAccountStatus updates the derived status field. The engine and the
// manual override endpoints are the only callers.
func (r *PostgresRepository) SetAccountStatus(ctx context.Context, id uuid.UUID, status domain.AccountStatus) error {
	query := `UPDATE accounts SET status = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.Exec(ctx, query, status, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// CreditAccount performs an atomic credit and records the payment history row.
func (r *PostgresRepository) CreditAccount(ctx context.Context, accountID uuid.UUID, amountMinor int64, source string) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var newBalance int64
	query := `
		UPDATE accounts
		SET balance_minor = balance_minor + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING balance_minor
	`
	if err := tx.QueryRow(ctx, query, amountMinor, accountID).Scan(&newBalance); err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}

	paymentQuery := `
		INSERT INTO payments (id, account_id, amount_minor, source)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.Exec(ctx, paymentQuery, uuid.New(), accountID, amountMinor, source); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// AdjustBalance applies a signed back-office correction and records it in the
// payment history for the audit trail.
func (r *PostgresRepository) AdjustBalance(ctx context.Context, accountID uuid.UUID, deltaMinor int64, reason string) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var newBalance int64
	query := `
		UPDATE accounts
		SET balance_minor = balance_minor + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING balance_minor
	`
	if err := tx.QueryRow(ctx, query, deltaMinor, accountID).Scan(&newBalance); err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}

	auditQuery := `
		INSERT INTO payments (id, account_id, amount_minor, source)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.Exec(ctx, auditQuery, uuid.New(), accountID, deltaMinor, "adjustment: "+reason); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return newBalance, nil
}

/**
 * @description
 * This file defines the core domain models for the billing-service.
 * These structs represent the subscriber accounts and tariffs the billing
 * engine operates on.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (minor units),
 *   which avoids floating-point inaccuracies with financial data.
 * - Statuses and billing modes are closed string enums so that only known
 *   values circulate through the engine.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccountStatus is the lifecycle state of a subscriber account.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountBlocked   AccountStatus = "blocked"
	AccountSuspended AccountStatus = "suspended"
)

// BillingMode determines how a tariff charges an account.
type BillingMode string

const (
	BillingPrepaidPeriodic BillingMode = "prepaid_periodic"
	BillingMetered         BillingMode = "metered"
)

// Account represents one subscriber account. The billing engine is the sole
// writer of Balance, Status and the last-charged period markers; the markers
// are the idempotency anchor for scheduled passes.
type Account struct {
	ID                  uuid.UUID     `json:"id"`
	ClientID            uuid.UUID     `json:"client_id"`
	TariffID            uuid.UUID     `json:"tariff_id"`
	BalanceMinor        int64         `json:"balance_minor"`
	Status              AccountStatus `json:"status"`
	BlockThresholdMinor int64         `json:"block_threshold_minor"`
	DeviceID            string        `json:"device_id"`
	MACAddress          string        `json:"mac_address"`
	LastMonthlyPeriod   *string       `json:"last_monthly_period,omitempty"`
	LastHourlyPeriod    *string       `json:"last_hourly_period,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// Tariff holds the pricing terms applied to an account. A tariff is read once
// per pass; a tariff change takes effect on the next pass only.
type Tariff struct {
	ID                         uuid.UUID   `json:"id"`
	Name                       string      `json:"name"`
	BillingMode                BillingMode `json:"billing_mode"`
	PriceMinor                 int64       `json:"price_minor"`        // per period, prepaid_periodic only
	HourlyPriceMinor           int64       `json:"hourly_price_minor"` // per hour, metered only
	NotificationThresholdMinor int64       `json:"notification_threshold_minor"`
	CreatedAt                  time.Time   `json:"created_at"`
	UpdatedAt                  time.Time   `json:"updated_at"`
}

// Payment is one append-only credit entry in the account's history.
type Payment struct {
	ID          uuid.UUID `json:"id"`
	AccountID   uuid.UUID `json:"account_id"`
	AmountMinor int64     `json:"amount_minor"`
	Source      string    `json:"source"` // e.g. 'cash_desk', 'gateway', 'manual'
	CreatedAt   time.Time `json:"created_at"`
}

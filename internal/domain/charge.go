/**
 * @description
 * Ledger-side models for the billing engine: charge records, pass types and
 * the idempotency keys that guard them.
 */

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PassType identifies one billing cadence.
type PassType string

const (
	PassMonthly       PassType = "monthly"
	PassHourly        PassType = "hourly"
	PassNotifications PassType = "notifications"
)

// ParsePassType validates a pass name coming from the API layer.
func ParsePassType(s string) (PassType, error) {
	switch PassType(s) {
	case PassMonthly, PassHourly, PassNotifications:
		return PassType(s), nil
	}
	return "", fmt.Errorf("unknown pass type %q", s)
}

// ChargeOutcomeKind is the recorded result of one charge attempt.
type ChargeOutcomeKind string

const (
	ChargeApplied ChargeOutcomeKind = "applied"
	ChargeSkipped ChargeOutcomeKind = "skipped"
	ChargeFailed  ChargeOutcomeKind = "failed"
)

// ChargeRecord is one append-only ledger entry. The composite key
// (account_id, period_key, pass_type) is unique for applied records; the
// storage layer enforces it so re-triggered passes cannot debit twice.
type ChargeRecord struct {
	ID          uuid.UUID         `json:"id"`
	AccountID   uuid.UUID         `json:"account_id"`
	PassType    PassType          `json:"pass_type"`
	PeriodKey   string            `json:"period_key"`
	AmountMinor int64             `json:"amount_minor"` // negative for a debit
	Outcome     ChargeOutcomeKind `json:"outcome"`
	Reason      string            `json:"reason,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// MonthlyPeriodKey returns the calendar-month idempotency key, e.g. "2024-01".
// Keys are always derived in UTC so DST shifts cannot double- or skip-charge.
func MonthlyPeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// HourlyPeriodKey returns the hour-bucket idempotency key as an RFC3339
// timestamp truncated to the hour, e.g. "2024-01-15T14:00:00Z".
func HourlyPeriodKey(t time.Time) string {
	return t.UTC().Truncate(time.Hour).Format(time.RFC3339)
}

// PeriodKeyFor maps a pass type to its idempotency key at the given instant.
// The notifications pass carries no ledger mutation, so its key is only used
// for reporting.
func PeriodKeyFor(pass PassType, asOf time.Time) string {
	if pass == PassMonthly {
		return MonthlyPeriodKey(asOf)
	}
	return HourlyPeriodKey(asOf)
}

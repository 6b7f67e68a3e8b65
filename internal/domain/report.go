/**
 * @description
 * Report models returned from one pass execution. Reports are ephemeral:
 * they are returned to the caller and logged, never persisted.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccountError records one per-account failure inside a pass. A failure never
// aborts the batch; it only lands here.
type AccountError struct {
	AccountID uuid.UUID `json:"account_id"`
	Error     string    `json:"error"`
}

// NotificationRecord describes one notification sent during a pass.
type NotificationRecord struct {
	AccountID uuid.UUID        `json:"account_id"`
	Type      NotificationType `json:"type"`
}

// BatchReport summarises one pass execution. For charge passes, Processed
// counts accounts actually debited and TotalAmountMinor sums their charges.
// For the notifications pass, Sent and Notifications carry the result instead.
type BatchReport struct {
	PassType         PassType             `json:"pass_type"`
	PeriodKey        string               `json:"period_key"`
	StartedAt        time.Time            `json:"started_at"`
	FinishedAt       time.Time            `json:"finished_at"`
	Processed        int                  `json:"processed"`
	Skipped          int                  `json:"skipped"`
	TotalAmountMinor int64                `json:"total_amount_minor"`
	Errors           []AccountError       `json:"errors"`
	Sent             int                  `json:"sent,omitempty"`
	Notifications    []NotificationRecord `json:"notifications,omitempty"`
}

// SessionCost is the result of the ad-hoc session costing utility. It uses
// the same proration formula as hourly billing but is not part of any pass.
type SessionCost struct {
	DurationMinutes int64 `json:"duration_minutes"`
	CostMinor       int64 `json:"cost_minor"`
	HourlyRateMinor int64 `json:"hourly_rate_minor"`
}

/**
 * @description
 * Pure charge computation for the billing engine. No side effects live here:
 * given a tariff and a billing window, these functions return the amount owed
 * in minor currency units.
 *
 * @notes
 * - Hourly proration rounds half-up to the minor currency unit:
 *   amount = (hourlyPrice * minutes + 30) / 60 on non-negative integers.
 *   A 30-minute session at a 5.00/h rate costs exactly 2.50.
 */

package app

import (
	"errors"
	"time"

	"github.com/netwatch/billing-service/internal/domain"
)

var (
	// ErrTariffMisconfigured marks a tariff missing the price its billing mode
	// requires. Fatal for the affected account only.
	ErrTariffMisconfigured = errors.New("tariff is misconfigured")

	// ErrInvalidBillingWindow marks a zero or negative billing window. An
	// input error, never a zero charge.
	ErrInvalidBillingWindow = errors.New("billing window must be positive")
)

// ComputeMonthlyCharge returns the flat periodic price. The charge is applied
// once per period regardless of sub-period length; there is no proration on
// the periodic charge itself.
func ComputeMonthlyCharge(tariff *domain.Tariff) (int64, error) {
	if tariff.PriceMinor <= 0 {
		return 0, ErrTariffMisconfigured
	}
	return tariff.PriceMinor, nil
}

// ComputeHourlyCharge returns the metered cost of the window [start, end),
// rounded half-up to the minor currency unit.
func ComputeHourlyCharge(tariff *domain.Tariff, start, end time.Time) (int64, error) {
	if tariff.HourlyPriceMinor <= 0 {
		return 0, ErrTariffMisconfigured
	}
	elapsed := end.Sub(start)
	if elapsed <= 0 {
		return 0, ErrInvalidBillingWindow
	}
	minutes := int64(elapsed / time.Minute)
	return (tariff.HourlyPriceMinor*minutes + 30) / 60, nil
}

// ComputeSessionCost is the ad-hoc session costing utility. It shares the
// hourly proration formula but is not part of any batch pass.
func ComputeSessionCost(tariff *domain.Tariff, start, end time.Time) (*domain.SessionCost, error) {
	cost, err := ComputeHourlyCharge(tariff, start, end)
	if err != nil {
		return nil, err
	}
	return &domain.SessionCost{
		DurationMinutes: int64(end.Sub(start) / time.Minute),
		CostMinor:       cost,
		HourlyRateMinor: tariff.HourlyPriceMinor,
	}, nil
}

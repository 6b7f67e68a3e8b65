/**
 * @description
 * The batch runner executes one billing pass: it enumerates the eligible
 * account set, processes accounts on a bounded worker pool, and aggregates
 * per-account outcomes into a BatchReport. One bad account never aborts the
 * batch; only a failure to enumerate the eligible set surfaces as a
 * batch-level error.
 */

package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/netwatch/billing-service/internal/domain"
	"github.com/netwatch/billing-service/internal/store"
)

// Runner iterates eligible accounts for a pass and aggregates results.
type Runner struct {
	repo      store.Repository
	processor *Processor
	workers   int
	logger    *slog.Logger
}

// NewRunner creates a batch runner with the given worker pool size.
func NewRunner(repo store.Repository, processor *Processor, workers int, logger *slog.Logger) *Runner {
	if workers <= 0 {
		workers = 16
	}
	return &Runner{
		repo:      repo,
		processor: processor,
		workers:   workers,
		logger:    logger,
	}
}

// RunPass executes one pass as of the given instant and returns its report.
// The report's error list preserves the enumeration order of the accounts.
func (r *Runner) RunPass(ctx context.Context, pass domain.PassType, asOf time.Time) (*domain.BatchReport, error) {
	periodKey := domain.PeriodKeyFor(pass, asOf)
	report := &domain.BatchReport{
		PassType:  pass,
		PeriodKey: periodKey,
		StartedAt: time.Now().UTC(),
		Errors:    []domain.AccountError{},
	}

	accounts, err := r.repo.ListEligibleAccounts(ctx, pass, periodKey)
	if err != nil {
		return nil, fmt.Errorf("list eligible accounts for %s pass: %w", pass, err)
	}
	r.logger.Info("pass started", "pass", pass, "period", periodKey, "eligible", len(accounts))

	if pass == domain.PassNotifications {
		r.runNotifications(ctx, accounts, report)
	} else {
		r.runCharges(ctx, accounts, pass, periodKey, asOf, report)
	}

	report.FinishedAt = time.Now().UTC()
	r.logger.Info("pass finished",
		"pass", pass, "period", periodKey,
		"processed", report.Processed, "skipped", report.Skipped,
		"sent", report.Sent, "total_amount_minor", report.TotalAmountMinor,
		"errors", len(report.Errors))
	return report, nil
}

// runCharges processes a charge pass on the bounded worker pool. The
// semaphore blocks on saturation instead of queueing unboundedly, which keeps
// load on the ledger store and the command channel flat.
func (r *Runner) runCharges(ctx context.Context, accounts []domain.Account, pass domain.PassType, periodKey string, asOf time.Time, report *domain.BatchReport) {
	outcomes := make([]ChargeOutcome, len(accounts))
	sem := make(chan struct{}, r.workers)
	var wg sync.WaitGroup

	for i, account := range accounts {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, account domain.Account) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = r.processor.ApplyCharge(ctx, account, pass, periodKey, asOf)
		}(i, account)
	}
	wg.Wait()

	for _, outcome := range outcomes {
		switch {
		case outcome.Err != nil:
			report.Errors = append(report.Errors, domain.AccountError{
				AccountID: outcome.AccountID,
				Error:     outcome.Err.Error(),
			})
		case outcome.AlreadyApplied:
			report.Skipped++
		case outcome.Applied:
			report.Processed++
			report.TotalAmountMinor += outcome.AmountMinor
		}
	}
}

// runNotifications processes the notifications-only pass.
func (r *Runner) runNotifications(ctx context.Context, accounts []domain.Account, report *domain.BatchReport) {
	outcomes := make([]NotificationOutcome, len(accounts))
	sem := make(chan struct{}, r.workers)
	var wg sync.WaitGroup

	for i, account := range accounts {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, account domain.Account) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = r.processor.ProcessNotification(ctx, account)
		}(i, account)
	}
	wg.Wait()

	report.Notifications = []domain.NotificationRecord{}
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			report.Errors = append(report.Errors, domain.AccountError{
				AccountID: outcome.AccountID,
				Error:     outcome.Err.Error(),
			})
			continue
		}
		if outcome.Sent {
			report.Sent++
			report.Notifications = append(report.Notifications, domain.NotificationRecord{
				AccountID: outcome.AccountID,
				Type:      outcome.Type,
			})
		}
	}
}

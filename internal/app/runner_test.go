package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/netwatch/billing-service/internal/domain"
	"github.com/netwatch/billing-service/internal/store"
)

func newTestRunner(repo *stubRepository, notifier *stubNotifier, commands *stubCommands) *Runner {
	processor := newTestProcessor(repo, notifier, commands)
	return NewRunner(repo, processor, 4, testLogger())
}

func TestRunPass_AggregatesResults(t *testing.T) {
	tariff, tariffID := periodicTariff(10000)
	good1 := activeAccount(tariffID, 50000, 0)
	bad := activeAccount(tariffID, 100, 0)
	good2 := activeAccount(tariffID, 50000, 0)

	repo := &stubRepository{
		tariffs:     map[uuid.UUID]*domain.Tariff{tariffID: tariff},
		eligible:    []domain.Account{good1, bad, good2},
		applyResult: &store.ApplyChargeResult{NewBalanceMinor: 40000},
		applyErrFor: map[uuid.UUID]error{bad.ID: store.ErrInsufficientFunds},
	}
	runner := newTestRunner(repo, &stubNotifier{}, &stubCommands{})

	report, err := runner.RunPass(context.Background(), domain.PassMonthly, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("RunPass returned error: %v", err)
	}

	if report.Processed != 2 {
		t.Fatalf("expected processed=2, got %d", report.Processed)
	}
	if report.TotalAmountMinor != 20000 {
		t.Fatalf("expected total 20000, got %d", report.TotalAmountMinor)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("expected one error entry, got %d", len(report.Errors))
	}
	if report.Errors[0].AccountID != bad.ID {
		t.Fatalf("expected the failing account in errors, got %s", report.Errors[0].AccountID)
	}
	if report.PeriodKey != "2024-01" {
		t.Fatalf("expected period 2024-01, got %q", report.PeriodKey)
	}
}

func TestRunPass_RepeatPassIsIdempotent(t *testing.T) {
	tariff, tariffID := periodicTariff(10000)
	accounts := []domain.Account{
		activeAccount(tariffID, 50000, 0),
		activeAccount(tariffID, 50000, 0),
		activeAccount(tariffID, 50000, 0),
	}
	repo := &stubRepository{
		tariffs:     map[uuid.UUID]*domain.Tariff{tariffID: tariff},
		eligible:    accounts,
		applyResult: &store.ApplyChargeResult{AlreadyApplied: true},
	}
	runner := newTestRunner(repo, &stubNotifier{}, &stubCommands{})

	report, err := runner.RunPass(context.Background(), domain.PassMonthly, time.Now())
	if err != nil {
		t.Fatalf("RunPass returned error: %v", err)
	}
	if report.Processed != 0 {
		t.Fatalf("a re-triggered pass must process nothing, got %d", report.Processed)
	}
	if report.Skipped != 3 {
		t.Fatalf("expected 3 skipped accounts, got %d", report.Skipped)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("a re-triggered pass must report no errors, got %+v", report.Errors)
	}
	if report.TotalAmountMinor != 0 {
		t.Fatalf("a re-triggered pass must charge nothing, got %d", report.TotalAmountMinor)
	}
}

func TestRunPass_EnumerationFailureIsFatal(t *testing.T) {
	repo := &stubRepository{listErr: errors.New("ledger store unreachable")}
	runner := newTestRunner(repo, &stubNotifier{}, &stubCommands{})

	if _, err := runner.RunPass(context.Background(), domain.PassMonthly, time.Now()); err == nil {
		t.Fatal("expected an error when the eligible set cannot be enumerated")
	}
}

func TestRunPass_NotificationsPass(t *testing.T) {
	tariffID := uuid.New()
	tariff := &domain.Tariff{ID: tariffID, BillingMode: domain.BillingPrepaidPeriodic, PriceMinor: 6000, NotificationThresholdMinor: 1000}

	low := activeAccount(tariffID, 800, 0)
	healthy := activeAccount(tariffID, 90000, 0)
	orphan := activeAccount(uuid.New(), 800, 0) // tariff missing

	repo := &stubRepository{
		tariffs:  map[uuid.UUID]*domain.Tariff{tariffID: tariff},
		eligible: []domain.Account{low, healthy, orphan},
	}
	notifier := &stubNotifier{}
	runner := newTestRunner(repo, notifier, &stubCommands{})

	report, err := runner.RunPass(context.Background(), domain.PassNotifications, time.Now())
	if err != nil {
		t.Fatalf("RunPass returned error: %v", err)
	}
	if report.Sent != 1 {
		t.Fatalf("expected sent=1, got %d", report.Sent)
	}
	if len(report.Notifications) != 1 || report.Notifications[0].AccountID != low.ID {
		t.Fatalf("expected one notification for the low-balance account, got %+v", report.Notifications)
	}
	if len(report.Errors) != 1 || report.Errors[0].AccountID != orphan.ID {
		t.Fatalf("expected the orphan account in errors, got %+v", report.Errors)
	}
	if len(notifier.events) != 1 {
		t.Fatalf("expected one published event, got %d", len(notifier.events))
	}
}

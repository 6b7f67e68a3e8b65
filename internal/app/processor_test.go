package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/netwatch/billing-service/internal/domain"
	"github.com/netwatch/billing-service/internal/store"
	"github.com/netwatch/billing-service/pkg/kafka"
	"github.com/netwatch/billing-service/pkg/rabbitmq"
)

type statusWrite struct {
	accountID uuid.UUID
	status    domain.AccountStatus
}

type stubRepository struct {
	mu sync.Mutex

	accounts map[uuid.UUID]*domain.Account
	tariffs  map[uuid.UUID]*domain.Tariff

	eligible []domain.Account
	listErr  error

	applyResult *store.ApplyChargeResult
	applyErr    error
	applyErrFor map[uuid.UUID]error
	applyCalls  int

	statusWrites  []statusWrite
	statusErr     error
	failedCharges []string

	creditBalance int64
	creditErr     error
	adjustBalance int64
}

func (s *stubRepository) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if a, ok := s.accounts[id]; ok {
		return a, nil
	}
	return nil, store.ErrAccountNotFound
}

func (s *stubRepository) GetTariff(ctx context.Context, id uuid.UUID) (*domain.Tariff, error) {
	if t, ok := s.tariffs[id]; ok {
		return t, nil
	}
	return nil, store.ErrTariffNotFound
}

func (s *stubRepository) ListEligibleAccounts(ctx context.Context, pass domain.PassType, periodKey string) ([]domain.Account, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.eligible, nil
}

func (s *stubRepository) ApplyCharge(ctx context.Context, params store.ApplyChargeParams) (*store.ApplyChargeResult, error) {
	s.mu.Lock()
	s.applyCalls++
	s.mu.Unlock()
	if s.applyErr != nil {
		return nil, s.applyErr
	}
	if err, ok := s.applyErrFor[params.AccountID]; ok {
		return nil, err
	}
	if s.applyResult != nil {
		return s.applyResult, nil
	}
	return &store.ApplyChargeResult{NewBalanceMinor: -params.AmountMinor}, nil
}

func (s *stubRepository) RecordFailedCharge(ctx context.Context, accountID uuid.UUID, pass domain.PassType, periodKey string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedCharges = append(s.failedCharges, reason)
	return nil
}

func (s *stubRepository) SetAccountStatus(ctx context.Context, id uuid.UUID, status domain.AccountStatus) error {
	if s.statusErr != nil {
		return s.statusErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusWrites = append(s.statusWrites, statusWrite{accountID: id, status: status})
	return nil
}

func (s *stubRepository) CreditAccount(ctx context.Context, accountID uuid.UUID, amountMinor int64, source string) (int64, error) {
	if s.creditErr != nil {
		return 0, s.creditErr
	}
	return s.creditBalance, nil
}

func (s *stubRepository) AdjustBalance(ctx context.Context, accountID uuid.UUID, deltaMinor int64, reason string) (int64, error) {
	return s.adjustBalance, nil
}

type stubNotifier struct {
	mu     sync.Mutex
	events []rabbitmq.NotificationEvent
	err    error
}

func (s *stubNotifier) PublishNotification(ctx context.Context, event rabbitmq.NotificationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

type stubCommands struct {
	mu   sync.Mutex
	cmds []kafka.DeviceCommand
	err  error
}

func (s *stubCommands) PublishCommand(ctx context.Context, cmd kafka.DeviceCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds = append(s.cmds, cmd)
	return s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProcessor(repo *stubRepository, notifier *stubNotifier, commands *stubCommands) *Processor {
	return NewProcessor(repo, notifier, commands, testLogger(), time.Second)
}

func activeAccount(tariffID uuid.UUID, balance, blockThreshold int64) domain.Account {
	return domain.Account{
		ID:                  uuid.New(),
		ClientID:            uuid.New(),
		TariffID:            tariffID,
		BalanceMinor:        balance,
		Status:              domain.AccountActive,
		BlockThresholdMinor: blockThreshold,
		DeviceID:            "router-17",
		MACAddress:          "AA:BB:CC:DD:EE:FF",
	}
}

func periodicTariff(priceMinor int64) (*domain.Tariff, uuid.UUID) {
	id := uuid.New()
	return &domain.Tariff{ID: id, BillingMode: domain.BillingPrepaidPeriodic, PriceMinor: priceMinor}, id
}

func TestApplyCharge_AlreadyAppliedIsNoOp(t *testing.T) {
	tariff, tariffID := periodicTariff(6000)
	repo := &stubRepository{
		tariffs:     map[uuid.UUID]*domain.Tariff{tariffID: tariff},
		applyResult: &store.ApplyChargeResult{AlreadyApplied: true},
	}
	notifier := &stubNotifier{}
	commands := &stubCommands{}
	processor := newTestProcessor(repo, notifier, commands)

	account := activeAccount(tariffID, 10000, 0)
	outcome := processor.ApplyCharge(context.Background(), account, domain.PassMonthly, "2024-01", time.Now())

	if outcome.Err != nil {
		t.Fatalf("expected no error, got %v", outcome.Err)
	}
	if outcome.Applied || !outcome.AlreadyApplied {
		t.Fatalf("expected a clean no-op, got %+v", outcome)
	}
	if len(repo.statusWrites) != 0 {
		t.Fatal("expected no status write for an already-applied charge")
	}
	if len(notifier.events) != 0 || len(commands.cmds) != 0 {
		t.Fatal("expected no side effects for an already-applied charge")
	}
}

func TestApplyCharge_BlocksBelowThreshold(t *testing.T) {
	tariff, tariffID := periodicTariff(6000)
	repo := &stubRepository{
		tariffs:     map[uuid.UUID]*domain.Tariff{tariffID: tariff},
		applyResult: &store.ApplyChargeResult{NewBalanceMinor: 9000},
	}
	notifier := &stubNotifier{}
	commands := &stubCommands{}
	processor := newTestProcessor(repo, notifier, commands)

	// Balance 100.00 with block threshold 100.00, debited 60.00: new balance
	// 90.00 sits below the threshold and the account must be blocked.
	account := activeAccount(tariffID, 10000, 10000)
	outcome := processor.ApplyCharge(context.Background(), account, domain.PassMonthly, "2024-01", time.Now())

	if outcome.Err != nil {
		t.Fatalf("expected no error, got %v", outcome.Err)
	}
	if !outcome.Applied || !outcome.Blocked {
		t.Fatalf("expected applied+blocked outcome, got %+v", outcome)
	}
	if len(repo.statusWrites) != 1 || repo.statusWrites[0].status != domain.AccountBlocked {
		t.Fatalf("expected one blocked status write, got %+v", repo.statusWrites)
	}
	if len(commands.cmds) != 1 || commands.cmds[0].DesiredState != string(domain.DeviceBlock) {
		t.Fatalf("expected exactly one block command, got %+v", commands.cmds)
	}
	if len(notifier.events) != 1 || notifier.events[0].Type != string(domain.NotificationInsufficientFunds) {
		t.Fatalf("expected exactly one INSUFFICIENT_FUNDS notification, got %+v", notifier.events)
	}
}

func TestApplyCharge_BoundaryFailureDoesNotChangeDecision(t *testing.T) {
	tariff, tariffID := periodicTariff(6000)
	repo := &stubRepository{
		tariffs:     map[uuid.UUID]*domain.Tariff{tariffID: tariff},
		applyResult: &store.ApplyChargeResult{NewBalanceMinor: 9000},
	}
	notifier := &stubNotifier{err: errors.New("amqp down")}
	commands := &stubCommands{err: errors.New("kafka down")}
	processor := newTestProcessor(repo, notifier, commands)

	account := activeAccount(tariffID, 10000, 10000)
	outcome := processor.ApplyCharge(context.Background(), account, domain.PassMonthly, "2024-01", time.Now())

	if outcome.Err != nil {
		t.Fatalf("boundary failures must not surface as errors, got %v", outcome.Err)
	}
	if !outcome.Applied || !outcome.Blocked {
		t.Fatalf("expected the billing decision to stand, got %+v", outcome)
	}
	if len(repo.statusWrites) != 1 || repo.statusWrites[0].status != domain.AccountBlocked {
		t.Fatalf("expected blocked status despite delivery failures, got %+v", repo.statusWrites)
	}
	if len(commands.cmds) != 1 || len(notifier.events) != 1 {
		t.Fatal("expected exactly one attempt on each boundary")
	}
}

func TestApplyCharge_InsufficientFundsIsRecorded(t *testing.T) {
	tariff, tariffID := periodicTariff(6000)
	repo := &stubRepository{
		tariffs:  map[uuid.UUID]*domain.Tariff{tariffID: tariff},
		applyErr: store.ErrInsufficientFunds,
	}
	notifier := &stubNotifier{}
	commands := &stubCommands{}
	processor := newTestProcessor(repo, notifier, commands)

	account := activeAccount(tariffID, 100, 0)
	outcome := processor.ApplyCharge(context.Background(), account, domain.PassMonthly, "2024-01", time.Now())

	if !errors.Is(outcome.Err, store.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds error, got %v", outcome.Err)
	}
	if outcome.Applied {
		t.Fatal("a failed charge must not count as applied")
	}
	if len(repo.failedCharges) != 1 {
		t.Fatalf("expected one failed charge record, got %d", len(repo.failedCharges))
	}
	if len(repo.statusWrites) != 0 {
		t.Fatal("a failed charge must not change status")
	}
}

func TestApplyCharge_LowBalanceWarning(t *testing.T) {
	tariffID := uuid.New()
	tariff := &domain.Tariff{
		ID:                         tariffID,
		BillingMode:                domain.BillingPrepaidPeriodic,
		PriceMinor:                 6000,
		NotificationThresholdMinor: 1000,
	}
	repo := &stubRepository{
		tariffs:     map[uuid.UUID]*domain.Tariff{tariffID: tariff},
		applyResult: &store.ApplyChargeResult{NewBalanceMinor: 500},
	}
	notifier := &stubNotifier{}
	commands := &stubCommands{}
	processor := newTestProcessor(repo, notifier, commands)

	account := activeAccount(tariffID, 6500, 0)
	outcome := processor.ApplyCharge(context.Background(), account, domain.PassMonthly, "2024-01", time.Now())

	if outcome.Err != nil || !outcome.Applied || outcome.Blocked {
		t.Fatalf("expected applied, unblocked outcome, got %+v", outcome)
	}
	if len(notifier.events) != 1 || notifier.events[0].Type != string(domain.NotificationLowBalance) {
		t.Fatalf("expected one LOW_BALANCE notification, got %+v", notifier.events)
	}
	if len(commands.cmds) != 0 {
		t.Fatal("a low-balance warning must not emit device commands")
	}
}

func TestApplyCharge_NeverAutoUnblocks(t *testing.T) {
	tariff, tariffID := periodicTariff(6000)
	repo := &stubRepository{
		tariffs:     map[uuid.UUID]*domain.Tariff{tariffID: tariff},
		applyResult: &store.ApplyChargeResult{NewBalanceMinor: 50000},
	}
	notifier := &stubNotifier{}
	commands := &stubCommands{}
	processor := newTestProcessor(repo, notifier, commands)

	account := activeAccount(tariffID, 56000, 0)
	account.Status = domain.AccountBlocked
	outcome := processor.ApplyCharge(context.Background(), account, domain.PassMonthly, "2024-01", time.Now())

	if outcome.Err != nil {
		t.Fatalf("expected no error, got %v", outcome.Err)
	}
	if len(repo.statusWrites) != 0 {
		t.Fatalf("a debit pass must never change a BLOCKED account's status, got %+v", repo.statusWrites)
	}
	if len(commands.cmds) != 0 {
		t.Fatal("a debit pass must never emit unblock commands")
	}
}

func TestApplyCharge_MisconfiguredTariff(t *testing.T) {
	tariff, tariffID := periodicTariff(0)
	repo := &stubRepository{tariffs: map[uuid.UUID]*domain.Tariff{tariffID: tariff}}
	processor := newTestProcessor(repo, &stubNotifier{}, &stubCommands{})

	account := activeAccount(tariffID, 10000, 0)
	outcome := processor.ApplyCharge(context.Background(), account, domain.PassMonthly, "2024-01", time.Now())

	if !errors.Is(outcome.Err, ErrTariffMisconfigured) {
		t.Fatalf("expected ErrTariffMisconfigured, got %v", outcome.Err)
	}
	if repo.applyCalls != 0 {
		t.Fatal("a misconfigured tariff must not reach the ledger")
	}
	if len(repo.failedCharges) != 1 {
		t.Fatalf("expected one failed charge record, got %d", len(repo.failedCharges))
	}
}

func TestProcessNotification_SendsInsideWindow(t *testing.T) {
	tariffID := uuid.New()
	tariff := &domain.Tariff{ID: tariffID, BillingMode: domain.BillingPrepaidPeriodic, PriceMinor: 6000, NotificationThresholdMinor: 1000}
	repo := &stubRepository{tariffs: map[uuid.UUID]*domain.Tariff{tariffID: tariff}}
	notifier := &stubNotifier{}
	processor := newTestProcessor(repo, notifier, &stubCommands{})

	low := activeAccount(tariffID, 800, 0)
	outcome := processor.ProcessNotification(context.Background(), low)
	if !outcome.Sent || outcome.Type != domain.NotificationLowBalance {
		t.Fatalf("expected LOW_BALANCE sent, got %+v", outcome)
	}

	broke := activeAccount(tariffID, 0, 0)
	outcome = processor.ProcessNotification(context.Background(), broke)
	if outcome.Sent {
		t.Fatal("a zero balance is not a low-balance warning")
	}

	healthy := activeAccount(tariffID, 5000, 0)
	outcome = processor.ProcessNotification(context.Background(), healthy)
	if outcome.Sent {
		t.Fatal("a healthy balance must not notify")
	}

	if len(notifier.events) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(notifier.events))
	}
}

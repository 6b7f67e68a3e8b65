/**
 * @description
 * This file contains the manual-operation surface around the billing engine:
 * payment intake, back-office balance adjustments, operator status overrides
 * and the ad-hoc session cost calculator. All balance writers funnel through
 * the same atomic store paths the engine uses.
 *
 * @notes
 * - The credit path is the ONLY automatic unblock: a payment that lifts a
 *   BLOCKED account's balance to or above its block threshold transitions it
 *   back to ACTIVE and emits an unblock command. Debit passes never do this.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/netwatch/billing-service/internal/domain"
	"github.com/netwatch/billing-service/internal/store"
	"github.com/netwatch/billing-service/pkg/rabbitmq"
)

// ErrInvalidAmount marks a non-positive payment amount.
var ErrInvalidAmount = errors.New("amount must be positive")

// PaymentResult describes the effect of one payment.
type PaymentResult struct {
	AccountID       uuid.UUID `json:"account_id"`
	NewBalanceMinor int64     `json:"new_balance_minor"`
	Unblocked       bool      `json:"unblocked"`
}

// Service provides the manual account operations.
type Service struct {
	repo            store.Repository
	notifications   NotificationPublisher
	commands        CommandPublisher
	logger          *slog.Logger
	boundaryTimeout time.Duration
}

// NewService creates a new account operations service.
func NewService(repo store.Repository, notifications NotificationPublisher, commands CommandPublisher, logger *slog.Logger, boundaryTimeout time.Duration) *Service {
	return &Service{
		repo:            repo,
		notifications:   notifications,
		commands:        commands,
		logger:          logger,
		boundaryTimeout: boundaryTimeout,
	}
}

// RecordPayment credits an account and, when the resulting balance satisfies
// the block threshold again, lifts the block.
func (s *Service) RecordPayment(ctx context.Context, accountID uuid.UUID, amountMinor int64, source string) (*PaymentResult, error) {
	if amountMinor <= 0 {
		return nil, ErrInvalidAmount
	}

	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	newBalance, err := s.repo.CreditAccount(ctx, accountID, amountMinor, source)
	if err != nil {
		return nil, fmt.Errorf("credit account: %w", err)
	}

	result := &PaymentResult{AccountID: accountID, NewBalanceMinor: newBalance}

	if account.Status == domain.AccountBlocked && newBalance >= account.BlockThresholdMinor {
		if err := s.repo.SetAccountStatus(ctx, accountID, domain.AccountActive); err != nil {
			return nil, fmt.Errorf("unblock account: %w", err)
		}
		result.Unblocked = true
		s.emitCommand(ctx, *account, domain.DeviceUnblock)
		s.notifyPayment(ctx, *account, newBalance)
	}

	return result, nil
}

// AdjustBalance applies a signed manual correction to an account balance.
// Adjustments never change status; operators use the status override for that.
func (s *Service) AdjustBalance(ctx context.Context, accountID uuid.UUID, deltaMinor int64, reason string) (int64, error) {
	if deltaMinor == 0 {
		return 0, ErrInvalidAmount
	}
	return s.repo.AdjustBalance(ctx, accountID, deltaMinor, reason)
}

// SetStatus is the operator override for an account's status. The matching
// device command is emitted so the network converges on the new state.
func (s *Service) SetStatus(ctx context.Context, accountID uuid.UUID, status domain.AccountStatus) error {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if err := s.repo.SetAccountStatus(ctx, accountID, status); err != nil {
		return err
	}

	switch status {
	case domain.AccountBlocked, domain.AccountSuspended:
		s.emitCommand(ctx, *account, domain.DeviceBlock)
	case domain.AccountActive:
		s.emitCommand(ctx, *account, domain.DeviceUnblock)
	}
	return nil
}

// SessionCost resolves an account's tariff and prices the session window
// with the hourly proration formula.
func (s *Service) SessionCost(ctx context.Context, accountID uuid.UUID, start, end time.Time) (*domain.SessionCost, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	tariff, err := s.repo.GetTariff(ctx, account.TariffID)
	if err != nil {
		return nil, err
	}
	return ComputeSessionCost(tariff, start, end)
}

func (s *Service) emitCommand(ctx context.Context, account domain.Account, state domain.DeviceCommandState) {
	cmdCtx, cancel := context.WithTimeout(ctx, s.boundaryTimeout)
	defer cancel()

	cmd := deviceCommandFor(account, state)
	if err := s.commands.PublishCommand(cmdCtx, cmd); err != nil {
		s.logger.Warn("device command publish failed", "account_id", account.ID, "state", state, "error", err)
	}
}

func (s *Service) notifyPayment(ctx context.Context, account domain.Account, newBalance int64) {
	notifyCtx, cancel := context.WithTimeout(ctx, s.boundaryTimeout)
	defer cancel()

	event := rabbitmq.NotificationEvent{
		AccountID:    account.ID,
		ClientID:     account.ClientID,
		Type:         string(domain.NotificationPaymentReceived),
		Message:      "Payment received; your service has been restored.",
		BalanceMinor: newBalance,
		Timestamp:    time.Now().UTC(),
	}
	if err := s.notifications.PublishNotification(notifyCtx, event); err != nil {
		s.logger.Warn("payment notification publish failed", "account_id", account.ID, "error", err)
	}
}

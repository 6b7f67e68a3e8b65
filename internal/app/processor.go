/**
 * @description
 * The account processor applies one charge to one account: it drives the
 * atomic ledger mutation, evaluates the block policy, and fans out to the
 * notification and device-command channels. Every failure is captured into
 * the returned outcome; nothing is allowed to escape across account
 * boundaries.
 *
 * @notes
 * - Side-effect calls (RabbitMQ, Kafka) are awaited under a short timeout for
 *   logging, but their failure never rolls back the billing decision. The
 *   ledger reflects truth even when delivery fails; the external collaborator
 *   owns retries.
 * - A debit pass never auto-unblocks. BLOCKED accounts return to ACTIVE only
 *   through the credit path or a manual override.
 */

package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/netwatch/billing-service/internal/domain"
	"github.com/netwatch/billing-service/internal/store"
	"github.com/netwatch/billing-service/pkg/kafka"
	"github.com/netwatch/billing-service/pkg/rabbitmq"
)

// NotificationPublisher is the boundary to the notification collaborator.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, event rabbitmq.NotificationEvent) error
}

// CommandPublisher is the boundary to the device command channel.
type CommandPublisher interface {
	PublishCommand(ctx context.Context, cmd kafka.DeviceCommand) error
}

// ChargeOutcome is the per-account result the batch runner aggregates.
type ChargeOutcome struct {
	AccountID       uuid.UUID
	Applied         bool
	AlreadyApplied  bool
	AmountMinor     int64
	NewBalanceMinor int64
	Blocked         bool
	Err             error
}

// NotificationOutcome is the per-account result of the notifications pass.
type NotificationOutcome struct {
	AccountID uuid.UUID
	Sent      bool
	Type      domain.NotificationType
	Err       error
}

// Processor applies charges and policy to single accounts.
type Processor struct {
	repo            store.Repository
	notifications   NotificationPublisher
	commands        CommandPublisher
	logger          *slog.Logger
	boundaryTimeout time.Duration
}

// NewProcessor creates a new account processor.
func NewProcessor(repo store.Repository, notifications NotificationPublisher, commands CommandPublisher, logger *slog.Logger, boundaryTimeout time.Duration) *Processor {
	return &Processor{
		repo:            repo,
		notifications:   notifications,
		commands:        commands,
		logger:          logger,
		boundaryTimeout: boundaryTimeout,
	}
}

// ApplyCharge runs the full per-account algorithm for a charge pass. All
// errors are folded into the outcome; callers proceed to the next account.
func (p *Processor) ApplyCharge(ctx context.Context, account domain.Account, pass domain.PassType, periodKey string, asOf time.Time) ChargeOutcome {
	outcome := ChargeOutcome{AccountID: account.ID}

	tariff, err := p.repo.GetTariff(ctx, account.TariffID)
	if err != nil {
		outcome.Err = fmt.Errorf("resolve tariff: %w", err)
		p.recordFailure(ctx, account.ID, pass, periodKey, outcome.Err)
		return outcome
	}

	amount, err := p.chargeAmount(tariff, pass, asOf)
	if err != nil {
		outcome.Err = err
		p.recordFailure(ctx, account.ID, pass, periodKey, err)
		return outcome
	}
	outcome.AmountMinor = amount

	result, err := p.repo.ApplyCharge(ctx, store.ApplyChargeParams{
		AccountID:   account.ID,
		PassType:    pass,
		PeriodKey:   periodKey,
		AmountMinor: amount,
	})
	if err != nil {
		outcome.Err = fmt.Errorf("apply charge: %w", err)
		p.recordFailure(ctx, account.ID, pass, periodKey, outcome.Err)
		return outcome
	}
	if result.AlreadyApplied {
		// Re-triggered pass; the period was billed before. A clean no-op.
		outcome.AlreadyApplied = true
		return outcome
	}

	outcome.Applied = true
	outcome.NewBalanceMinor = result.NewBalanceMinor

	p.evaluatePolicy(ctx, account, tariff, result.NewBalanceMinor, &outcome)
	return outcome
}

// chargeAmount computes the pass-specific amount. The scheduled hourly pass
// bills the full hour bucket in advance; partial-window proration is exposed
// through the session-cost utility instead.
func (p *Processor) chargeAmount(tariff *domain.Tariff, pass domain.PassType, asOf time.Time) (int64, error) {
	switch pass {
	case domain.PassMonthly:
		return ComputeMonthlyCharge(tariff)
	case domain.PassHourly:
		bucket := asOf.UTC().Truncate(time.Hour)
		return ComputeHourlyCharge(tariff, bucket, bucket.Add(time.Hour))
	}
	return 0, fmt.Errorf("pass %q does not charge", pass)
}

// evaluatePolicy applies the block threshold and low-balance warning rules
// after a successful debit.
func (p *Processor) evaluatePolicy(ctx context.Context, account domain.Account, tariff *domain.Tariff, newBalance int64, outcome *ChargeOutcome) {
	if newBalance < account.BlockThresholdMinor && account.Status == domain.AccountActive {
		if err := p.repo.SetAccountStatus(ctx, account.ID, domain.AccountBlocked); err != nil {
			outcome.Err = fmt.Errorf("set status blocked: %w", err)
			return
		}
		outcome.Blocked = true
		p.emitCommand(ctx, account, domain.DeviceBlock)
		p.notify(ctx, account, domain.NotificationInsufficientFunds, newBalance,
			"Your balance is below the block threshold and service has been suspended.")
		return
	}

	if newBalance > 0 && newBalance <= tariff.NotificationThresholdMinor && account.Status == domain.AccountActive {
		p.notify(ctx, account, domain.NotificationLowBalance, newBalance,
			"Your balance is running low. Please top up to avoid interruption.")
	}
}

// ProcessNotification runs the low-balance check for the standalone
// notifications pass. No ledger mutation happens here.
func (p *Processor) ProcessNotification(ctx context.Context, account domain.Account) NotificationOutcome {
	outcome := NotificationOutcome{AccountID: account.ID}

	tariff, err := p.repo.GetTariff(ctx, account.TariffID)
	if err != nil {
		outcome.Err = fmt.Errorf("resolve tariff: %w", err)
		return outcome
	}

	if account.BalanceMinor > 0 && account.BalanceMinor <= tariff.NotificationThresholdMinor {
		outcome.Sent = true
		outcome.Type = domain.NotificationLowBalance
		p.notify(ctx, account, domain.NotificationLowBalance, account.BalanceMinor,
			"Your balance is running low. Please top up to avoid interruption.")
	}
	return outcome
}

// notify asks the notification collaborator to contact the subscriber.
// Failures are logged, never propagated.
func (p *Processor) notify(ctx context.Context, account domain.Account, kind domain.NotificationType, balance int64, message string) {
	notifyCtx, cancel := context.WithTimeout(ctx, p.boundaryTimeout)
	defer cancel()

	event := rabbitmq.NotificationEvent{
		AccountID:    account.ID,
		ClientID:     account.ClientID,
		Type:         string(kind),
		Message:      message,
		BalanceMinor: balance,
		Timestamp:    time.Now().UTC(),
	}
	if err := p.notifications.PublishNotification(notifyCtx, event); err != nil {
		p.logger.Warn("notification publish failed", "account_id", account.ID, "type", kind, "error", err)
	}
}

// emitCommand asks the command channel to propagate a state change to the
// subscriber's device. Failures are logged, never propagated, and never undo
// the billing decision.
func (p *Processor) emitCommand(ctx context.Context, account domain.Account, state domain.DeviceCommandState) {
	cmdCtx, cancel := context.WithTimeout(ctx, p.boundaryTimeout)
	defer cancel()

	cmd := deviceCommandFor(account, state)
	if err := p.commands.PublishCommand(cmdCtx, cmd); err != nil {
		p.logger.Warn("device command publish failed", "account_id", account.ID, "device_id", account.DeviceID, "state", state, "error", err)
	}
}

// deviceCommandFor builds the command payload from an account's device binding.
func deviceCommandFor(account domain.Account, state domain.DeviceCommandState) kafka.DeviceCommand {
	return kafka.DeviceCommand{
		DeviceID:     account.DeviceID,
		AccountID:    account.ID,
		MACAddress:   account.MACAddress,
		DesiredState: string(state),
		Timestamp:    time.Now().UTC(),
	}
}

// recordFailure appends a failed-outcome ledger entry for audit. Best effort:
// a failure to record the failure is only logged.
func (p *Processor) recordFailure(ctx context.Context, accountID uuid.UUID, pass domain.PassType, periodKey string, cause error) {
	if err := p.repo.RecordFailedCharge(ctx, accountID, pass, periodKey, cause.Error()); err != nil {
		p.logger.Error("failed to record charge failure", "account_id", accountID, "error", err)
	}
}

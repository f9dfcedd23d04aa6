package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"broker_ledger/internal/domain"
	"broker_ledger/internal/repository"
	"broker_ledger/pkg/validator"
)

// Notifier delivers a message to external channels, best-effort. It must not
// block; it is called outside every account critical section.
type Notifier interface {
	Notify(userID, message string)
}

// BalanceEngine owns the wallet mutations: deposits, withdrawals, account
// upgrades and KYC verification. Every mutation runs inside the account
// store's per-user critical section; the trade engine reuses the same
// primitive (withAccount) so balance and trade-set updates never interleave.
type BalanceEngine struct {
	accounts  repository.AccountRepository
	ledger    repository.LedgerRepository
	notes     repository.NotificationRepository
	notifier  Notifier
	validator *validator.RequestValidator
	logger    *slog.Logger

	vipWithdrawLimit decimal.Decimal
}

func NewBalanceEngine(
	accounts repository.AccountRepository,
	ledger repository.LedgerRepository,
	notes repository.NotificationRepository,
	notifier Notifier,
	vipWithdrawLimit decimal.Decimal,
	logger *slog.Logger,
) *BalanceEngine {
	if logger == nil {
		logger = slog.Default()
	}

	return &BalanceEngine{
		accounts:         accounts,
		ledger:           ledger,
		notes:            notes,
		notifier:         notifier,
		validator:        validator.NewRequestValidator(),
		logger:           logger,
		vipWithdrawLimit: vipWithdrawLimit,
	}
}

func (e *BalanceEngine) GetAccount(ctx context.Context, userID string) (*domain.Account, error) {
	return e.accounts.GetOrCreate(ctx, userID)
}

func (e *BalanceEngine) Deposit(ctx context.Context, userID string, kind domain.AccountKind, amount decimal.Decimal) (*domain.Account, error) {
	if err := e.validator.ValidateKind(kind); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	if err := e.validator.ValidateAmount(amount); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	acc, err := e.accounts.Mutate(ctx, userID, func(acc *domain.Account) error {
		acc.SetBalance(kind, acc.Balance(kind).Add(amount))
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.record(ctx, userID, domain.ActionDeposit,
		fmt.Sprintf("%s to %s", amount, kind),
		fmt.Sprintf("Deposited %s into your %s wallet", amount, kind))

	e.logger.InfoContext(ctx, "deposit completed",
		slog.String("user_id", userID),
		slog.String("kind", string(kind)),
		slog.String("amount", amount.String()))
	return acc, nil
}

// Withdraw checks, in order: KYC, the per-request withdrawal ceiling, then
// available funds. An unverified account is rejected whatever the amount; a
// non-positive amount reads as insufficient funds. The ceiling compares this
// request's amount against the account limit; it does not sum withdrawals
// over a rolling day.
func (e *BalanceEngine) Withdraw(ctx context.Context, userID string, kind domain.AccountKind, amount decimal.Decimal) (*domain.Account, error) {
	if err := e.validator.ValidateKind(kind); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	acc, err := e.accounts.Mutate(ctx, userID, func(acc *domain.Account) error {
		if !acc.KycVerified {
			return fmt.Errorf("%w: withdrawal requires a verified account", ErrKycRequired)
		}
		if amount.GreaterThan(acc.DailyWithdrawLimit) {
			return fmt.Errorf("%w: %s over limit %s", ErrLimitExceeded, amount, acc.DailyWithdrawLimit)
		}
		balance := acc.Balance(kind)
		if amount.LessThanOrEqual(decimal.Zero) || balance.LessThan(amount) {
			return fmt.Errorf("%w: %s available in %s wallet", repository.ErrInsufficientFunds, balance, kind)
		}
		acc.SetBalance(kind, balance.Sub(amount))
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.record(ctx, userID, domain.ActionWithdraw,
		fmt.Sprintf("%s from %s", amount, kind),
		fmt.Sprintf("Withdrew %s from your %s wallet", amount, kind))

	e.logger.InfoContext(ctx, "withdrawal completed",
		slog.String("user_id", userID),
		slog.String("kind", string(kind)),
		slog.String("amount", amount.String()))
	return acc, nil
}

// UpgradeToVip raises the account type and withdrawal ceiling. Idempotent.
func (e *BalanceEngine) UpgradeToVip(ctx context.Context, userID string) (*domain.Account, error) {
	acc, err := e.accounts.Mutate(ctx, userID, func(acc *domain.Account) error {
		acc.Type = domain.AccountVIP
		acc.DailyWithdrawLimit = e.vipWithdrawLimit
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.record(ctx, userID, domain.ActionUpgrade, "vip account",
		"Your account was upgraded to VIP")
	return acc, nil
}

// VerifyKyc marks the account verified. Idempotent.
func (e *BalanceEngine) VerifyKyc(ctx context.Context, userID string) (*domain.Account, error) {
	acc, err := e.accounts.Mutate(ctx, userID, func(acc *domain.Account) error {
		acc.KycVerified = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.record(ctx, userID, domain.ActionKyc, "verified",
		"Your account passed KYC verification")
	return acc, nil
}

// SetStatus suspends or reactivates an account. It bypasses the suspension
// gate, otherwise a suspended account could never come back.
func (e *BalanceEngine) SetStatus(ctx context.Context, userID string, status domain.AccountStatus) (*domain.Account, error) {
	if status != domain.AccountActive && status != domain.AccountSuspended {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}

	acc, err := e.accounts.SetStatus(ctx, userID, status)
	if err != nil {
		return nil, err
	}

	e.record(ctx, userID, domain.ActionStatus, string(status),
		fmt.Sprintf("Your account status changed to %s", status))
	return acc, nil
}

func (e *BalanceEngine) Ledger(ctx context.Context, userID string) ([]domain.LedgerEntry, error) {
	return e.ledger.ByUser(ctx, userID)
}

func (e *BalanceEngine) Notifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	return e.notes.ByUser(ctx, userID)
}

// withAccount is the shared mutation primitive. All engines route their
// account writes through it so one user has exactly one critical section.
func (e *BalanceEngine) withAccount(ctx context.Context, userID string, fn func(*domain.Account) error) (*domain.Account, error) {
	return e.accounts.Mutate(ctx, userID, fn)
}

// record appends the audit entry and user notification for a completed
// mutation, then hands the message to the delivery queue. Runs after the
// critical section; appends are best-effort monotonic.
func (e *BalanceEngine) record(ctx context.Context, userID string, action domain.LedgerAction, details, message string) {
	if err := e.ledger.Append(ctx, domain.NewLedgerEntry(userID, action, details)); err != nil {
		e.logger.ErrorContext(ctx, "ledger append failed",
			slog.String("user_id", userID),
			slog.String("action", string(action)),
			slog.String("error", err.Error()))
	}
	e.appendNotification(ctx, userID, message)
}

func (e *BalanceEngine) appendNotification(ctx context.Context, userID, message string) {
	if err := e.notes.Append(ctx, domain.NewNotification(userID, message)); err != nil {
		e.logger.ErrorContext(ctx, "notification append failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
	}
	if e.notifier != nil {
		e.notifier.Notify(userID, message)
	}
}

package repository

import (
	"context"
	"errors"

	"broker_ledger/internal/domain"
)

// AccountRepository owns per-user account state. Accounts are created lazily
// on first access and never deleted; suspension is a status flag.
//
// Mutate runs fn inside the user's critical section: mutations on the same
// userID serialize, mutations on different userIDs proceed independently.
// Repositories for trades, ledger entries and notifications may be touched
// from inside fn; that is how multi-structure updates stay atomic per user.
type AccountRepository interface {
	GetOrCreate(ctx context.Context, userID string) (*domain.Account, error)
	Mutate(ctx context.Context, userID string, fn func(*domain.Account) error) (*domain.Account, error)
	SetStatus(ctx context.Context, userID string, status domain.AccountStatus) (*domain.Account, error)
}

// TradeRepository holds each user's trade set in open order. ByUser hands out
// live records for reading inside the account store's per-user critical
// section; every field write goes through Mutate so that Snapshot readers
// outside the critical section never observe a torn record.
type TradeRepository interface {
	Append(ctx context.Context, trade *domain.Trade) error
	NextID(ctx context.Context, userID string) (int64, error)
	ByUser(ctx context.Context, userID string) ([]*domain.Trade, error)
	Mutate(ctx context.Context, userID string, tradeID int64, fn func(*domain.Trade) error) (*domain.Trade, error)
	Snapshot(ctx context.Context, userID string) ([]domain.Trade, error)
}

// LedgerRepository is the append-only audit trail, ordered per user.
type LedgerRepository interface {
	Append(ctx context.Context, entry domain.LedgerEntry) error
	ByUser(ctx context.Context, userID string) ([]domain.LedgerEntry, error)
}

// NotificationRepository is the per-user message sink.
type NotificationRepository interface {
	Append(ctx context.Context, n domain.Notification) error
	ByUser(ctx context.Context, userID string) ([]domain.Notification, error)
}

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountSuspended  = errors.New("account suspended")
)

package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"broker_ledger/internal/domain"
	"broker_ledger/internal/repository"
)

// AccountRepository keeps accounts in memory with one lock per userID. The
// registry mutex only guards the maps; holding it never spans a user
// operation, so users cannot block each other.
type AccountRepository struct {
	defaults domain.AccountDefaults

	mu       sync.Mutex
	accounts map[string]*domain.Account
	locks    map[string]*sync.Mutex
}

func NewAccountRepository(defaults domain.AccountDefaults) *AccountRepository {
	return &AccountRepository{
		defaults: defaults,
		accounts: make(map[string]*domain.Account),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (r *AccountRepository) lockFor(userID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[userID] = l
	}
	return l
}

// account returns the live record, creating it with defaults if absent.
// Callers hold the user's lock.
func (r *AccountRepository) account(userID string) *domain.Account {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[userID]
	if !ok {
		acc = &domain.Account{
			UserID:             userID,
			RealBalance:        decimal.Zero,
			DemoBalance:        r.defaults.DemoBalance,
			Type:               domain.AccountStandard,
			Status:             domain.AccountActive,
			Currency:           r.defaults.Currency,
			KycVerified:        false,
			DailyWithdrawLimit: r.defaults.DailyWithdrawLimit,
			CreatedAt:          time.Now().UTC(),
		}
		r.accounts[userID] = acc
	}
	return acc
}

func (r *AccountRepository) GetOrCreate(ctx context.Context, userID string) (*domain.Account, error) {
	l := r.lockFor(userID)
	l.Lock()
	defer l.Unlock()

	snap := *r.account(userID)
	return &snap, nil
}

// Mutate applies fn atomically with respect to other mutations on the same
// user and returns a snapshot of the resulting account. A suspended account
// rejects every mutation.
func (r *AccountRepository) Mutate(ctx context.Context, userID string, fn func(*domain.Account) error) (*domain.Account, error) {
	l := r.lockFor(userID)
	l.Lock()
	defer l.Unlock()

	acc := r.account(userID)
	if acc.Status == domain.AccountSuspended {
		return nil, fmt.Errorf("%w: account %s", repository.ErrAccountSuspended, userID)
	}

	if err := fn(acc); err != nil {
		return nil, err
	}

	snap := *acc
	return &snap, nil
}

// SetStatus flips the status flag. Unlike Mutate it works on suspended
// accounts, otherwise nothing could ever reactivate one.
func (r *AccountRepository) SetStatus(ctx context.Context, userID string, status domain.AccountStatus) (*domain.Account, error) {
	l := r.lockFor(userID)
	l.Lock()
	defer l.Unlock()

	acc := r.account(userID)
	acc.Status = status

	snap := *acc
	return &snap, nil
}

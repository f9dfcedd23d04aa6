package memory

import (
	"context"
	"fmt"
	"sync"

	"broker_ledger/internal/domain"
	"broker_ledger/internal/repository"
)

// TradeRepository stores each user's trades in the order they were opened.
// The internal mutex only protects the map structure; logical atomicity of
// read-then-write sequences comes from the account store's per-user lock.
type TradeRepository struct {
	mu     sync.RWMutex
	trades map[string][]*domain.Trade
}

func NewTradeRepository() *TradeRepository {
	return &TradeRepository{
		trades: make(map[string][]*domain.Trade),
	}
}

func (r *TradeRepository) Append(ctx context.Context, trade *domain.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.trades[trade.UserID] = append(r.trades[trade.UserID], trade)
	return nil
}

// NextID returns max existing ID + 1, or 1 for an empty trade set.
func (r *TradeRepository) NextID(ctx context.Context, userID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var maxID int64
	for _, t := range r.trades[userID] {
		if t.ID > maxID {
			maxID = t.ID
		}
	}
	return maxID + 1, nil
}

func (r *TradeRepository) ByUser(ctx context.Context, userID string) ([]*domain.Trade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	trades := r.trades[userID]
	result := make([]*domain.Trade, len(trades))
	copy(result, trades)
	return result, nil
}

// Mutate applies fn to a stored trade under the write lock and returns a
// snapshot of the result. fn must not block.
func (r *TradeRepository) Mutate(ctx context.Context, userID string, tradeID int64, fn func(*domain.Trade) error) (*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.trades[userID] {
		if t.ID == tradeID {
			if err := fn(t); err != nil {
				return nil, err
			}
			snap := *t
			return &snap, nil
		}
	}
	return nil, fmt.Errorf("%w: trade %d", repository.ErrNotFound, tradeID)
}

// Snapshot returns value copies for read paths that run outside the user's
// critical section.
func (r *TradeRepository) Snapshot(ctx context.Context, userID string) ([]domain.Trade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	trades := r.trades[userID]
	result := make([]domain.Trade, len(trades))
	for i, t := range trades {
		result[i] = *t
	}
	return result, nil
}

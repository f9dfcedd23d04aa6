package memory

import (
	"context"
	"sync"

	"broker_ledger/internal/domain"
)

// LedgerRepository is the append-only audit log. Entries are value types and
// are never mutated after Append.
type LedgerRepository struct {
	mu      sync.RWMutex
	entries map[string][]domain.LedgerEntry
}

func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{
		entries: make(map[string][]domain.LedgerEntry),
	}
}

func (r *LedgerRepository) Append(ctx context.Context, entry domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[entry.UserID] = append(r.entries[entry.UserID], entry)
	return nil
}

func (r *LedgerRepository) ByUser(ctx context.Context, userID string) ([]domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.entries[userID]
	result := make([]domain.LedgerEntry, len(entries))
	copy(result, entries)
	return result, nil
}

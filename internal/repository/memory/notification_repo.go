package memory

import (
	"context"
	"sync"

	"broker_ledger/internal/domain"
)

// NotificationRepository accumulates user-visible messages. A per-user cap
// bounds memory: once full, the oldest message is dropped. capacity <= 0
// means unbounded.
type NotificationRepository struct {
	capacity int

	mu    sync.RWMutex
	notes map[string][]domain.Notification
}

func NewNotificationRepository(capacity int) *NotificationRepository {
	return &NotificationRepository{
		capacity: capacity,
		notes:    make(map[string][]domain.Notification),
	}
}

func (r *NotificationRepository) Append(ctx context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	notes := append(r.notes[n.UserID], n)
	if r.capacity > 0 && len(notes) > r.capacity {
		notes = notes[len(notes)-r.capacity:]
	}
	r.notes[n.UserID] = notes
	return nil
}

func (r *NotificationRepository) ByUser(ctx context.Context, userID string) ([]domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	notes := r.notes[userID]
	result := make([]domain.Notification, len(notes))
	copy(result, notes)
	return result, nil
}

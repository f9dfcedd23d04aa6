package domain

import (
	"time"

	"github.com/google/uuid"
)

type LedgerAction string

const (
	ActionDeposit  LedgerAction = "deposit"
	ActionWithdraw LedgerAction = "withdraw"
	ActionUpgrade  LedgerAction = "upgrade"
	ActionKyc      LedgerAction = "kyc"
	ActionOpen     LedgerAction = "open"
	ActionClose    LedgerAction = "close"
	ActionStatus   LedgerAction = "status"
)

// LedgerEntry is one line of the per-account audit trail. Entries are
// immutable once appended and ordered by append time.
type LedgerEntry struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Action    LedgerAction `json:"action"`
	Details   string       `json:"details"`
	Timestamp time.Time    `json:"timestamp"`
}

func NewLedgerEntry(userID string, action LedgerAction, details string) LedgerEntry {
	return LedgerEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Action:    action,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// Notification is a user-visible message held in the per-account sink.
// Delivery to external channels is a separate, best-effort concern.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func NewNotification(userID, message string) Notification {
	return Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

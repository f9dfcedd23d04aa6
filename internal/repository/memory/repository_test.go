package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"broker_ledger/internal/domain"
	"broker_ledger/internal/repository"
)

func testDefaults() domain.AccountDefaults {
	return domain.AccountDefaults{
		Currency:           "USD",
		DemoBalance:        decimal.NewFromInt(10000),
		DailyWithdrawLimit: decimal.NewFromInt(5000),
	}
}

func TestAccountRepository_CreatesWithDefaults(t *testing.T) {
	repo := NewAccountRepository(testDefaults())

	acc, err := repo.GetOrCreate(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get or create failed: %v", err)
	}
	if acc.UserID != "u1" {
		t.Fatalf("expected user u1, got %s", acc.UserID)
	}
	if !acc.RealBalance.IsZero() {
		t.Fatalf("new real balance must be zero, got %s", acc.RealBalance)
	}
	if !acc.DemoBalance.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("expected demo balance 10000, got %s", acc.DemoBalance)
	}
	if acc.Type != domain.AccountStandard || acc.Status != domain.AccountActive {
		t.Fatalf("unexpected defaults: type=%s status=%s", acc.Type, acc.Status)
	}
	if acc.KycVerified {
		t.Fatalf("new account must not be verified")
	}
	if acc.Currency != "USD" {
		t.Fatalf("expected currency USD, got %s", acc.Currency)
	}
}

func TestAccountRepository_MutateReturnsSnapshot(t *testing.T) {
	repo := NewAccountRepository(testDefaults())
	ctx := context.Background()

	snap, err := repo.Mutate(ctx, "u1", func(acc *domain.Account) error {
		acc.RealBalance = decimal.NewFromInt(100)
		return nil
	})
	if err != nil {
		t.Fatalf("mutate failed: %v", err)
	}

	snap.RealBalance = decimal.NewFromInt(999)

	acc, _ := repo.GetOrCreate(ctx, "u1")
	if !acc.RealBalance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("mutating a snapshot must not touch the store, got %s", acc.RealBalance)
	}
}

func TestAccountRepository_MutateErrorRollsBackNothing(t *testing.T) {
	repo := NewAccountRepository(testDefaults())
	ctx := context.Background()

	wantErr := errors.New("boom")
	_, err := repo.Mutate(ctx, "u1", func(acc *domain.Account) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fn error back, got %v", err)
	}
}

func TestAccountRepository_SuspendedRejectsMutate(t *testing.T) {
	repo := NewAccountRepository(testDefaults())
	ctx := context.Background()

	if _, err := repo.SetStatus(ctx, "u1", domain.AccountSuspended); err != nil {
		t.Fatalf("set status failed: %v", err)
	}

	_, err := repo.Mutate(ctx, "u1", func(acc *domain.Account) error { return nil })
	if !errors.Is(err, repository.ErrAccountSuspended) {
		t.Fatalf("expected ErrAccountSuspended, got %v", err)
	}

	// SetStatus bypasses the gate so the account can come back.
	acc, err := repo.SetStatus(ctx, "u1", domain.AccountActive)
	if err != nil {
		t.Fatalf("reactivate failed: %v", err)
	}
	if acc.Status != domain.AccountActive {
		t.Fatalf("expected active status, got %s", acc.Status)
	}
}

func TestAccountRepository_ConcurrentMutations(t *testing.T) {
	repo := NewAccountRepository(testDefaults())
	ctx := context.Background()

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := repo.Mutate(ctx, "u1", func(acc *domain.Account) error {
				acc.RealBalance = acc.RealBalance.Add(decimal.NewFromInt(1))
				return nil
			})
			if err != nil {
				t.Errorf("mutate failed: %v", err)
			}
		}()
	}
	wg.Wait()

	acc, _ := repo.GetOrCreate(ctx, "u1")
	if !acc.RealBalance.Equal(decimal.NewFromInt(n)) {
		t.Fatalf("expected balance %d, got %s", n, acc.RealBalance)
	}
}

func TestTradeRepository_NextID(t *testing.T) {
	repo := NewTradeRepository()
	ctx := context.Background()

	id, err := repo.NextID(ctx, "u1")
	if err != nil || id != 1 {
		t.Fatalf("expected first ID 1, got %d (%v)", id, err)
	}

	if err := repo.Append(ctx, &domain.Trade{ID: 1, UserID: "u1"}); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := repo.Append(ctx, &domain.Trade{ID: 5, UserID: "u1"}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	id, _ = repo.NextID(ctx, "u1")
	if id != 6 {
		t.Fatalf("expected next ID 6 after gap, got %d", id)
	}

	// IDs are per user.
	id, _ = repo.NextID(ctx, "u2")
	if id != 1 {
		t.Fatalf("expected ID 1 for another user, got %d", id)
	}
}

func TestTradeRepository_MutateUnknownTrade(t *testing.T) {
	repo := NewTradeRepository()

	_, err := repo.Mutate(context.Background(), "u1", 7, func(tr *domain.Trade) error { return nil })
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTradeRepository_MutateAndSnapshot(t *testing.T) {
	repo := NewTradeRepository()
	ctx := context.Background()

	if err := repo.Append(ctx, &domain.Trade{ID: 1, UserID: "u1", Status: domain.TradeOpen}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	updated, err := repo.Mutate(ctx, "u1", 1, func(tr *domain.Trade) error {
		tr.Status = domain.TradeClosed
		return nil
	})
	if err != nil {
		t.Fatalf("mutate failed: %v", err)
	}
	if updated.Status != domain.TradeClosed {
		t.Fatalf("expected closed status, got %s", updated.Status)
	}

	snaps, err := repo.Snapshot(ctx, "u1")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	snaps[0].Status = domain.TradeOpen

	again, _ := repo.Snapshot(ctx, "u1")
	if again[0].Status != domain.TradeClosed {
		t.Fatalf("snapshot copies must not alias the store")
	}
}

func TestLedgerRepository_PreservesOrder(t *testing.T) {
	repo := NewLedgerRepository()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		entry := domain.NewLedgerEntry("u1", domain.ActionDeposit, fmt.Sprintf("entry %d", i))
		if err := repo.Append(ctx, entry); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	entries, err := repo.ByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("by user failed: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	for i, entry := range entries {
		if entry.Details != fmt.Sprintf("entry %d", i) {
			t.Fatalf("entry %d out of order: %q", i, entry.Details)
		}
	}
}

func TestNotificationRepository_CapDropsOldest(t *testing.T) {
	repo := NewNotificationRepository(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		n := domain.NewNotification("u1", fmt.Sprintf("msg %d", i))
		if err := repo.Append(ctx, n); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	notes, err := repo.ByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("by user failed: %v", err)
	}
	if len(notes) != 3 {
		t.Fatalf("expected 3 notes under cap, got %d", len(notes))
	}
	if notes[0].Message != "msg 2" || notes[2].Message != "msg 4" {
		t.Fatalf("expected newest notes kept, got %v", notes)
	}
}

func TestNotificationRepository_UnboundedWhenNoCap(t *testing.T) {
	repo := NewNotificationRepository(0)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := repo.Append(ctx, domain.NewNotification("u1", "msg")); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	notes, _ := repo.ByUser(ctx, "u1")
	if len(notes) != 10 {
		t.Fatalf("expected 10 notes without cap, got %d", len(notes))
	}
}

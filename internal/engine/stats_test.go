package engine_test

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"broker_ledger/internal/domain"
)

func TestComputeStats_EmptyTradeSet(t *testing.T) {
	e := newEngines(t)

	stats, err := e.stats.Compute(context.Background(), "u1")
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	if stats.TotalTrades != 0 || stats.OpenTrades != 0 || stats.ClosedTrades != 0 {
		t.Fatalf("expected zero counts, got %+v", stats)
	}
	assertBalance(t, stats.ProfitLossTotal, decimal.Zero)
	assertBalance(t, stats.NotionalBalance, decimal.Zero)
}

func TestComputeStats_FoldsOverTrades(t *testing.T) {
	e := newEngines(t)
	ctx := context.Background()
	fundVerified(t, e, "u1", 2000)

	buy, err := e.trades.Open(ctx, "u1", openRequest("EURUSD", 500, domain.TradeBuy))
	if err != nil {
		t.Fatalf("open buy failed: %v", err)
	}
	if _, err := e.trades.Open(ctx, "u1", openRequest("GBPUSD", 300, domain.TradeSell)); err != nil {
		t.Fatalf("open sell failed: %v", err)
	}
	if _, err := e.trades.Close(ctx, "u1", buy.ID); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	stats, err := e.stats.Compute(ctx, "u1")
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	if stats.TotalTrades != 2 || stats.OpenTrades != 1 || stats.ClosedTrades != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.BuyTrades != 1 || stats.SellTrades != 1 {
		t.Fatalf("unexpected direction counts: %+v", stats)
	}
	assertBalance(t, stats.ProfitLossTotal, decimal.RequireFromString("25"))
	// Closed buy contributes 500 + 25, the open sell its 300.
	assertBalance(t, stats.NotionalBalance, decimal.RequireFromString("825"))
}

func TestDrainTradeUpdates_NotifiesOncePerTrade(t *testing.T) {
	e := newEngines(t)
	ctx := context.Background()
	fundVerified(t, e, "u1", 1000)

	if _, err := e.trades.Open(ctx, "u1", openRequest("EURUSD", 100, domain.TradeBuy)); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	countUpdates := func() int {
		t.Helper()
		notes, err := e.balance.Notifications(ctx, "u1")
		if err != nil {
			t.Fatalf("notifications failed: %v", err)
		}
		n := 0
		for _, note := range notes {
			if strings.Contains(note.Message, "updated") {
				n++
			}
		}
		return n
	}

	if err := e.stats.DrainTradeUpdates(ctx, "u1"); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if got := countUpdates(); got != 1 {
		t.Fatalf("expected 1 update notification, got %d", got)
	}

	if err := e.stats.DrainTradeUpdates(ctx, "u1"); err != nil {
		t.Fatalf("second drain failed: %v", err)
	}
	if got := countUpdates(); got != 1 {
		t.Fatalf("drain must be idempotent, got %d update notifications", got)
	}
}

func TestDrainTradeUpdates_OnlyNewTrades(t *testing.T) {
	e := newEngines(t)
	ctx := context.Background()
	fundVerified(t, e, "u1", 1000)

	if _, err := e.trades.Open(ctx, "u1", openRequest("EURUSD", 100, domain.TradeBuy)); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := e.stats.DrainTradeUpdates(ctx, "u1"); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	if _, err := e.trades.Open(ctx, "u1", openRequest("GBPUSD", 100, domain.TradeBuy)); err != nil {
		t.Fatalf("second open failed: %v", err)
	}
	if err := e.stats.DrainTradeUpdates(ctx, "u1"); err != nil {
		t.Fatalf("second drain failed: %v", err)
	}

	notes, _ := e.balance.Notifications(ctx, "u1")
	updates := 0
	for _, note := range notes {
		if strings.Contains(note.Message, "updated") {
			updates++
		}
	}
	if updates != 2 {
		t.Fatalf("expected one update per trade, got %d", updates)
	}
}

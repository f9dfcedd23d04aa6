package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"broker_ledger/internal/domain"
	"broker_ledger/internal/repository"
)

// StatsAggregator derives dashboard metrics by folding over a user's trade
// set on demand. Compute is pure; the one-time "trade updated" notifications
// the dashboard emits live in DrainTradeUpdates so the read path stays
// side-effect free.
type StatsAggregator struct {
	balance *BalanceEngine
	trades  repository.TradeRepository
	logger  *slog.Logger
}

func NewStatsAggregator(balance *BalanceEngine, trades repository.TradeRepository, logger *slog.Logger) *StatsAggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsAggregator{balance: balance, trades: trades, logger: logger}
}

// Compute folds counts and totals over the current trade set. The balance
// figure is notional: closed trades contribute amount + P/L, open trades
// contribute amount. It is not the account's real balance.
func (s *StatsAggregator) Compute(ctx context.Context, userID string) (*domain.Stats, error) {
	trades, err := s.trades.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &domain.Stats{
		ProfitLossTotal: decimal.Zero,
		NotionalBalance: decimal.Zero,
		LastUpdate:      time.Now().UTC(),
	}
	for _, t := range trades {
		stats.TotalTrades++
		switch t.Status {
		case domain.TradeOpen:
			stats.OpenTrades++
			stats.NotionalBalance = stats.NotionalBalance.Add(t.AmountUSD)
		case domain.TradeClosed:
			stats.ClosedTrades++
			stats.ProfitLossTotal = stats.ProfitLossTotal.Add(t.ProfitLoss)
			stats.NotionalBalance = stats.NotionalBalance.Add(t.AmountUSD).Add(t.ProfitLoss)
		}
		switch t.Type {
		case domain.TradeBuy:
			stats.BuyTrades++
		case domain.TradeSell:
			stats.SellTrades++
		}
	}
	return stats, nil
}

// DrainTradeUpdates emits the "trade updated" notification once per trade,
// flagging each inside the user's critical section so concurrent drains
// cannot notify twice.
func (s *StatsAggregator) DrainTradeUpdates(ctx context.Context, userID string) error {
	type update struct {
		symbol    string
		tradeType domain.TradeType
		status    domain.TradeStatus
		pl        decimal.Decimal
	}
	var pending []update

	_, err := s.balance.withAccount(ctx, userID, func(*domain.Account) error {
		trades, err := s.trades.ByUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, t := range trades {
			if t.Notified {
				continue
			}
			flagged, err := s.trades.Mutate(ctx, userID, t.ID, func(tr *domain.Trade) error {
				tr.Notified = true
				return nil
			})
			if err != nil {
				return err
			}
			pending = append(pending, update{
				symbol:    flagged.Symbol,
				tradeType: flagged.Type,
				status:    flagged.Status,
				pl:        flagged.ProfitLoss,
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, u := range pending {
		s.balance.appendNotification(ctx, userID,
			fmt.Sprintf("Trade on %s (%s) updated, status: %s, profit/loss: %s USD",
				u.symbol, u.tradeType, u.status, u.pl))
	}
	if len(pending) > 0 {
		s.logger.InfoContext(ctx, "trade update notifications drained",
			slog.String("user_id", userID),
			slog.Int("count", len(pending)))
	}
	return nil
}

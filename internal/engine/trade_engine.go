package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"broker_ledger/internal/domain"
	"broker_ledger/internal/repository"
)

// TradeEngine opens and closes positions against the real wallet. It never
// locks accounts itself: all mutations go through the balance engine's
// per-user primitive, so a user's balance and trade set form one critical
// section.
type TradeEngine struct {
	balance *BalanceEngine
	trades  repository.TradeRepository
	rates   *RateTable
	policy  *TradePolicy
	logger  *slog.Logger

	lowBalanceThreshold decimal.Decimal
	returnRate          decimal.Decimal
}

func NewTradeEngine(
	balance *BalanceEngine,
	trades repository.TradeRepository,
	rates *RateTable,
	lowBalanceThreshold decimal.Decimal,
	returnRate decimal.Decimal,
	logger *slog.Logger,
) *TradeEngine {
	if logger == nil {
		logger = slog.Default()
	}

	return &TradeEngine{
		balance:             balance,
		trades:              trades,
		rates:               rates,
		policy:              NewTradePolicy(rates),
		logger:              logger,
		lowBalanceThreshold: lowBalanceThreshold,
		returnRate:          returnRate,
	}
}

// Open validates the request, then atomically: checks KYC, funds and the
// hedging policy, debits the real balance by the USD amount, assigns the
// next sequential trade ID and appends the trade.
func (e *TradeEngine) Open(ctx context.Context, userID string, req OpenTradeRequest) (*domain.Trade, error) {
	if err := e.policy.ValidateOpen(req); err != nil {
		return nil, err
	}

	amountUSD, err := e.rates.ToUSD(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	var (
		trade      domain.Trade
		lowBalance bool
	)
	_, err = e.balance.withAccount(ctx, userID, func(acc *domain.Account) error {
		if !acc.KycVerified {
			return fmt.Errorf("%w: trading requires a verified account", ErrKycRequired)
		}
		if amountUSD.GreaterThan(acc.RealBalance) {
			return fmt.Errorf("%w: %s required, %s available", repository.ErrInsufficientFunds, amountUSD, acc.RealBalance)
		}

		open, err := e.trades.ByUser(ctx, userID)
		if err != nil {
			return err
		}
		if err := e.policy.CheckHedging(open, req.Symbol, req.Type, acc.Type); err != nil {
			return err
		}

		id, err := e.trades.NextID(ctx, userID)
		if err != nil {
			return err
		}

		acc.RealBalance = acc.RealBalance.Sub(amountUSD)
		lowBalance = acc.RealBalance.LessThan(e.lowBalanceThreshold)

		trade = domain.Trade{
			ID:          id,
			UserID:      userID,
			Symbol:      req.Symbol,
			Amount:      req.Amount,
			Currency:    req.Currency,
			AmountUSD:   amountUSD,
			Type:        req.Type,
			Leverage:    req.Leverage,
			StopLoss:    req.StopLoss,
			TakeProfit:  req.TakeProfit,
			Status:      domain.TradeOpen,
			ProfitLoss:  decimal.Zero,
			AccountType: acc.Type,
			OpenedAt:    time.Now().UTC(),
		}
		stored := trade
		return e.trades.Append(ctx, &stored)
	})
	if err != nil {
		return nil, err
	}

	if lowBalance {
		e.balance.appendNotification(ctx, userID,
			"Warning: your real balance is very low after opening this trade")
	}
	e.balance.record(ctx, userID, domain.ActionOpen,
		fmt.Sprintf("%s %s %s %s (leverage %s)", trade.Type, trade.Symbol, trade.Amount, trade.Currency, trade.Leverage),
		fmt.Sprintf("Opened %s trade on %s for %s %s (leverage %s)", trade.Type, trade.Symbol, trade.Amount, trade.Currency, trade.Leverage))

	e.logger.InfoContext(ctx, "trade opened",
		slog.String("user_id", userID),
		slog.Int64("trade_id", trade.ID),
		slog.String("symbol", trade.Symbol),
		slog.String("type", string(trade.Type)),
		slog.String("amount_usd", trade.AmountUSD.String()))
	return &trade, nil
}

// Close settles an open trade at the fixed return rate: buys gain, sells
// lose. The trade flips to closed exactly once; the USD amount plus P/L is
// credited back to the real balance in the same critical section.
func (e *TradeEngine) Close(ctx context.Context, userID string, tradeID int64) (*domain.Trade, error) {
	var closed domain.Trade
	_, err := e.balance.withAccount(ctx, userID, func(acc *domain.Account) error {
		updated, err := e.trades.Mutate(ctx, userID, tradeID, func(t *domain.Trade) error {
			if t.Status == domain.TradeClosed {
				return fmt.Errorf("%w: trade %d", ErrTradeAlreadyClosed, tradeID)
			}
			pl := t.AmountUSD.Mul(e.returnRate)
			if t.Type == domain.TradeSell {
				pl = pl.Neg()
			}
			now := time.Now().UTC()
			t.ProfitLoss = pl
			t.Status = domain.TradeClosed
			t.ClosedAt = &now
			return nil
		})
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: trade %d", ErrTradeNotFound, tradeID)
		}
		if err != nil {
			return err
		}

		acc.RealBalance = acc.RealBalance.Add(updated.AmountUSD).Add(updated.ProfitLoss)
		closed = *updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.balance.record(ctx, userID, domain.ActionClose,
		fmt.Sprintf("profit/loss %s (%s)", closed.ProfitLoss, closed.Currency),
		fmt.Sprintf("Closed trade on %s, profit/loss: %s USD", closed.Symbol, closed.ProfitLoss))

	e.logger.InfoContext(ctx, "trade closed",
		slog.String("user_id", userID),
		slog.Int64("trade_id", closed.ID),
		slog.String("profit_loss", closed.ProfitLoss.String()))
	return &closed, nil
}

// List returns value copies of the user's trades in open order.
func (e *TradeEngine) List(ctx context.Context, userID string) ([]domain.Trade, error) {
	return e.trades.Snapshot(ctx, userID)
}

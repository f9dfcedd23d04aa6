package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"broker_ledger/internal/domain"
	"broker_ledger/pkg/validator"
)

// OpenTradeRequest carries the parameters of an open-trade operation.
// StopLoss and TakeProfit are accepted and stored but never evaluated
// against prices; no monitoring exists in this engine.
type OpenTradeRequest struct {
	Symbol     string
	Amount     decimal.Decimal
	Type       domain.TradeType
	Leverage   decimal.Decimal
	Currency   string
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal
}

// TradePolicy screens trade requests before any balance is touched: request
// shape, supported currency, and the hedging restriction for standard
// accounts.
type TradePolicy struct {
	rates     *RateTable
	validator *validator.RequestValidator
}

func NewTradePolicy(rates *RateTable) *TradePolicy {
	return &TradePolicy{
		rates:     rates,
		validator: validator.NewRequestValidator(),
	}
}

func (p *TradePolicy) ValidateOpen(req OpenTradeRequest) error {
	if err := p.validator.ValidateOpenTrade(req.Symbol, req.Amount, req.Type, req.Leverage, req.Currency); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTradeRequest, err)
	}
	if !p.rates.Supported(req.Currency) {
		return fmt.Errorf("%w: unsupported currency %s", ErrInvalidTradeRequest, req.Currency)
	}
	return nil
}

// CheckHedging rejects an opposing position on a symbol where the most
// recently opened trade is still open with the other direction, unless the
// account is vip. Callers hold the user's critical section.
func (p *TradePolicy) CheckHedging(trades []*domain.Trade, symbol string, tradeType domain.TradeType, accountType domain.AccountType) error {
	if accountType == domain.AccountVIP {
		return nil
	}

	var last *domain.Trade
	for _, t := range trades {
		if t.Symbol == symbol && t.Status == domain.TradeOpen {
			last = t
		}
	}
	if last != nil && last.Type != tradeType {
		return fmt.Errorf("%w: open %s position exists on %s", ErrHedgingNotAllowed, last.Type, symbol)
	}
	return nil
}

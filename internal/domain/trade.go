package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TradeType string

const (
	TradeBuy  TradeType = "buy"
	TradeSell TradeType = "sell"
)

func (t TradeType) Valid() bool {
	return t == TradeBuy || t == TradeSell
}

type TradeStatus string

const (
	TradeOpen   TradeStatus = "open"
	TradeClosed TradeStatus = "closed"
)

// Trade is a position opened against the real wallet. IDs are sequential per
// user. A trade transitions open -> closed exactly once and is never deleted.
type Trade struct {
	ID          int64            `json:"trade_id"`
	UserID      string           `json:"user_id"`
	Symbol      string           `json:"symbol"`
	Amount      decimal.Decimal  `json:"amount"`
	Currency    string           `json:"currency"`
	AmountUSD   decimal.Decimal  `json:"amount_usd"`
	Type        TradeType        `json:"type"`
	Leverage    decimal.Decimal  `json:"leverage"`
	StopLoss    *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit  *decimal.Decimal `json:"take_profit,omitempty"`
	Status      TradeStatus      `json:"status"`
	ProfitLoss  decimal.Decimal  `json:"profit_loss"`
	AccountType AccountType      `json:"account_type"`
	OpenedAt    time.Time        `json:"opened_at"`
	ClosedAt    *time.Time       `json:"closed_at,omitempty"`

	// Notified marks that the dashboard has already emitted the one-time
	// "trade updated" notification for this trade.
	Notified bool `json:"-"`
}

// Stats is the dashboard aggregate, recomputed on demand from the trade set.
// NotionalBalance is a trade-derived exposure figure, not the account's real
// balance: closed trades contribute amount + P/L, open trades contribute
// amount.
type Stats struct {
	TotalTrades     int             `json:"total_trades"`
	OpenTrades      int             `json:"open_trades"`
	ClosedTrades    int             `json:"closed_trades"`
	BuyTrades       int             `json:"buy_trades"`
	SellTrades      int             `json:"sell_trades"`
	ProfitLossTotal decimal.Decimal `json:"profit_loss_total"`
	NotionalBalance decimal.Decimal `json:"balance"`
	LastUpdate      time.Time       `json:"last_update"`
}

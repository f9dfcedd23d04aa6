package engine

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// RateTable converts supported currencies to USD at static rates. Real
// market data is a collaborator concern; the table never changes at runtime.
type RateTable struct {
	rates map[string]decimal.Decimal
}

func NewRateTable(rates map[string]decimal.Decimal) *RateTable {
	table := make(map[string]decimal.Decimal, len(rates))
	for code, rate := range rates {
		table[code] = rate
	}
	return &RateTable{rates: table}
}

// DefaultRates is the built-in table used when the config provides none.
func DefaultRates() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"USD": decimal.NewFromInt(1),
		"EUR": decimal.RequireFromString("1.1"),
		"BTC": decimal.NewFromInt(30000),
		"ETH": decimal.NewFromInt(2000),
	}
}

func (t *RateTable) Supported(code string) bool {
	_, ok := t.rates[code]
	return ok
}

func (t *RateTable) ToUSD(amount decimal.Decimal, code string) (decimal.Decimal, error) {
	rate, ok := t.rates[code]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unsupported currency %s", ErrInvalidTradeRequest, code)
	}
	return amount.Mul(rate), nil
}

// Quote is one row of the market overview.
type Quote struct {
	Currency string          `json:"currency"`
	RateUSD  decimal.Decimal `json:"rate_usd"`
}

// Snapshot returns the table as a stable, sorted market overview.
func (t *RateTable) Snapshot() []Quote {
	quotes := make([]Quote, 0, len(t.rates))
	for code, rate := range t.rates {
		quotes = append(quotes, Quote{Currency: code, RateUSD: rate})
	}
	sort.Slice(quotes, func(i, j int) bool {
		return quotes[i].Currency < quotes[j].Currency
	})
	return quotes
}

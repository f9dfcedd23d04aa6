package validator

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"broker_ledger/internal/domain"
)

func TestValidateAmount(t *testing.T) {
	v := NewRequestValidator()

	if err := v.ValidateAmount(decimal.NewFromInt(10)); err != nil {
		t.Fatalf("positive amount should pass: %v", err)
	}
	if err := v.ValidateAmount(decimal.Zero); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}
	if err := v.ValidateAmount(decimal.NewFromInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative, got %v", err)
	}
}

func TestValidateKind(t *testing.T) {
	v := NewRequestValidator()

	if err := v.ValidateKind(domain.KindReal); err != nil {
		t.Fatalf("real kind should pass: %v", err)
	}
	if err := v.ValidateKind(domain.KindDemo); err != nil {
		t.Fatalf("demo kind should pass: %v", err)
	}
	if err := v.ValidateKind("margin"); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}

func TestValidateOpenTrade(t *testing.T) {
	v := NewRequestValidator()

	one := decimal.NewFromInt(1)
	ten := decimal.NewFromInt(10)

	cases := []struct {
		name     string
		symbol   string
		amount   decimal.Decimal
		kind     domain.TradeType
		leverage decimal.Decimal
		currency string
		wantErr  error
	}{
		{"valid", "EURUSD", ten, domain.TradeBuy, one, "USD", nil},
		{"valid sell", "BTCUSD", ten, domain.TradeSell, decimal.NewFromInt(10), "EUR", nil},
		{"empty symbol", "", ten, domain.TradeBuy, one, "USD", ErrInvalidSymbol},
		{"zero amount", "EURUSD", decimal.Zero, domain.TradeBuy, one, "USD", ErrInvalidAmount},
		{"unknown type", "EURUSD", ten, "hold", one, "USD", ErrInvalidTradeType},
		{"leverage below one", "EURUSD", ten, domain.TradeBuy, decimal.RequireFromString("0.5"), "USD", ErrInvalidLeverage},
		{"lowercase currency", "EURUSD", ten, domain.TradeBuy, one, "usd", ErrInvalidCurrency},
		{"long currency", "EURUSD", ten, domain.TradeBuy, one, "DOGE", ErrInvalidCurrency},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.ValidateOpenTrade(tc.symbol, tc.amount, tc.kind, tc.leverage, tc.currency)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("expected pass, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestValidateOpenTrade_JoinsAllErrors(t *testing.T) {
	v := NewRequestValidator()

	err := v.ValidateOpenTrade("", decimal.Zero, "hold", decimal.Zero, "x")
	for _, want := range []error{ErrInvalidSymbol, ErrInvalidAmount, ErrInvalidTradeType, ErrInvalidLeverage, ErrInvalidCurrency} {
		if !errors.Is(err, want) {
			t.Fatalf("expected %v in joined error, got %v", want, err)
		}
	}
}

package validator

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"broker_ledger/internal/domain"
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidCurrency  = errors.New("invalid currency")
	ErrInvalidKind      = errors.New("invalid account kind")
	ErrInvalidSymbol    = errors.New("invalid symbol")
	ErrInvalidTradeType = errors.New("invalid trade type")
	ErrInvalidLeverage  = errors.New("invalid leverage")
)

// RequestValidator checks the shape of incoming operation parameters before
// any account state is touched.
type RequestValidator struct {
	currencyRegex *regexp.Regexp
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{
		currencyRegex: regexp.MustCompile(`^[A-Z]{3}$`),
	}
}

func (v *RequestValidator) ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return nil
}

func (v *RequestValidator) ValidateKind(kind domain.AccountKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return nil
}

func (v *RequestValidator) ValidateOpenTrade(symbol string, amount decimal.Decimal, tradeType domain.TradeType, leverage decimal.Decimal, currency string) error {
	var errs []error

	if symbol == "" {
		errs = append(errs, ErrInvalidSymbol)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		errs = append(errs, ErrInvalidAmount)
	}
	if !tradeType.Valid() {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidTradeType, tradeType))
	}
	if leverage.LessThan(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidLeverage, leverage))
	}
	if !v.currencyRegex.MatchString(currency) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidCurrency, currency))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

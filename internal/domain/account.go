package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountStandard AccountType = "standard"
	AccountVIP      AccountType = "vip"
)

type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
)

// AccountKind selects which wallet of an account an operation targets.
type AccountKind string

const (
	KindReal AccountKind = "real"
	KindDemo AccountKind = "demo"
)

func (k AccountKind) Valid() bool {
	return k == KindReal || k == KindDemo
}

type Account struct {
	UserID             string          `json:"user_id"`
	RealBalance        decimal.Decimal `json:"real"`
	DemoBalance        decimal.Decimal `json:"demo"`
	Type               AccountType     `json:"account_type"`
	Status             AccountStatus   `json:"status"`
	Currency           string          `json:"currency"`
	KycVerified        bool            `json:"kyc_verified"`
	DailyWithdrawLimit decimal.Decimal `json:"daily_withdraw_limit"`
	CreatedAt          time.Time       `json:"created_at"`
}

// AccountDefaults seeds a lazily created account.
type AccountDefaults struct {
	Currency           string
	DemoBalance        decimal.Decimal
	DailyWithdrawLimit decimal.Decimal
}

func (a *Account) Balance(k AccountKind) decimal.Decimal {
	if k == KindDemo {
		return a.DemoBalance
	}
	return a.RealBalance
}

func (a *Account) SetBalance(k AccountKind, v decimal.Decimal) {
	if k == KindDemo {
		a.DemoBalance = v
		return
	}
	a.RealBalance = v
}

package engine

import "errors"

// Engine-level failures. Together with the repository sentinels
// (ErrNotFound, ErrInsufficientFunds, ErrAccountSuspended) these form the
// complete caller-visible error set; all are recoverable and never leave
// partial state behind.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidTradeRequest = errors.New("invalid trade request")
	ErrKycRequired         = errors.New("kyc verification required")
	ErrLimitExceeded       = errors.New("withdrawal limit exceeded")
	ErrHedgingNotAllowed   = errors.New("hedging not allowed")
	ErrTradeNotFound       = errors.New("trade not found")
	ErrTradeAlreadyClosed  = errors.New("trade already closed")
)

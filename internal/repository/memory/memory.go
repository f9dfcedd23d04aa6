package memory

import (
	"broker_ledger/internal/repository"
)

var (
	_ repository.AccountRepository      = (*AccountRepository)(nil)
	_ repository.TradeRepository        = (*TradeRepository)(nil)
	_ repository.LedgerRepository       = (*LedgerRepository)(nil)
	_ repository.NotificationRepository = (*NotificationRepository)(nil)
)

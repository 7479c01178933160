package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const TransactionWithdrawal TransactionType = "withdrawal"

type TransactionStatus string

// Settlement happens out of band; the ledger only ever records pending.
const TransactionPending TransactionStatus = "pending"

// Transaction is an immutable ledger entry.
type Transaction struct {
	ID          string            `json:"tx_id"`
	UserID      string            `json:"user_id"`
	Type        TransactionType   `json:"type"`
	Amount      decimal.Decimal   `json:"amount"`
	Destination string            `json:"address"`
	Status      TransactionStatus `json:"status"`
	CreatedAt   time.Time         `json:"timestamp"`
}

// WithdrawalRequested is handed to the notifier before a withdrawal commits.
type WithdrawalRequested struct {
	UserID      string
	Username    string
	Amount      decimal.Decimal
	Destination string
	RequestedAt time.Time
}

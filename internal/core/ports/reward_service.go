package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
)

// SyncView is the accrual state returned to the client on every sync.
type SyncView struct {
	UserID      string
	Balance     decimal.Decimal
	Rate        decimal.Decimal
	Periods     int64 // periods credited by this call
	Progress    float64
	TimeToNext  time.Duration
	NextSyncAt  time.Time
	TotalEarned decimal.Decimal
}

// AccrualService is the Accrual Engine.
type AccrualService interface {
	Sync(ctx context.Context, userID string) (*SyncView, error)
}

// ActivationResult acknowledges a successful activation.
type ActivationResult struct {
	UserID      string
	ActivatedAt time.Time
}

// ActivationService is the Activation Workflow.
type ActivationService interface {
	Activate(ctx context.Context, code, userID string) (*ActivationResult, error)
}

// WithdrawInput carries a withdrawal request from the transport layer.
type WithdrawInput struct {
	UserID         string
	Destination    string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// TxReceipt is returned after a withdrawal is committed to the ledger.
type TxReceipt struct {
	TxID      string
	Amount    decimal.Decimal
	Balance   decimal.Decimal
	Status    domain.TransactionStatus
	CreatedAt time.Time
	// Replayed is true when the idempotency key matched an earlier withdrawal.
	Replayed bool
}

// WithdrawalService is the Withdrawal Ledger.
type WithdrawalService interface {
	Withdraw(ctx context.Context, in WithdrawInput) (*TxReceipt, error)
	History(ctx context.Context, userID string) ([]*domain.Transaction, error)
}

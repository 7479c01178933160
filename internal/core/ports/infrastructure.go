package ports

import (
	"context"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
)

// Transactor runs fn as a single unit of work. Repository calls made with the
// ctx handed to fn join the transaction; if fn returns an error nothing it
// wrote is kept.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// AccountLocker serializes operations on a single account. Locks on
// different accounts never block each other.
type AccountLocker interface {
	Lock(ctx context.Context, userID string) (unlock func(), err error)
}

// Notifier delivers the withdrawal notification that gates a ledger commit.
type Notifier interface {
	Notify(ctx context.Context, event domain.WithdrawalRequested) error
}

// IdempotencyStore remembers which transaction an idempotency key produced.
type IdempotencyStore interface {
	Lookup(ctx context.Context, key string) (txID string, found bool, err error)
	Remember(ctx context.Context, key, txID string) error
}

package ports

import (
	"context"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
)

// LedgerRepository is the append-only withdrawal ledger.
type LedgerRepository interface {
	Append(ctx context.Context, tx *domain.Transaction) error
	Get(ctx context.Context, id string) (*domain.Transaction, error)
	// ListByUser returns the user's transactions, newest first.
	ListByUser(ctx context.Context, userID string) ([]*domain.Transaction, error)
}

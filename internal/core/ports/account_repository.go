package ports

import (
	"context"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
)

// AccountRepository is the durable Account Store.
type AccountRepository interface {
	// Create inserts a new account. Returns domain.ErrUsernameTaken when the
	// username is already registered.
	Create(ctx context.Context, account *domain.Account) error
	Get(ctx context.Context, id string) (*domain.Account, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	// CompareAndUpdate persists account only if the stored version still equals
	// expectedVersion, then sets account.Version to the new version.
	// Returns domain.ErrVersionConflict on a stale write and
	// domain.ErrAccountNotFound when the account is gone.
	CompareAndUpdate(ctx context.Context, expectedVersion int64, account *domain.Account) error
	// List returns all accounts, newest first.
	List(ctx context.Context) ([]*domain.Account, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*domain.AccountStats, error)
}

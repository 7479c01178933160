package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
)

// UpdateAccountInput carries an administrative overwrite of account fields.
// Nil pointers and empty strings leave the stored value unchanged.
type UpdateAccountInput struct {
	ID       string
	Balance  *decimal.Decimal
	Verified *bool
	Tier     domain.Tier
	Password string
}

// AdminService is the privileged surface. Its writes go straight to the
// Account Store and bypass accrual math.
type AdminService interface {
	Authenticate(ctx context.Context, username, password string) (string, error)
	IssueCode(ctx context.Context) (*domain.OneTimeCode, error)
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
	UpdateAccount(ctx context.Context, in UpdateAccountInput) (*domain.Account, error)
	DeleteAccount(ctx context.Context, id string) error
	Stats(ctx context.Context) (*domain.AccountStats, error)
	ListAuditEvents(ctx context.Context, limit int) ([]*domain.AuditEvent, error)
	ClearAuditEvents(ctx context.Context) error
}

package ports

import (
	"context"
	"time"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
)

// CodeRegistry stores one-time activation codes.
type CodeRegistry interface {
	// Issue persists a freshly generated code. Returns domain.ErrCodeExists
	// when the value collides with an existing code.
	Issue(ctx context.Context, code *domain.OneTimeCode) error
	// TryConsume atomically flips a redeemable code to consumed on behalf of
	// userID. It reports false, with a nil error, when no redeemable code
	// matches value.
	TryConsume(ctx context.Context, value, userID string, now time.Time) (bool, error)
}

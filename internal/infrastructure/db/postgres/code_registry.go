package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
)

type CodeRegistry struct {
	pool *pgxpool.Pool
}

func NewCodeRegistry(pool *pgxpool.Pool) *CodeRegistry {
	return &CodeRegistry{pool: pool}
}

func (r *CodeRegistry) Issue(ctx context.Context, code *domain.OneTimeCode) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO activation_codes (code, status, created_at, expires_at) VALUES ($1, $2, $3, $4)`,
		code.Value, string(code.Status), code.CreatedAt, code.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCodeExists
		}
		return fmt.Errorf("insert code: %w", err)
	}
	return nil
}

// TryConsume is a single conditional UPDATE; the row lock it takes makes
// concurrent consumers of one code serialize, and only the first matches.
func (r *CodeRegistry) TryConsume(ctx context.Context, value, userID string, now time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE activation_codes
		SET status = $2, consumed_by = $3, consumed_at = $4
		WHERE code = $1 AND status = $5 AND (expires_at IS NULL OR expires_at > $4)`,
		value, string(domain.CodeConsumed), userID, now, string(domain.CodeActive),
	)
	if err != nil {
		return false, fmt.Errorf("consume code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

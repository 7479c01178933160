package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
)

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Insert(ctx context.Context, event *domain.AuditEvent) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO system_logs (event_type, user_id, details, created_at) VALUES ($1, $2, $3, $4)`,
		string(event.Type), event.UserID, event.Details, event.Timestamp,
	)
	return err
}

// List returns the newest events first; limit <= 0 returns everything.
func (r *AuditRepository) List(ctx context.Context, limit int) ([]*domain.AuditEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `SELECT event_type, user_id, details, created_at FROM system_logs ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []*domain.AuditEvent
	for rows.Next() {
		var (
			e   domain.AuditEvent
			typ string
		)
		if err := rows.Scan(&typ, &e.UserID, &e.Details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("list audit events: %w", err)
		}
		e.Type = domain.AuditEventType(typ)
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *AuditRepository) Clear(ctx context.Context) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM system_logs`)
	return err
}

package ports

import (
	"context"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
)

// AuditRepository persists system log entries.
type AuditRepository interface {
	Insert(ctx context.Context, event *domain.AuditEvent) error
	// List returns at most limit events, newest first.
	List(ctx context.Context, limit int) ([]*domain.AuditEvent, error)
	Clear(ctx context.Context) error
}

// AuditRecorder accepts audit events from the services. Implementations may
// write asynchronously; recording never fails the calling operation.
type AuditRecorder interface {
	Record(ctx context.Context, event domain.AuditEvent)
}

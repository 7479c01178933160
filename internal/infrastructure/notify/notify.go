// Package notify delivers the withdrawal notification that must succeed
// before a withdrawal is committed to the ledger.
package notify

import (
	"context"
	"time"

	"github.com/xtremeprotocol/accrual-service/internal/api/metrics"
	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
	"github.com/xtremeprotocol/accrual-service/internal/core/ports"
)

// Measured records delivery latency and outcome for next under name.
func Measured(name string, next ports.Notifier) ports.Notifier {
	return &measured{name: name, next: next}
}

type measured struct {
	name string
	next ports.Notifier
}

func (m *measured) Notify(ctx context.Context, event domain.WithdrawalRequested) error {
	start := time.Now()
	err := m.next.Notify(ctx, event)

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.NotificationDuration.WithLabelValues(m.name, result).Observe(time.Since(start).Seconds())
	return err
}

// payload is the wire form shared by the broker and mail notifiers.
type payload struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Amount      string    `json:"amount"`
	Destination string    `json:"destination"`
	RequestedAt time.Time `json:"requested_at"`
}

func newPayload(e domain.WithdrawalRequested) payload {
	return payload{
		UserID:      e.UserID,
		Username:    e.Username,
		Amount:      e.Amount.StringFixed(2),
		Destination: e.Destination,
		RequestedAt: e.RequestedAt.UTC(),
	}
}

package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
)

// LogNotifier writes the notification to the service log. It is the default
// for development, where no operator inbox or broker is available.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, event domain.WithdrawalRequested) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.log.Info().
		Str("user_id", event.UserID).
		Str("username", event.Username).
		Str("amount", event.Amount.StringFixed(2)).
		Str("destination", event.Destination).
		Time("requested_at", event.RequestedAt).
		Msg("withdrawal requested")
	return nil
}

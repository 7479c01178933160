package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
)

const withdrawalRoutingKey = "withdrawal.requested"

// AMQPConfig holds the broker settings.
type AMQPConfig struct {
	URL      string
	Exchange string
}

// AMQPNotifier publishes withdrawal requests to a durable topic exchange and
// waits for the broker to confirm each message. A nack or a missing confirm
// before the ctx deadline fails the notification.
type AMQPNotifier struct {
	cfg  AMQPConfig
	log  zerolog.Logger
	mu   sync.Mutex
	conn *amqp091.Connection
	ch   *amqp091.Channel
}

func NewAMQPNotifier(cfg AMQPConfig, log zerolog.Logger) (*AMQPNotifier, error) {
	if cfg.Exchange == "" {
		cfg.Exchange = "accrual_events"
	}
	conn, err := amqp091.DialConfig(cfg.URL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	n := &AMQPNotifier{cfg: cfg, log: log, conn: conn}
	if err := n.openChannel(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return n, nil
}

// openChannel must be called with n.mu held or before n is shared.
func (n *AMQPNotifier) openChannel() error {
	ch, err := n.conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("amqp confirm mode: %w", err)
	}
	if err := ch.ExchangeDeclare(n.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("amqp exchange declare: %w", err)
	}
	n.ch = ch
	return nil
}

func (n *AMQPNotifier) Notify(ctx context.Context, event domain.WithdrawalRequested) error {
	body, err := json.Marshal(newPayload(event))
	if err != nil {
		return fmt.Errorf("amqp encode: %w", err)
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    event.RequestedAt,
		Body:         body,
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ch == nil || n.ch.IsClosed() {
		n.log.Warn().Msg("amqp channel closed, reopening")
		if err := n.openChannel(); err != nil {
			return err
		}
	}

	confirm, err := n.ch.PublishWithDeferredConfirmWithContext(ctx, n.cfg.Exchange, withdrawalRoutingKey, true, false, msg)
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("amqp confirm: %w", err)
	}
	if !acked {
		return errors.New("amqp confirm: message nacked by broker")
	}
	return nil
}

// Ping reports whether the broker connection is still open.
func (n *AMQPNotifier) Ping(context.Context) error {
	if n.conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	return nil
}

func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ch != nil {
		_ = n.ch.Close()
	}
	return n.conn.Close()
}

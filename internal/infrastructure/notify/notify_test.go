package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
)

func sampleEvent() domain.WithdrawalRequested {
	return domain.WithdrawalRequested{
		UserID:      "xtr_1a2b3c4d",
		Username:    "alice",
		Amount:      decimal.RequireFromString("12.5"),
		Destination: `<script>alert("x")</script>`,
		RequestedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

type stubNotifier struct{ err error }

func (s stubNotifier) Notify(context.Context, domain.WithdrawalRequested) error { return s.err }

func TestMeasured_PassesThroughResult(t *testing.T) {
	require.NoError(t, Measured("stub", stubNotifier{}).Notify(context.Background(), sampleEvent()))

	boom := errors.New("boom")
	require.ErrorIs(t, Measured("stub", stubNotifier{err: boom}).Notify(context.Background(), sampleEvent()), boom)
}

func TestLogNotifier_RespectsCancelledContext(t *testing.T) {
	n := NewLogNotifier(zerolog.Nop())
	require.NoError(t, n.Notify(context.Background(), sampleEvent()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, n.Notify(ctx, sampleEvent()), context.Canceled)
}

func TestPayload_FormatsAmount(t *testing.T) {
	raw, err := json.Marshal(newPayload(sampleEvent()))
	require.NoError(t, err)
	require.Contains(t, string(raw), `"amount":"12.50"`)
	require.Contains(t, string(raw), `"user_id":"xtr_1a2b3c4d"`)
}

func TestSMTPNotifier_BuildMessage(t *testing.T) {
	n, err := NewSMTPNotifier(SMTPConfig{Host: "mail.local", From: "bot@local", To: []string{"ops@local"}})
	require.NoError(t, err)

	ev := sampleEvent()
	ev.Username = "mallory\r\nBcc: victim@local"
	msg, err := n.buildMessage(ev)
	require.NoError(t, err)

	text := string(msg)
	headers := strings.SplitN(text, "\r\n\r\n", 2)[0]
	require.Contains(t, headers, "Subject: [WITHDRAWAL] $12.50 - mallory  Bcc: victim@local")
	require.NotContains(t, headers, "\r\nBcc:")
	require.NotContains(t, text, "<script>")
	require.True(t, strings.Contains(text, "&lt;script&gt;"), "destination must be HTML escaped")
}

func TestNewSMTPNotifier_Validation(t *testing.T) {
	_, err := NewSMTPNotifier(SMTPConfig{Host: "mail.local"})
	require.Error(t, err)
}

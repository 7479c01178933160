package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
)

// SMTPConfig holds the mail relay settings. Username may be empty for
// relays that accept unauthenticated submission.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// SMTPNotifier mails the operator inbox for every withdrawal request.
type SMTPNotifier struct {
	cfg SMTPConfig
}

func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" || cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("smtp notifier: host, from and to are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPNotifier{cfg: cfg}, nil
}

var mailBody = template.Must(template.New("withdrawal").Parse(`<div style="font-family:sans-serif">
<h2>Withdrawal request</h2>
<p><strong>Username:</strong> {{.Username}}</p>
<p><strong>User ID:</strong> <code>{{.UserID}}</code></p>
<p><strong>Amount:</strong> ${{.Amount}}</p>
<p><strong>Destination:</strong> <code>{{.Destination}}</code></p>
<p style="color:#64748b">Requested at {{.RequestedAt.Format "2006-01-02 15:04:05 MST"}}. Verification required.</p>
</div>`))

// buildMessage renders the RFC 5322 message. The destination is user input,
// so it only ever reaches the HTML body through the escaping template.
func (n *SMTPNotifier) buildMessage(event domain.WithdrawalRequested) ([]byte, error) {
	p := newPayload(event)

	var body bytes.Buffer
	if err := mailBody.Execute(&body, p); err != nil {
		return nil, fmt.Errorf("render mail: %w", err)
	}

	subject := fmt.Sprintf("[WITHDRAWAL] $%s - %s", p.Amount, sanitizeHeader(p.Username))

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(n.cfg.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", event.RequestedAt.UTC().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// Notify sends the message. The whole SMTP conversation is bounded by the
// ctx deadline.
func (n *SMTPNotifier) Notify(ctx context.Context, event domain.WithdrawalRequested) error {
	msg, err := n.buildMessage(event)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: n.cfg.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if n.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range n.cfg.To {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return c.Quit()
}

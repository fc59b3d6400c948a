package alerting

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/rs/zerolog"

	"stock-alert-engine/internal/config"
)

// EmailNotifier sends alert mail over SMTP.
type EmailNotifier struct {
	host     string
	port     int
	username string
	password string
	from     string
	logger   zerolog.Logger

	// send is swapped out in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier 构造 SMTP 告警器。
func NewEmailNotifier(cfg config.EmailConfig, logger zerolog.Logger) *EmailNotifier {
	port := cfg.Port
	if port <= 0 {
		port = 587
	}
	return &EmailNotifier{
		host:     cfg.Host,
		port:     port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		logger:   logger.With().Str("component", "alert_email").Logger(),
		send:     smtp.SendMail,
	}
}

// SendEmail delivers one plain-text message to a single address.
func (n *EmailNotifier) SendEmail(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		n.from, to, subject, body,
	)

	var auth smtp.Auth
	if n.username != "" {
		auth = smtp.PlainAuth("", n.username, n.password, n.host)
	}

	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	if err := n.send(addr, auth, n.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail via %s: %w", addr, err)
	}

	n.logger.Debug().Str("to", to).Str("subject", subject).Msg("email delivered")
	return nil
}

var _ EmailSender = (*EmailNotifier)(nil)

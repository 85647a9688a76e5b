// Package mailer is the SMTP implementation of the alert transport.
package mailer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	gomail "gopkg.in/gomail.v2"
)

type Mailer struct {
	dialer  *gomail.Dialer
	from    string
	timeout time.Duration
	logger  *zap.Logger
}

func New(host string, port int, username, password, from string, timeout time.Duration, logger *zap.Logger) *Mailer {
	return &Mailer{
		dialer:  gomail.NewDialer(host, port, username, password),
		from:    from,
		timeout: timeout,
		logger:  logger,
	}
}

// Send delivers one message, bounded by the configured timeout. A timeout
// counts as a send failure so the queue's retry path takes over; the send is
// never left hanging.
func (m *Mailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		m.logger.Debug("mail sent", zap.String("to", to), zap.String("subject", subject))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send timed out after %v: %w", m.timeout, ctx.Err())
	}
}

package mailer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/noah-isme/libstats-api/pkg/config"
)

// SendGridMailer delivers notifications through the SendGrid v3 API.
type SendGridMailer struct {
	client *sendgrid.Client
	from   *sgmail.Email
}

var _ Mailer = (*SendGridMailer)(nil)

// NewSendGrid builds a SendGrid-backed mailer from mail configuration.
func NewSendGrid(cfg config.MailConfig) *SendGridMailer {
	return &SendGridMailer{
		client: sendgrid.NewSendClient(cfg.SendGridKey),
		from:   sgmail.NewEmail(cfg.FromName, cfg.FromEmail),
	}
}

// SendNow delivers the message immediately.
func (m *SendGridMailer) SendNow(ctx context.Context, msg Message) (string, error) {
	return m.send(ctx, msg, time.Time{})
}

// ScheduleAt queues the message on SendGrid's timer for the given instant.
func (m *SendGridMailer) ScheduleAt(ctx context.Context, msg Message, at time.Time) (string, error) {
	return m.send(ctx, msg, at)
}

func (m *SendGridMailer) send(ctx context.Context, msg Message, at time.Time) (string, error) {
	if len(msg.To) == 0 {
		return "", fmt.Errorf("sendgrid: message has no recipients")
	}

	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	for _, addr := range msg.To {
		p.AddTos(sgmail.NewEmail("", addr))
	}

	v3 := sgmail.NewV3Mail()
	v3.SetFrom(m.from)
	v3.AddPersonalizations(p)
	v3.AddContent(sgmail.NewContent("text/plain", msg.Body))
	if msg.HTMLBody != "" {
		v3.AddContent(sgmail.NewContent("text/html", msg.HTMLBody))
	}
	if !at.IsZero() {
		v3.SetSendAt(int(at.Unix()))
	}

	resp, err := m.client.SendWithContext(ctx, v3)
	if err != nil {
		return "", fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}

	if ids, ok := resp.Headers["X-Message-Id"]; ok && len(ids) > 0 {
		return ids[0], nil
	}
	return "", nil
}

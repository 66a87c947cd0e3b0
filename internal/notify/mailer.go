// Package notify composes Rentify's transactional emails and delivers them
// over SMTP.
package notify

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rentify/rentify-go/pkg/config"
	"github.com/wneessen/go-mail"
)

// Attachment is a file carried by a Message.
type Attachment struct {
	Name string
	Data []byte
}

// Message is a plain-text email.
type Message struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends through an SMTP relay, one connection per message.
type SMTPMailer struct {
	from string
	opts []mail.Option
	host string
}

// NewSMTPMailer builds a mailer from the SMTP_* settings.
func NewSMTPMailer(cfg *config.Config) *SMTPMailer {
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUsername),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}
	return &SMTPMailer{from: cfg.DefaultFromEmail, opts: opts, host: cfg.SMTPHost}
}

// Send implements Mailer.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	out := mail.NewMsg()
	if err := out.From(m.from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := out.To(msg.To); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}
	out.Subject(msg.Subject)
	out.SetBodyString(mail.TypeTextPlain, msg.Body)
	for _, a := range msg.Attachments {
		if err := out.AttachReader(a.Name, bytes.NewReader(a.Data)); err != nil {
			return fmt.Errorf("failed to attach %s: %w", a.Name, err)
		}
	}

	client, err := mail.NewClient(m.host, m.opts...)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"kitchenboard/internal/config"
)

// Email delivers notices over SMTP.
type Email struct {
	client *mail.Client
	from   string
	loc    *time.Location
}

func NewEmail(cfg config.SMTPConfig, loc *time.Location) (*Email, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Email{client: client, from: cfg.From, loc: loc}, nil
}

func (e *Email) Name() string { return "email" }

func (e *Email) Accepts(n ExpirationNotice) bool { return n.RecipientEmail != "" }

func (e *Email) Send(ctx context.Context, n ExpirationNotice) error {
	msg, err := e.message(n)
	if err != nil {
		return err
	}
	if err := e.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", n.RecipientEmail, err)
	}
	return nil
}

func (e *Email) message(n ExpirationNotice) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(e.from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", e.from, err)
	}
	if err := msg.To(n.RecipientEmail); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", n.RecipientEmail, err)
	}
	msg.Subject(Subject(n))
	msg.SetBodyString(mail.TypeTextPlain, PlainText(n, e.loc))
	msg.AddAlternativeString(mail.TypeTextHTML, HTML(n, e.loc))
	return msg, nil
}

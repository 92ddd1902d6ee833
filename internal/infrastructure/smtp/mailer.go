package smtp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-emailaddress/internal/config"
	"github.com/go-emailaddress/internal/domain"
	"github.com/wneessen/go-mail"
)

// Mailer sends emails.
type Mailer interface {
	Send(ctx context.Context, msg *domain.Message) error
}

type dialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type mailer struct {
	client dialer
}

// NewMailer builds an SMTP mailer from cfg. Authentication is only enabled
// when a username is configured, which keeps local capture servers working.
func NewMailer(cfg *config.Config) (Mailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTimeout(30 * time.Second),
	}
	if cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUsername),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}
	if cfg.SMTPTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &mailer{client: client}, nil
}

func (m *mailer) Send(ctx context.Context, msg *domain.Message) error {
	out, err := buildMsg(msg)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, out); err != nil {
		slog.Error("smtp send failed", "to", msg.To, "err", err)
		return fmt.Errorf("smtp send: %w", err)
	}
	slog.Debug("email sent", "to", msg.To, "subject", msg.Subject)
	return nil
}

// buildMsg converts a domain message into a go-mail message. The first part
// becomes the body; any further parts are added as alternatives.
func buildMsg(msg *domain.Message) (*mail.Msg, error) {
	if len(msg.Parts) == 0 {
		return nil, errors.New("message has no body parts")
	}
	out := mail.NewMsg()
	if err := out.From(msg.From); err != nil {
		return nil, fmt.Errorf("set from address: %w", err)
	}
	if err := out.To(msg.To); err != nil {
		return nil, fmt.Errorf("set to address: %w", err)
	}
	out.Subject(msg.Subject)
	for i, p := range msg.Parts {
		ct := mail.ContentType(p.ContentType)
		if i == 0 {
			out.SetBodyString(ct, p.Body)
			continue
		}
		out.AddAlternativeString(ct, p.Body)
	}
	return out, nil
}

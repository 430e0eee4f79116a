package notify

import (
	"context"
	"fmt"
	"time"

	gomail "gopkg.in/mail.v2"

	"github.com/shanehull/terpalert/internal/logging"
)

// EmailConfig holds SMTP configuration for sending emails.
type EmailConfig struct {
	SMTPServer string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	FromEmail  string
}

type mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailSender delivers alerts straight to the user over SMTP. It satisfies
// Dispatcher; the API token is not needed on this path.
type EmailSender struct {
	cfg      EmailConfig
	renderer *HTMLEmailRenderer
	mailer   mailer
	now      func() time.Time
}

// NewEmailSender creates a sender with the given SMTP configuration.
func NewEmailSender(cfg EmailConfig, renderer *HTMLEmailRenderer) *EmailSender {
	dialer := gomail.NewDialer(cfg.SMTPServer, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	dialer.Timeout = 10 * time.Second
	dialer.StartTLSPolicy = gomail.MandatoryStartTLS

	return &EmailSender{cfg: cfg, renderer: renderer, mailer: dialer, now: time.Now}
}

func (s *EmailSender) Dispatch(ctx context.Context, msg Message, _ string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rendered, err := s.renderer.Render(NotificationData{
		Email:  msg.Email,
		Date:   s.now(),
		Alerts: msg.Lines,
		Digest: msg.Digest,
	})
	if err != nil {
		return nil, err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.FromEmail)
	m.SetHeader("To", msg.Email)
	m.SetHeader("Subject", rendered.Subject)

	if rendered.HTML != "" && rendered.Text != "" {
		m.SetBody("text/plain", rendered.Text)
		m.AddAlternative("text/html", rendered.HTML)
	} else if rendered.HTML != "" {
		m.SetBody("text/html", rendered.HTML)
	} else {
		m.SetBody("text/plain", rendered.Text)
	}

	if err := s.mailer.DialAndSend(m); err != nil {
		return nil, fmt.Errorf("failed to send email (Subject: %s): %w", rendered.Subject, err)
	}

	logging.FromContext(ctx).Debug("email sent", "subject", rendered.Subject, "smtp", s.cfg.SMTPServer)
	return map[string]any{"status": "sent", "transport": "smtp"}, nil
}

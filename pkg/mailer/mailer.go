package mailer

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/noah-isme/shulepay-api/pkg/config"
)

// Message is a single outbound email.
type Message struct {
	To       string
	ToName   string
	Subject  string
	HTMLBody string
}

// Mailer sends email through SendGrid when an API key is configured and falls
// back to plain SMTP otherwise (or when the SendGrid call fails).
type Mailer struct {
	cfg    config.MailConfig
	sg     *sendgrid.Client
	logger *zap.Logger
}

// New builds a mailer from configuration.
func New(cfg config.MailConfig, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Mailer{cfg: cfg, logger: logger}
	if cfg.SendGridKey != "" {
		m.sg = sendgrid.NewSendClient(cfg.SendGridKey)
	}
	return m
}

// Send delivers the message. Disabled mail configuration is not an error so
// callers can fire-and-forget from background jobs.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if !m.cfg.Enabled {
		m.logger.Debug("mail disabled, dropping message", zap.String("to", msg.To), zap.String("subject", msg.Subject))
		return nil
	}
	if msg.To == "" {
		return fmt.Errorf("message has no recipient")
	}

	if m.sg != nil {
		if err := m.sendViaSendGrid(msg); err == nil {
			return nil
		} else {
			m.logger.Warn("sendgrid delivery failed, falling back to smtp", zap.Error(err))
		}
	}

	return m.sendViaSMTP(msg)
}

func (m *Mailer) sendViaSendGrid(msg Message) error {
	from := sgmail.NewEmail(m.cfg.FromName, m.cfg.FromEmail)
	to := sgmail.NewEmail(msg.ToName, msg.To)
	mail := sgmail.NewSingleEmail(from, msg.Subject, to, "", msg.HTMLBody)

	resp, err := m.sg.Send(mail)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid responded %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

func (m *Mailer) sendViaSMTP(msg Message) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)

	var auth smtp.Auth
	if m.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", m.cfg.SMTPUsername, m.cfg.SMTPPassword, m.cfg.SMTPHost)
	}

	mime := "MIME-version: 1.0;\r\nContent-Type: text/html; charset=\"UTF-8\";\r\n\r\n"
	body := []byte(fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\n%s%s",
		m.cfg.FromName, m.cfg.FromEmail, msg.To, msg.Subject, mime, msg.HTMLBody))

	if err := smtp.SendMail(addr, auth, m.cfg.FromEmail, []string{msg.To}, body); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

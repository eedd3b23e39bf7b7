// Package delivery implements the channel senders the nurture engine
// dispatches rendered messages through.
package delivery

import (
	"context"
	"fmt"
	"net"
	"time"

	"growthdesk_backend/internal/leads/domain"
	"growthdesk_backend/internal/nurture/repository"
	"growthdesk_backend/platform/config"
	"growthdesk_backend/platform/logger"

	gomail "github.com/wneessen/go-mail"
)

// EmailSender delivers nurture steps over SMTP via go-mail.
type EmailSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
	enabled   bool
	log       *logger.Logger
}

func NewEmailSender(cfg config.EmailConfig, log *logger.Logger) *EmailSender {
	return &EmailSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
		enabled:   cfg.GetEmailEnabled(),
		log:       log,
	}
}

func (s *EmailSender) Send(ctx context.Context, lead domain.Lead, msg repository.Message) error {
	if lead.Email == nil || *lead.Email == "" {
		return fmt.Errorf("lead %s has no email address", lead.ID)
	}
	if !s.enabled {
		s.log.Info("email delivery disabled, dropping message",
			"lead_id", lead.ID, "step", msg.StepNumber)
		return nil
	}

	m := gomail.NewMsg()
	if err := m.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := m.To(*lead.Email); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	s.log.Info("nurture email sent", "lead_id", lead.ID, "step", msg.StepNumber)
	return nil
}

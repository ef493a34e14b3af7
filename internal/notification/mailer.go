package notification

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/beaconhq/beacon-api/internal/config"
	"github.com/beaconhq/beacon-api/internal/models"
)

// Mailer transports one queued email job. Implementations are consumed by
// the mail worker, never by the fan-out path directly.
type Mailer interface {
	Send(job models.EmailJob) error
}

// SMTPMailer sends queued notification emails over SMTP.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

func NewSMTPMailer(cfg config.EmailConfig) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return nil, fmt.Errorf("smtp_host is required")
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("email from address is required")
	}

	return &SMTPMailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
	}, nil
}

func (m *SMTPMailer) Send(job models.EmailJob) error {
	subject := strings.TrimSpace(job.Subject)
	if subject == "" {
		subject = "Notification"
	}

	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n",
		m.from, job.ToEmail, subject)

	message := []byte(headers + job.HTML)
	addr := fmt.Sprintf("%s:%d", m.host, m.port)

	var auth smtp.Auth
	if strings.TrimSpace(m.username) != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	return smtp.SendMail(addr, auth, m.from, []string{job.ToEmail}, message)
}

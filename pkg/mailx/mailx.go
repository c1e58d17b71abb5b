// Package mailx delivers transactional email.
package mailx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/gomail.v2"
)

// Message is a single outbound email. HTML is optional.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer sends messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig holds relay credentials.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPMailer sends through an SMTP relay, retrying transient failures.
type SMTPMailer struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer

	// MaxElapsed bounds the total retry time per message.
	MaxElapsed time.Duration
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		cfg:        cfg,
		dialer:     gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		MaxElapsed: 10 * time.Second,
	}
}

func (s *SMTPMailer) message(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	if s.cfg.FromName != "" {
		m.SetHeader("From", m.FormatAddress(s.cfg.From, s.cfg.FromName))
	} else {
		m.SetHeader("From", s.cfg.From)
	}
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}
	return m
}

func (s *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("mailx: empty recipient")
	}
	m := s.message(msg)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = s.MaxElapsed

	op := func() error {
		return s.dialer.DialAndSend(m)
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("mailx: send via %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}
	return nil
}

// LogMailer records that a message would have been sent. It is used when no
// SMTP relay is configured. Bodies carry reset links, so only the recipient
// and subject are logged.
type LogMailer struct {
	Logger *slog.Logger
}

func (l LogMailer) Send(ctx context.Context, msg Message) error {
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "email not delivered: no SMTP relay configured",
		"to", msg.To,
		"subject", msg.Subject,
	)
	return nil
}

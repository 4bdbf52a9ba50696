package mailer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"eventDesk/internal/model"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c Config) Validate() error {
	switch {
	case c.Host == "":
		return errors.New("mailer host is required")
	case c.Port <= 0:
		return errors.New("mailer port must be positive")
	case c.From == "":
		return errors.New("mailer from address is required")
	}
	return nil
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Mailer struct {
	cfg  Config
	log  *zerolog.Logger
	send sendFunc
}

func New(cfg Config, log *zerolog.Logger) (*Mailer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Mailer{cfg: cfg, log: log, send: smtp.SendMail}, nil
}

// SendStatusUpdate tells an applicant that their registration changed state.
func (m *Mailer) SendStatusUpdate(ctx context.Context, to, applicant, eventName string, status model.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var subject, body string
	switch status {
	case model.StatusProcessed:
		subject = "Your registration has been confirmed"
		body = fmt.Sprintf("Hello %s,\n\nYour registration for \"%s\" has been processed.\nWe look forward to seeing you!", applicant, eventName)
	case model.StatusPending:
		subject = "We received your registration"
		body = fmt.Sprintf("Hello %s,\n\nYour registration for \"%s\" was received and is awaiting review.", applicant, eventName)
	default:
		return fmt.Errorf("no template for status %q", status)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		m.cfg.From, to, subject, strings.ReplaceAll(body, "\n", "\r\n"),
	)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	if err := m.send(addr, auth, m.cfg.From, []string{to}, []byte(msg)); err != nil {
		m.log.Warn().Err(err).Str("to", to).Msg("failed to send e-mail")
		return fmt.Errorf("send email: %w", err)
	}

	m.log.Info().Str("to", to).Str("status", string(status)).Msg("status e-mail sent")
	return nil
}

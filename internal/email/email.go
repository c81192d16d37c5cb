// Package email sends transactional mail to job board users.
package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jobboard/server/internal/config"
)

var ErrInvalidAddress = errors.New("invalid email address")

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New returns a Resend sender when email is enabled and a log-only sender
// otherwise.
func New(cfg config.EmailConfig, logger zerolog.Logger) (Sender, error) {
	logger = logger.With().Str("component", "email").Logger()
	if !cfg.Enabled {
		return NewLogSender(logger), nil
	}
	if err := validateAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("sender address: %w", err)
	}
	return NewResendSender(cfg.ResendAPIKey, cfg.From, logger), nil
}

// validateAddress rejects anything net/mail cannot parse and any address
// carrying header-injection characters.
func validateAddress(addr string) error {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	if strings.ContainsAny(parsed.Address, "\r\n") {
		return fmt.Errorf("%w: contains newline", ErrInvalidAddress)
	}
	return nil
}

// LogSender records messages instead of delivering them.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	if err := validateAddress(msg.To); err != nil {
		return err
	}
	s.logger.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Msg("email disabled, message not sent")
	return nil
}

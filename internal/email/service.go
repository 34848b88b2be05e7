// Package email sends transactional mail through Resend. When no API key is
// configured the service logs and drops messages instead of failing callers.
package email

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"

	"github.com/solidus-pim/server/internal/config"
)

const sendTimeout = 15 * time.Second

type Service struct {
	client *resend.Client
	from   string
	logger zerolog.Logger
}

func NewService(cfg config.EmailConfig, logger zerolog.Logger) *Service {
	s := &Service{
		from:   cfg.FromAddress,
		logger: logger.With().Str("component", "email").Logger(),
	}
	if cfg.ResendAPIKey != "" {
		s.client = resend.NewClient(cfg.ResendAPIKey)
	} else {
		s.logger.Info().Msg("no resend api key configured, email delivery disabled")
	}
	return s
}

// Enabled reports whether messages will actually be delivered.
func (s *Service) Enabled() bool {
	return s.client != nil
}

// SendFeedReady notifies a recipient that a feed generation finished and can
// be downloaded.
func (s *Service) SendFeedReady(to, feedName, downloadURL string) error {
	subject := fmt.Sprintf("Feed ready: %s", feedName)
	body := fmt.Sprintf(
		`<p>The data feed <strong>%s</strong> has finished generating.</p>
<p><a href="%s">Download the feed</a></p>
<p>The link requires your usual account credentials.</p>`,
		html.EscapeString(feedName), html.EscapeString(downloadURL))
	return s.send(to, subject, body)
}

// SendAccountCreated welcomes a newly provisioned account.
func (s *Service) SendAccountCreated(to, username string) error {
	subject := "Your Solidus account is ready"
	body := fmt.Sprintf(
		`<p>An account has been created for you with the username <strong>%s</strong>.</p>
<p>Sign in and change your password at your earliest convenience.</p>`,
		html.EscapeString(username))
	return s.send(to, subject, body)
}

func (s *Service) send(to, subject, htmlBody string) error {
	if s.client == nil {
		s.logger.Debug().Str("to", to).Str("subject", subject).Msg("email delivery disabled, dropping message")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	sent, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    htmlBody,
	})
	if err != nil {
		var rateLimitErr *resend.RateLimitError
		if errors.As(err, &rateLimitErr) {
			s.logger.Warn().
				Str("limit", rateLimitErr.Limit).
				Str("reset", rateLimitErr.Reset).
				Msg("resend rate limit exceeded")
			return fmt.Errorf("email rate limit exceeded, resets in %s seconds: %w", rateLimitErr.Reset, err)
		}
		return fmt.Errorf("resend API error: %w", err)
	}

	s.logger.Info().Str("email_id", sent.Id).Str("to", to).Msg("email sent")
	return nil
}

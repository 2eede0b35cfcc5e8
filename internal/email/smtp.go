package email

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"time"
)

// =============================================================================
// SMTP Notifier Implementation
// =============================================================================

// SMTPNotifier sends notification emails via SMTP.
type SMTPNotifier struct {
	config SMTPConfig
	logger *slog.Logger
}

// NewSMTPNotifier creates a new SMTP-based notifier.
func NewSMTPNotifier(config SMTPConfig, logger *slog.Logger) *SMTPNotifier {
	if config.From == "" {
		config.From = "noreply@promptify.app"
	}
	if config.FromName == "" {
		config.FromName = "Promptify"
	}
	return &SMTPNotifier{
		config: config,
		logger: logger,
	}
}

// SendLoginNotification tells a user their account was just signed in to.
func (s *SMTPNotifier) SendLoginNotification(ctx context.Context, to, name string) error {
	when := time.Now().UTC().Format("Jan 2, 2006 15:04 MST")

	textBody := fmt.Sprintf(`Hi %s,

Your Promptify account was just signed in to at %s.

If this was you, no action is needed. If you don't recognize this sign-in,
please change your password right away.

Thanks,
The Promptify Team
`, name, when)

	htmlBody := fmt.Sprintf(`<p>Hi %s,</p>
<p>Your Promptify account was just signed in to at <strong>%s</strong>.</p>
<p>If this was you, no action is needed. If you don't recognize this sign-in, please change your password right away.</p>
<p>Thanks,<br>The Promptify Team</p>`, name, when)

	return s.send(ctx, Email{
		To:       to,
		Subject:  "New sign-in to your Promptify account",
		HTMLBody: htmlBody,
		TextBody: textBody,
	})
}

// SendLogoutNotification tells a user their account was signed out.
func (s *SMTPNotifier) SendLogoutNotification(ctx context.Context, to, name string) error {
	textBody := fmt.Sprintf(`Hi %s,

You have been signed out of your Promptify account.

Thanks,
The Promptify Team
`, name)

	htmlBody := fmt.Sprintf(`<p>Hi %s,</p>
<p>You have been signed out of your Promptify account.</p>
<p>Thanks,<br>The Promptify Team</p>`, name)

	return s.send(ctx, Email{
		To:       to,
		Subject:  "Signed out of Promptify",
		HTMLBody: htmlBody,
		TextBody: textBody,
	})
}

// =============================================================================
// Internal Methods
// =============================================================================

// send sends an email via SMTP.
func (s *SMTPNotifier) send(ctx context.Context, email Email) error {
	msg := s.buildMessage(email)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	// Auth only when credentials are provided (not needed for Mailhog)
	var auth smtp.Auth
	if s.config.Username != "" && s.config.Password != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	err := smtp.SendMail(addr, auth, s.config.From, []string{email.To}, msg)
	if err != nil {
		s.logger.Error("failed to send email",
			"to", email.To,
			"subject", email.Subject,
			"error", err,
		)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		"to", email.To,
		"subject", email.Subject,
	)

	return nil
}

// buildMessage constructs the raw email message with headers.
func (s *SMTPNotifier) buildMessage(email Email) []byte {
	var buf bytes.Buffer

	fromHeader := fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)

	buf.WriteString(fmt.Sprintf("From: %s\r\n", fromHeader))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", email.To))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", email.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")

	boundary := "===============PROMPTIFY_BOUNDARY==============="
	buf.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
	buf.WriteString("\r\n")

	// Plain text part
	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(email.TextBody)
	buf.WriteString("\r\n")

	// HTML part
	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(email.HTMLBody)
	buf.WriteString("\r\n")

	buf.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	return buf.Bytes()
}

// =============================================================================
// Compile-time interface check
// =============================================================================

var _ Notifier = (*SMTPNotifier)(nil)

// Package email provides transactional email notifications.
//
// Notifications are fire-and-forget side effects: callers log failures and
// move on. The SMTP implementation works with Mailhog in development and any
// standard SMTP relay in production.
package email

import (
	"context"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Notifier defines the interface for account notification emails.
//
// All methods are context-aware for timeout and cancellation support.
type Notifier interface {
	// SendLoginNotification tells a user their account was just signed in to.
	SendLoginNotification(ctx context.Context, to, name string) error

	// SendLogoutNotification tells a user their account was signed out.
	SendLogoutNotification(ctx context.Context, to, name string) error
}

// =============================================================================
// Email Data Types
// =============================================================================

// Email represents a single email message.
type Email struct {
	To       string // Recipient email address
	Subject  string // Email subject line
	HTMLBody string // HTML content of the email
	TextBody string // Plain text fallback content
}

// =============================================================================
// Configuration Types
// =============================================================================

// SMTPConfig holds SMTP server configuration.
type SMTPConfig struct {
	Host     string // SMTP server hostname (e.g., "localhost" for Mailhog)
	Port     int    // SMTP server port (e.g., 1025 for Mailhog)
	Username string // SMTP authentication username (empty for Mailhog)
	Password string // SMTP authentication password (empty for Mailhog)
	From     string // Default sender email address
	FromName string // Default sender display name
}

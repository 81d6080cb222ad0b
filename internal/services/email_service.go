package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/BradenHooton/quill/pkg/logger"
)

// PasswordResetNotifier delivers a password reset token to its owner
type PasswordResetNotifier interface {
	SendPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error
}

// SESAPI is the subset of the SES client used for delivery
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	client      SESAPI
	fromAddress string
	resetURL    string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(ctx context.Context, region, fromAddress, resetURL string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewSESEmailServiceWithClient(ses.NewFromConfig(cfg), fromAddress, resetURL, logger), nil
}

// NewSESEmailServiceWithClient wraps an existing SES client
func NewSESEmailServiceWithClient(client SESAPI, fromAddress, resetURL string, logger *slog.Logger) *AWSSESEmailService {
	return &AWSSESEmailService{
		client:      client,
		fromAddress: fromAddress,
		resetURL:    resetURL,
		logger:      logger,
	}
}

// resetLink appends the token as a query parameter to base
func resetLink(base, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// SendPasswordReset emails the reset link for token to email
func (s *AWSSESEmailService) SendPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error {
	link := resetLink(s.resetURL, token)
	expiry := expiresAt.UTC().Format(time.RFC1123)

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <h1>Reset your password</h1>
    <p>We received a request to reset the password for your account.</p>
    <p><a href="%s">Choose a new password</a></p>
    <p>Or copy and paste this link in your browser:<br><code>%s</code></p>
    <p>This link can be used once and expires at %s.</p>
    <p>If you did not request a reset you can ignore this email. Your password will not change.</p>
</body>
</html>
`, link, link, expiry)

	textBody := fmt.Sprintf(`Reset your password

We received a request to reset the password for your account.

%s

This link can be used once and expires at %s.

If you did not request a reset you can ignore this email. Your password will not change.
`, link, expiry)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Reset your password"),
			},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send password reset email via SES",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("password reset email sent",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

// LogEmailService logs reset deliveries instead of sending them. The token
// itself is never logged.
type LogEmailService struct {
	logger *slog.Logger
}

// NewLogEmailService creates a notifier for development environments
func NewLogEmailService(logger *slog.Logger) *LogEmailService {
	return &LogEmailService{logger: logger}
}

func (s *LogEmailService) SendPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error {
	s.logger.InfoContext(ctx, "password reset ready for delivery",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.Time("expires_at", expiresAt))
	return nil
}

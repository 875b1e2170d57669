package verify

import (
	"context"
	"log/slog"
)

// Mailer delivers a verification code to an email address.
type Mailer interface {
	SendCode(ctx context.Context, email string, code string) error
}

// NoopMailer drops codes. Delivery providers are wired by deployments.
type NoopMailer struct {
	Log *slog.Logger
}

// SendCode records that a code would have been sent. The code is never logged.
func (m NoopMailer) SendCode(ctx context.Context, email string, _ string) error {
	if m.Log != nil {
		m.Log.InfoContext(ctx, "verify.mail.noop", "email", email)
	}
	return nil
}

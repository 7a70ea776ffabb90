package port

import "context"

// EmailSender delivers authentication emails. Implementations may hand the
// message to a downstream mailer instead of sending it synchronously.
type EmailSender interface {
	SendRegistrationToken(ctx context.Context, email, username, token string) error
	SendForgotPassword(ctx context.Context, email, username, token string) error
	// SendResetPassword delivers the temporary password generated by the
	// reset flow.
	SendResetPassword(ctx context.Context, email, username, tempPassword string) error
	// AlertPasswordChange notifies the user and includes a reset token they
	// can use if the change was not theirs.
	AlertPasswordChange(ctx context.Context, email, username, resetToken string) error
}

package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/jsantic/authgate/internal/core/port"
	"github.com/jsantic/authgate/internal/infra/logger"
)

// StubMailer logs email events instead of producing them. Useful for
// development environments without a broker.
type StubMailer struct {
	logger *zap.Logger
}

// NewStubMailer constructs a development-friendly email sender.
func NewStubMailer(log *zap.Logger) *StubMailer {
	return &StubMailer{logger: log}
}

var _ port.EmailSender = (*StubMailer)(nil)

func (m *StubMailer) logEmail(eventType, email, username string) {
	m.logger.Info("Stub email dispatched",
		zap.String("event_type", eventType),
		zap.String("email", logger.MaskEmail(email)),
		zap.String("username", username),
	)
}

func (m *StubMailer) SendRegistrationToken(_ context.Context, email, username, _ string) error {
	m.logEmail(emailRegistrationToken, email, username)
	return nil
}

func (m *StubMailer) SendForgotPassword(_ context.Context, email, username, _ string) error {
	m.logEmail(emailForgotPassword, email, username)
	return nil
}

func (m *StubMailer) SendResetPassword(_ context.Context, email, username, _ string) error {
	m.logEmail(emailResetPassword, email, username)
	return nil
}

func (m *StubMailer) AlertPasswordChange(_ context.Context, email, username, _ string) error {
	m.logEmail(emailPasswordChangeAlert, email, username)
	return nil
}

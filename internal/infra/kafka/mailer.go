package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jsantic/authgate/internal/core/port"
	"github.com/jsantic/authgate/internal/infra/config"
)

const schemaVersion = "1.0"

// Email event types consumed by the downstream mailer service.
const (
	emailRegistrationToken   = "email.registration_token"
	emailForgotPassword      = "email.forgot_password"
	emailResetPassword       = "email.reset_password"
	emailPasswordChangeAlert = "email.password_change_alert"
)

// Mailer implements port.EmailSender by handing email events to Kafka. The
// actual delivery happens in a downstream consumer, which keeps the
// authentication flows free of SMTP latency.
type Mailer struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewMailer constructs a Kafka-backed email sender.
func NewMailer(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *Mailer {
	return &Mailer{producer: producer, appCfg: appCfg, logger: logger}
}

var _ port.EmailSender = (*Mailer)(nil)

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

type emailPayload struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

func (m *Mailer) publish(ctx context.Context, eventType string, payload emailPayload) error {
	metadata := envelopeMetadata{
		"service":     m.appCfg.Name,
		"environment": m.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal email envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: m.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(payload.Email),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case m.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mailer) SendRegistrationToken(ctx context.Context, email, username, token string) error {
	return m.publish(ctx, emailRegistrationToken, emailPayload{Email: email, Username: username, Token: token})
}

func (m *Mailer) SendForgotPassword(ctx context.Context, email, username, token string) error {
	return m.publish(ctx, emailForgotPassword, emailPayload{Email: email, Username: username, Token: token})
}

func (m *Mailer) SendResetPassword(ctx context.Context, email, username, tempPassword string) error {
	return m.publish(ctx, emailResetPassword, emailPayload{Email: email, Username: username, Password: tempPassword})
}

func (m *Mailer) AlertPasswordChange(ctx context.Context, email, username, resetToken string) error {
	return m.publish(ctx, emailPasswordChangeAlert, emailPayload{Email: email, Username: username, Token: resetToken})
}

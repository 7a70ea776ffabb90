package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jsantic/authgate/internal/core/domain"
	"github.com/jsantic/authgate/internal/core/port"
	"github.com/jsantic/authgate/internal/infra/config"
	"github.com/jsantic/authgate/internal/infra/logger"
	"github.com/jsantic/authgate/internal/infra/security"
	"github.com/jsantic/authgate/internal/infra/telemetry"
	"github.com/jsantic/authgate/internal/repository"
)

const tempPasswordBytes = 16

// AuthService orchestrates the authentication flows over users, sessions,
// single-use tokens, and throttles. It owns sequencing only; state lives in
// the repository and the cache, with the repository authoritative.
type AuthService struct {
	users     port.UserRepository
	cache     port.Cache
	email     port.EmailSender
	sessions  *SessionService
	guard     *Guard
	hasher    *security.Hasher
	validator *security.PasswordValidator
	cfg       *config.AppConfig
	logger    *zap.Logger
	metrics   *telemetry.AuthMetrics

	now func() time.Time
}

func NewAuthService(
	users port.UserRepository,
	cache port.Cache,
	email port.EmailSender,
	sessions *SessionService,
	guard *Guard,
	hasher *security.Hasher,
	validator *security.PasswordValidator,
	cfg *config.AppConfig,
	log *zap.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		cache:     cache,
		email:     email,
		sessions:  sessions,
		guard:     guard,
		hasher:    hasher,
		validator: validator,
		cfg:       cfg,
		logger:    log,
		now:       time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// WithMetrics attaches the auth flow collectors.
func (s *AuthService) WithMetrics(m *telemetry.AuthMetrics) *AuthService {
	s.metrics = m
	return s
}

func (s *AuthService) countLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.LoginOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (s *AuthService) countTokenIssued(kind domain.TokenKind) {
	if s.metrics != nil {
		s.metrics.TokensIssued.WithLabelValues(string(kind)).Inc()
	}
}

func (s *AuthService) countTokenConsumed(kind domain.TokenKind) {
	if s.metrics != nil {
		s.metrics.TokensConsumed.WithLabelValues(string(kind)).Inc()
	}
}

// LoginInput carries the credential form.
type LoginInput struct {
	Email    string
	Password string
	Remember bool
}

// Login validates credentials and either establishes a session, returns a
// two-factor challenge, or freezes the account past the freeze threshold.
// Unknown emails and wrong passwords produce the identical error.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginOutcome, error) {
	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if user.Frozen {
		return nil, ErrAccountFrozen
	}
	if user.Password == nil {
		// Provider-created account without a local password.
		return nil, ErrInvalidCredentials
	}

	match, err := security.VerifyPassword(in.Password, *user.Password)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return s.failedLogin(ctx, user)
	}

	if !user.Verified() {
		return nil, ErrEmailUnverified
	}

	// A challenge is not a completed login; the attempt counter survives
	// until the second factor verifies.
	if user.OTPSecret != nil {
		challenge, err := s.issueOTPChallenge(ctx, user, in.Remember)
		if err != nil {
			return nil, err
		}
		s.countLogin("challenge")
		return &LoginOutcome{Challenge: challenge}, nil
	}

	if err := s.guard.Clear(ctx, ActionLogin, user.Email); err != nil {
		return nil, err
	}

	session, err := s.sessions.Establish(ctx, user, EstablishOptions{Remember: in.Remember})
	if err != nil {
		return nil, err
	}

	s.logger.Info("login success", zap.String("user_id", user.ID))
	s.countLogin("success")
	return &LoginOutcome{Success: &AuthenticationSuccess{User: user, Session: session}}, nil
}

func (s *AuthService) failedLogin(ctx context.Context, user *domain.User) (*LoginOutcome, error) {
	throttle := s.cfg.Throttle
	count, err := s.guard.Record(ctx, ActionLogin, user.Email, throttle.LoginWindow)
	if err != nil {
		return nil, err
	}

	if throttle.LoginFreezeAttempts > 0 && count >= int64(throttle.LoginFreezeAttempts) {
		frozen, err := s.users.Freeze(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("freeze account: %w", err)
		}
		if _, err := s.sessions.PurgeAll(ctx, frozen.ID); err != nil {
			return nil, err
		}
		s.logger.Warn("account frozen after repeated failures",
			zap.String("user_id", user.ID),
			zap.Int64("attempts", count))
		s.countLogin("frozen")
		return &LoginOutcome{Frozen: &FreezeAccount{
			Email:   frozen.Email,
			Message: "account frozen due to repeated login failures",
		}}, nil
	}

	if count >= int64(throttle.LoginMaxAttempts) {
		s.countLogin("throttled")
		return nil, &RateLimitError{
			Action:   ActionLogin,
			Attempts: count,
			Limit:    int64(throttle.LoginMaxAttempts),
		}
	}

	s.logger.Info("login failure",
		zap.String("email", logger.MaskEmail(user.Email)),
		zap.Int64("attempts", count))
	s.countLogin("invalid")
	return nil, ErrInvalidCredentials
}

func (s *AuthService) issueOTPChallenge(ctx context.Context, user *domain.User, remember bool) (*TwoFactorChallenge, error) {
	token := security.GenerateHMAC(s.cfg.Tokens.OTPChallengeSecret, user.ID)
	if err := s.cache.SetToken(ctx, domain.TokenKindOTPChallenge, token, user.ID, s.cfg.Tokens.OTPChallengeTTL); err != nil {
		return nil, fmt.Errorf("cache otp challenge: %w", err)
	}
	s.countTokenIssued(domain.TokenKindOTPChallenge)
	return &TwoFactorChallenge{Username: user.Username, Token: token, Remember: remember}, nil
}

// OTPInput carries the second factor form.
type OTPInput struct {
	Code     string
	Token    string
	Remember bool
}

// VerifyOTP resolves the challenge token, verifies the one-time code, and
// establishes a session. The challenge token is consumed only on success, so
// a wrong code can be retried until the throttle or the token TTL stops it.
// Two racing calls with a correct code succeed at most once.
func (s *AuthService) VerifyOTP(ctx context.Context, in OTPInput) (*AuthenticationSuccess, error) {
	userID, err := s.cache.GetToken(ctx, domain.TokenKindOTPChallenge, in.Token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &InvalidTokenError{Kind: domain.TokenKindOTPChallenge}
		}
		return nil, fmt.Errorf("resolve otp challenge: %w", err)
	}

	throttle := s.cfg.Throttle
	if err := s.guard.Check(ctx, ActionOTP, userID, int64(throttle.OTPMaxAttempts)); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.Frozen {
		return nil, ErrAccountFrozen
	}
	if user.OTPSecret == nil {
		return nil, &InvalidTokenError{Kind: domain.TokenKindOTPChallenge}
	}

	match, err := security.VerifyTOTPAt(in.Code, *user.OTPSecret, s.now())
	if err != nil {
		return nil, fmt.Errorf("verify otp code: %w", err)
	}
	if !match {
		if _, err := s.guard.Record(ctx, ActionOTP, userID, throttle.OTPWindow); err != nil {
			return nil, err
		}
		return nil, ErrInvalidOTP
	}

	// Atomic consume: the losing side of a race observes not-found.
	if _, err := s.cache.ConsumeToken(ctx, domain.TokenKindOTPChallenge, in.Token); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &InvalidTokenError{Kind: domain.TokenKindOTPChallenge}
		}
		return nil, fmt.Errorf("consume otp challenge: %w", err)
	}

	s.countTokenConsumed(domain.TokenKindOTPChallenge)

	if err := s.guard.Clear(ctx, ActionOTP, userID); err != nil {
		return nil, err
	}
	if err := s.guard.Clear(ctx, ActionLogin, user.Email); err != nil {
		return nil, err
	}

	session, err := s.sessions.Establish(ctx, user, EstablishOptions{Remember: in.Remember})
	if err != nil {
		return nil, err
	}

	s.logger.Info("otp verified", zap.String("user_id", user.ID))
	return &AuthenticationSuccess{User: user, Session: session}, nil
}

// RegistrationInput carries the sign-up form.
type RegistrationInput struct {
	Email    string
	Username string
	Password string
}

// StartRegistration creates an unverified user and dispatches the
// registration token by email.
func (s *AuthService) StartRegistration(ctx context.Context, in RegistrationInput) (*RegistrationStart, error) {
	if err := s.validator.Validate(in.Password, in.Email, in.Username); err != nil {
		return nil, err
	}

	hash, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, &domain.User{
		ID:       uuid.NewString(),
		Email:    in.Email,
		Username: in.Username,
		Password: &hash,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.dispatchRegistrationToken(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("registration started",
		zap.String("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)))
	return &RegistrationStart{
		User:    user,
		Message: "registration token sent to " + user.Email,
	}, nil
}

func (s *AuthService) dispatchRegistrationToken(ctx context.Context, user *domain.User) error {
	token := security.GenerateHMAC(s.cfg.Tokens.RegistrationSecret, user.ID)
	if err := s.cache.SetToken(ctx, domain.TokenKindRegistration, token, user.ID, s.cfg.Tokens.RegistrationTTL); err != nil {
		return fmt.Errorf("cache registration token: %w", err)
	}
	if err := s.email.SendRegistrationToken(ctx, user.Email, user.Username, token); err != nil {
		return fmt.Errorf("send registration token: %w", err)
	}
	if err := s.cache.SetEmailThrottle(ctx, user.Email, s.cfg.Throttle.EmailCooldown); err != nil {
		return fmt.Errorf("stamp email cooldown: %w", err)
	}
	s.countTokenIssued(domain.TokenKindRegistration)
	return nil
}

// VerifyRegistrationToken consumes the token and marks the user's email
// verified. A consumed or expired token is invalid.
func (s *AuthService) VerifyRegistrationToken(ctx context.Context, token string) (*domain.User, error) {
	userID, err := s.cache.ConsumeToken(ctx, domain.TokenKindRegistration, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &InvalidTokenError{Kind: domain.TokenKindRegistration}
		}
		return nil, fmt.Errorf("consume registration token: %w", err)
	}

	user, err := s.users.UpdateEmailVerification(ctx, userID, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &InvalidTokenError{Kind: domain.TokenKindRegistration}
		}
		return nil, fmt.Errorf("mark email verified: %w", err)
	}

	s.countTokenConsumed(domain.TokenKindRegistration)
	s.logger.Info("email verified", zap.String("user_id", user.ID))
	return user, nil
}

// ResendRegistrationToken reissues the registration token unless the email is
// already verified or inside the cooldown window.
func (s *AuthService) ResendRegistrationToken(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("load user: %w", err)
	}
	if user.Verified() {
		return ErrAlreadyVerified
	}

	throttled, err := s.cache.GetEmailThrottle(ctx, user.Email)
	if err != nil {
		return fmt.Errorf("read email cooldown: %w", err)
	}
	if throttled {
		return ErrEmailCooldown
	}

	return s.dispatchRegistrationToken(ctx, user)
}

// ChangePasswordInput carries the authenticated password-change form.
type ChangePasswordInput struct {
	UserID          string
	CurrentPassword string
	NewPassword     string
}

// ChangePassword rotates the hash, purges every session, and alerts the user
// by email with a reset token they can use if the change was not theirs.
// Whether a fresh session is established afterwards is a configuration
// choice; when disabled the user must log in again.
func (s *AuthService) ChangePassword(ctx context.Context, in ChangePasswordInput) (*domain.Session, error) {
	user, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.Password == nil {
		return nil, ErrInvalidCredentials
	}

	match, err := security.VerifyPassword(in.CurrentPassword, *user.Password)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return nil, ErrInvalidCredentials
	}

	if err := s.validator.Validate(in.NewPassword, user.Email, user.Username); err != nil {
		return nil, err
	}

	hash, err := s.hasher.HashPassword(in.NewPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err = s.users.UpdatePassword(ctx, user.ID, hash)
	if err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}

	if _, err := s.sessions.PurgeAll(ctx, user.ID); err != nil {
		return nil, err
	}

	resetToken := security.GenerateHMAC(s.cfg.Tokens.PasswordResetSecret, user.ID)
	if err := s.cache.SetToken(ctx, domain.TokenKindPasswordReset, resetToken, user.ID, s.cfg.Tokens.PasswordResetTTL); err != nil {
		return nil, fmt.Errorf("cache reset token: %w", err)
	}
	if err := s.email.AlertPasswordChange(ctx, user.Email, user.Username, resetToken); err != nil {
		return nil, fmt.Errorf("alert password change: %w", err)
	}

	s.countTokenIssued(domain.TokenKindPasswordReset)
	s.logger.Info("password changed", zap.String("user_id", user.ID))

	if !s.cfg.Session.ReissueOnPasswordChange {
		return nil, nil
	}
	return s.sessions.Establish(ctx, user, EstablishOptions{})
}

// ForgotPassword dispatches a password-reset token unless the identity is
// inside the email cooldown window.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("load user: %w", err)
	}

	throttled, err := s.cache.GetEmailThrottle(ctx, user.Email)
	if err != nil {
		return fmt.Errorf("read email cooldown: %w", err)
	}
	if throttled {
		return ErrEmailCooldown
	}

	token := security.GenerateHMAC(s.cfg.Tokens.PasswordResetSecret, user.ID)
	if err := s.cache.SetToken(ctx, domain.TokenKindPasswordReset, token, user.ID, s.cfg.Tokens.PasswordResetTTL); err != nil {
		return fmt.Errorf("cache reset token: %w", err)
	}
	if err := s.email.SendForgotPassword(ctx, user.Email, user.Username, token); err != nil {
		return fmt.Errorf("send forgot password: %w", err)
	}
	if err := s.cache.SetEmailThrottle(ctx, user.Email, s.cfg.Throttle.EmailCooldown); err != nil {
		return fmt.Errorf("stamp email cooldown: %w", err)
	}

	s.countTokenIssued(domain.TokenKindPasswordReset)
	s.logger.Info("forgot password dispatched",
		zap.String("email", logger.MaskEmail(user.Email)))
	return nil
}

// VerifyForgotPassword validates the new password, consumes the reset token,
// stores the password, purges every old session, and establishes a fresh
// one. A rejected password leaves the token intact so the user can retry
// with a stronger one.
func (s *AuthService) VerifyForgotPassword(ctx context.Context, token, newPassword string) (*AuthenticationSuccess, error) {
	userID, err := s.cache.GetToken(ctx, domain.TokenKindPasswordReset, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &InvalidTokenError{Kind: domain.TokenKindPasswordReset}
		}
		return nil, fmt.Errorf("resolve reset token: %w", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := s.validator.Validate(newPassword, user.Email, user.Username); err != nil {
		return nil, err
	}
	hash, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	// Atomic consume: the losing side of a race observes not-found.
	if _, err := s.cache.ConsumeToken(ctx, domain.TokenKindPasswordReset, token); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &InvalidTokenError{Kind: domain.TokenKindPasswordReset}
		}
		return nil, fmt.Errorf("consume reset token: %w", err)
	}
	s.countTokenConsumed(domain.TokenKindPasswordReset)

	user, err = s.users.UpdatePassword(ctx, user.ID, hash)
	if err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}

	if _, err := s.sessions.PurgeAll(ctx, user.ID); err != nil {
		return nil, err
	}
	if err := s.guard.Clear(ctx, ActionLogin, user.Email); err != nil {
		return nil, err
	}

	session, err := s.sessions.Establish(ctx, user, EstablishOptions{})
	if err != nil {
		return nil, err
	}

	s.logger.Info("password reset via token", zap.String("user_id", user.ID))
	return &AuthenticationSuccess{User: user, Session: session}, nil
}

// ResetPassword consumes the reset token, replaces the password with a
// generated temporary one, emails it to the user, and purges every session.
func (s *AuthService) ResetPassword(ctx context.Context, token string) error {
	userID, err := s.cache.ConsumeToken(ctx, domain.TokenKindPasswordReset, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &InvalidTokenError{Kind: domain.TokenKindPasswordReset}
		}
		return fmt.Errorf("consume reset token: %w", err)
	}
	s.countTokenConsumed(domain.TokenKindPasswordReset)

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("load user: %w", err)
	}

	tempPassword, err := security.GenerateSecureToken(tempPasswordBytes)
	if err != nil {
		return fmt.Errorf("generate temporary password: %w", err)
	}
	hash, err := s.hasher.HashPassword(tempPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if _, err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if err := s.email.SendResetPassword(ctx, user.Email, user.Username, tempPassword); err != nil {
		return fmt.Errorf("send reset password: %w", err)
	}
	if _, err := s.sessions.PurgeAll(ctx, user.ID); err != nil {
		return err
	}

	s.logger.Info("password reset to temporary", zap.String("user_id", user.ID))
	return nil
}

// SetOTPSecret generates and stores a fresh OTP secret for the user and
// returns it with a provisioning URI. Subsequent logins require the second
// factor.
func (s *AuthService) SetOTPSecret(ctx context.Context, userID string) (*OTPSetup, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	secret, err := security.GenerateOTPSecret()
	if err != nil {
		return nil, fmt.Errorf("generate otp secret: %w", err)
	}
	if _, err := s.users.UpdateOTPSecret(ctx, user.ID, secret); err != nil {
		return nil, fmt.Errorf("store otp secret: %w", err)
	}

	s.logger.Info("otp secret set", zap.String("user_id", user.ID))
	return &OTPSetup{
		Secret: secret,
		URI:    security.OTPAuthURI(secret, user.Email, s.cfg.App.Name),
	}, nil
}

// Logout invalidates the current session, or every session the user holds
// when purge is set.
func (s *AuthService) Logout(ctx context.Context, session *domain.Session, purge bool) error {
	if purge {
		if _, err := s.sessions.PurgeAll(ctx, session.UserID); err != nil {
			return err
		}
		s.logger.Info("all sessions purged", zap.String("user_id", session.UserID))
		return nil
	}
	if err := s.sessions.Invalidate(ctx, session.ID); err != nil {
		return err
	}
	s.logger.Info("session invalidated", zap.String("session_id", session.ID))
	return nil
}

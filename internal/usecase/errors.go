package usecase

import (
	"errors"
	"fmt"

	"github.com/jsantic/authgate/internal/core/domain"
)

var (
	// ErrInvalidCredentials covers unknown emails and wrong passwords alike
	// so responses cannot be used to probe which accounts exist.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailTaken signals a registration against an existing email.
	ErrEmailTaken = errors.New("email is already in use")
	// ErrAlreadyVerified signals a verification attempt on a verified account.
	ErrAlreadyVerified = errors.New("email is already verified")
	// ErrEmailUnverified blocks login until the registration token is used.
	ErrEmailUnverified = errors.New("email is not verified")
	// ErrAccountFrozen blocks authentication on frozen accounts.
	ErrAccountFrozen = errors.New("account is frozen")
	// ErrInvalidToken is the base error matched by InvalidTokenError.
	ErrInvalidToken = errors.New("invalid token")
	// ErrRateExceeded is the base error matched by RateLimitError.
	ErrRateExceeded = errors.New("rate exceeded")
	// ErrEmailCooldown signals a resend attempt inside the cooldown window.
	ErrEmailCooldown = errors.New("email recently sent")
	// ErrInvalidOTP signals a wrong one-time password.
	ErrInvalidOTP = errors.New("invalid one-time password")
	// ErrSessionNotFound signals a missing or expired session.
	ErrSessionNotFound = errors.New("session not found")
)

// InvalidTokenError reports an expired, unknown, or already consumed token of
// a specific kind. It matches ErrInvalidToken under errors.Is.
type InvalidTokenError struct {
	Kind domain.TokenKind
}

func (e *InvalidTokenError) Error() string {
	return fmt.Sprintf("invalid %s token", e.Kind.Label())
}

func (e *InvalidTokenError) Is(target error) bool {
	return target == ErrInvalidToken
}

// RateLimitError reports a throttled action. It matches ErrRateExceeded under
// errors.Is.
type RateLimitError struct {
	Action   string
	Attempts int64
	Limit    int64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate exceeded: %d attempts of %d allowed", e.Action, e.Attempts, e.Limit)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateExceeded
}

// ProviderError wraps a failure reported by an external OAuth provider.
type ProviderError struct {
	Provider domain.OAuthProvider
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

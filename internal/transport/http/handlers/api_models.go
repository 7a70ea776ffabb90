package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jsantic/authgate/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// RegisterRequest defines the payload for starting a registration.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// EmailTokenRequest carries a single-use token delivered by email.
type EmailTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// ResendRequest asks for a fresh registration token.
type ResendRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Remember bool   `json:"remember"`
}

// OTPRequest resolves a two-factor challenge.
type OTPRequest struct {
	Code     string `json:"code" binding:"required"`
	Token    string `json:"token" binding:"required"`
	Remember bool   `json:"remember"`
}

// ChangePasswordRequest rotates the password of the authenticated user.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ForgotPasswordRequest starts the password recovery flow.
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ForgotPasswordVerifyRequest completes password recovery with a new password.
type ForgotPasswordVerifyRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LogoutRequest optionally purges every session of the user.
type LogoutRequest struct {
	Purge bool `json:"purge"`
}

// OAuthCodeRequest carries the authorization code returned by a provider.
type OAuthCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// OAuthRefreshRequest rotates provider access tokens with a refresh token.
type OAuthRefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// UserSummary describes a minimal view of a user returned by the API.
type UserSummary struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Verified bool   `json:"verified"`
	HasOTP   bool   `json:"has_otp"`
}

// SessionSummary provides a compact view of the established session.
type SessionSummary struct {
	ID        string    `json:"id"`
	CSRFToken string    `json:"csrf_token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginResponse is returned on a fully authenticated login.
type LoginResponse struct {
	User    UserSummary    `json:"user"`
	Session SessionSummary `json:"session"`
}

// TwoFactorResponse asks the client to resolve an OTP challenge.
type TwoFactorResponse struct {
	Username string `json:"username"`
	Token    string `json:"token"`
	Remember bool   `json:"remember"`
}

// FreezeResponse reports that the account was frozen after repeated failures.
type FreezeResponse struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

// OTPSetupResponse returns the provisioning material for an authenticator app.
type OTPSetupResponse struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

func newUserSummary(user *domain.User) UserSummary {
	return UserSummary{
		ID:       user.ID,
		Email:    user.Email,
		Username: user.Username,
		Verified: user.Verified(),
		HasOTP:   user.OTPSecret != nil,
	}
}

func newSessionSummary(session *domain.Session) SessionSummary {
	return SessionSummary{
		ID:        session.ID,
		CSRFToken: session.CSRFToken,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	}
}

package domain

// TokenKind scopes ephemeral cache tokens so one flow's tokens can never be
// consumed by another.
type TokenKind string

const (
	TokenKindRegistration  TokenKind = "registration"
	TokenKindPasswordReset TokenKind = "password_reset"
	TokenKindOTPChallenge  TokenKind = "otp_challenge"
	// TokenKindOAuth exists only for labeling invalid-token failures raised
	// when a session lacks an OAuth access token.
	TokenKindOAuth TokenKind = "oauth"
)

// Label returns the user-facing name of the token kind.
func (k TokenKind) Label() string {
	switch k {
	case TokenKindRegistration:
		return "Registration"
	case TokenKindPasswordReset:
		return "Password"
	case TokenKindOTPChallenge:
		return "OTP"
	case TokenKindOAuth:
		return "OAuth"
	default:
		return string(k)
	}
}

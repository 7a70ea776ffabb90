package usecase

import "github.com/jsantic/authgate/internal/core/domain"

// AuthenticationSuccess is the terminal outcome of a successful flow.
type AuthenticationSuccess struct {
	User    *domain.User
	Session *domain.Session
}

// TwoFactorChallenge is the non-terminal step-up outcome returned when the
// account has an OTP secret. The token must be presented to VerifyOTP.
type TwoFactorChallenge struct {
	Username string
	Token    string
	Remember bool
}

// FreezeAccount reports that repeated credential failures froze the account.
type FreezeAccount struct {
	Email   string
	Message string
}

// LoginOutcome is the tagged result of the login flow. Exactly one field is
// non-nil.
type LoginOutcome struct {
	Success   *AuthenticationSuccess
	Challenge *TwoFactorChallenge
	Frozen    *FreezeAccount
}

// RegistrationStart reports that the unverified user was created and the
// registration token was dispatched.
type RegistrationStart struct {
	User    *domain.User
	Message string
}

// OTPSetup carries a freshly generated OTP secret and its provisioning URI.
type OTPSetup struct {
	Secret string
	URI    string
}

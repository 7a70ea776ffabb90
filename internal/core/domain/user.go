package domain

import "time"

// User mirrors the persisted representation in the users table. Password and
// OTPSecret are nil for accounts created through an OAuth provider until the
// user sets them explicitly.
type User struct {
	ID              string
	Email           string
	Username        string
	Password        *string
	OTPSecret       *string
	Frozen          bool
	GoogleID        *string
	GitHubID        *string
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Verified reports whether the user confirmed their email address.
func (u User) Verified() bool {
	return u.EmailVerifiedAt != nil
}

package domain

import "time"

// OAuthProvider identifies an external authorization server.
type OAuthProvider string

const (
	OAuthProviderGitHub OAuthProvider = "github"
	OAuthProviderGoogle OAuthProvider = "google"
)

// OAuthEntry is the single linkage record kept per (user, provider). Token
// refreshes mutate the entry in place; a second row for the same pair is a
// repository-level constraint violation.
type OAuthEntry struct {
	ID           string
	UserID       string
	Provider     OAuthProvider
	AccountID    string
	AccessToken  string
	RefreshToken *string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the stored access token is past its expiry.
func (e OAuthEntry) Expired(at time.Time) bool {
	return !e.ExpiresAt.After(at)
}

// OAuthTokens carries the token response obtained from a provider's code
// exchange or refresh call.
type OAuthTokens struct {
	AccessToken  string
	RefreshToken *string
	ExpiresIn    time.Duration
	Scope        string
	TokenType    string
	IDToken      string
}

// OAuthAccount is the external account profile fetched from a provider.
// Email is nil when the provider reports no verified email address.
type OAuthAccount struct {
	ID       string
	Username string
	Email    *string
}

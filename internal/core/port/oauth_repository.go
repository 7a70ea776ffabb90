package port

import (
	"context"

	"github.com/jsantic/authgate/internal/core/domain"
)

// OAuthRepository persists provider linkages. At most one entry exists per
// (user, provider) pair.
type OAuthRepository interface {
	// GetOrCreateWithUser resolves the linkage for the external account id,
	// creating both the user and the entry in a single transaction when the
	// account was never seen before. An existing entry is returned with its
	// stored tokens untouched.
	GetOrCreateWithUser(ctx context.Context, accountID, email, username string, tokens domain.OAuthTokens, provider domain.OAuthProvider) (*domain.User, *domain.OAuthEntry, error)
	// Update stores the new access token and expiry for the (user, provider)
	// entry. A nil refresh token preserves the stored one.
	Update(ctx context.Context, userID string, tokens domain.OAuthTokens, provider domain.OAuthProvider) (*domain.OAuthEntry, error)
	// RefreshWithSessions overwrites the entry's tokens and propagates the new
	// access token to every session the user holds for the provider.
	RefreshWithSessions(ctx context.Context, userID string, tokens domain.OAuthTokens, provider domain.OAuthProvider) (*domain.OAuthEntry, error)
}

package port

import (
	"context"

	"github.com/jsantic/authgate/internal/core/domain"
)

// OAuthClient drives the authorization-code flow against one external
// provider.
type OAuthClient interface {
	ExchangeCode(ctx context.Context, code string) (*domain.OAuthTokens, error)
	GetAccount(ctx context.Context, tokens *domain.OAuthTokens) (*domain.OAuthAccount, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*domain.OAuthTokens, error)
	ProviderID() domain.OAuthProvider
}

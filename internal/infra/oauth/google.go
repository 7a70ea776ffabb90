package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jsantic/authgate/internal/core/domain"
	"github.com/jsantic/authgate/internal/core/port"
	"github.com/jsantic/authgate/internal/infra/config"
)

const googleTokenURL = "https://oauth2.googleapis.com/token"

// GoogleClient drives the authorization-code flow against Google. The account
// profile comes from the id_token claims, which the token endpoint returns
// alongside the access token.
type GoogleClient struct {
	cfg  config.OAuthProviderSettings
	http *http.Client

	tokenURL string
}

func NewGoogleClient(cfg config.OAuthProviderSettings) *GoogleClient {
	return &GoogleClient{
		cfg:      cfg,
		http:     newHTTPClient(),
		tokenURL: googleTokenURL,
	}
}

var _ port.OAuthClient = (*GoogleClient)(nil)

func (c *GoogleClient) ProviderID() domain.OAuthProvider {
	return domain.OAuthProviderGoogle
}

func (c *GoogleClient) ExchangeCode(ctx context.Context, code string) (*domain.OAuthTokens, error) {
	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"code":          {code},
		"redirect_uri":  {c.cfg.RedirectURI},
		"grant_type":    {"authorization_code"},
	}
	return postTokenForm(ctx, c.http, c.tokenURL, form)
}

func (c *GoogleClient) RefreshAccessToken(ctx context.Context, refreshToken string) (*domain.OAuthTokens, error) {
	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	return postTokenForm(ctx, c.http, c.tokenURL, form)
}

type googleIDClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	jwt.RegisteredClaims
}

// GetAccount extracts the account profile from the id_token. The token came
// directly from Google over TLS in the same exchange, so its signature is not
// re-verified here.
func (c *GoogleClient) GetAccount(_ context.Context, tokens *domain.OAuthTokens) (*domain.OAuthAccount, error) {
	if tokens.IDToken == "" {
		return nil, fmt.Errorf("google token response carried no id_token")
	}

	var claims googleIDClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tokens.IDToken, &claims); err != nil {
		return nil, fmt.Errorf("parse id_token: %w", err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("id_token carried no subject")
	}

	account := &domain.OAuthAccount{
		ID:       claims.Subject,
		Username: claims.Name,
	}
	if claims.EmailVerified && claims.Email != "" {
		verified := claims.Email
		account.Email = &verified
	}

	return account, nil
}

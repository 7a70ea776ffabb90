package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jsantic/authgate/internal/core/domain"
	"github.com/jsantic/authgate/internal/core/port"
	"github.com/jsantic/authgate/internal/infra/config"
)

const (
	githubTokenURL  = "https://github.com/login/oauth/access_token"
	githubUserURL   = "https://api.github.com/user"
	githubEmailsURL = "https://api.github.com/user/emails"
)

// GitHubClient drives the authorization-code flow against GitHub. GitHub does
// not always expose the email on the profile, so the verified primary address
// is fetched from the emails endpoint.
type GitHubClient struct {
	cfg  config.OAuthProviderSettings
	http *http.Client

	tokenURL  string
	userURL   string
	emailsURL string
}

func NewGitHubClient(cfg config.OAuthProviderSettings) *GitHubClient {
	return &GitHubClient{
		cfg:       cfg,
		http:      newHTTPClient(),
		tokenURL:  githubTokenURL,
		userURL:   githubUserURL,
		emailsURL: githubEmailsURL,
	}
}

var _ port.OAuthClient = (*GitHubClient)(nil)

func (c *GitHubClient) ProviderID() domain.OAuthProvider {
	return domain.OAuthProviderGitHub
}

func (c *GitHubClient) ExchangeCode(ctx context.Context, code string) (*domain.OAuthTokens, error) {
	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"code":          {code},
		"redirect_uri":  {c.cfg.RedirectURI},
	}
	return postTokenForm(ctx, c.http, c.tokenURL, form)
}

func (c *GitHubClient) RefreshAccessToken(ctx context.Context, refreshToken string) (*domain.OAuthTokens, error) {
	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	return postTokenForm(ctx, c.http, c.tokenURL, form)
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (c *GitHubClient) GetAccount(ctx context.Context, tokens *domain.OAuthTokens) (*domain.OAuthAccount, error) {
	var user githubUser
	if err := getJSON(ctx, c.http, c.userURL, tokens.AccessToken, &user); err != nil {
		return nil, fmt.Errorf("fetch github profile: %w", err)
	}

	account := &domain.OAuthAccount{
		ID:       strconv.FormatInt(user.ID, 10),
		Username: user.Login,
	}

	var emails []githubEmail
	if err := getJSON(ctx, c.http, c.emailsURL, tokens.AccessToken, &emails); err != nil {
		return nil, fmt.Errorf("fetch github emails: %w", err)
	}
	for _, email := range emails {
		if email.Primary && email.Verified {
			verified := email.Email
			account.Email = &verified
			break
		}
	}

	return account, nil
}

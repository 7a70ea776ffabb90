package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jsantic/authgate/internal/core/domain"
	"github.com/jsantic/authgate/internal/core/port"
)

// ErrUnknownProvider signals a request for a provider the service was not
// configured with.
var ErrUnknownProvider = errors.New("unknown oauth provider")

// OAuthService coordinates authorization-code logins and token refreshes
// against external providers.
type OAuthService struct {
	clients  map[domain.OAuthProvider]port.OAuthClient
	oauth    port.OAuthRepository
	sessions *SessionService
	logger   *zap.Logger

	now func() time.Time
}

func NewOAuthService(oauth port.OAuthRepository, sessions *SessionService, logger *zap.Logger, clients ...port.OAuthClient) *OAuthService {
	byProvider := make(map[domain.OAuthProvider]port.OAuthClient, len(clients))
	for _, client := range clients {
		byProvider[client.ProviderID()] = client
	}
	return &OAuthService{
		clients:  byProvider,
		oauth:    oauth,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *OAuthService) WithClock(now func() time.Time) *OAuthService {
	s.now = now
	return s
}

func (s *OAuthService) client(provider domain.OAuthProvider) (port.OAuthClient, error) {
	client, ok := s.clients[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return client, nil
}

// Login exchanges the authorization code, resolves or creates the local user
// for the external account, and establishes an OAuth-backed session. When the
// link already exists and its stored access token is expired, the stored
// refresh token (if any) is traded for a new token set; without one the
// exchange result overwrites the entry.
func (s *OAuthService) Login(ctx context.Context, provider domain.OAuthProvider, code string) (*AuthenticationSuccess, error) {
	client, err := s.client(provider)
	if err != nil {
		return nil, err
	}

	tokens, err := client.ExchangeCode(ctx, code)
	if err != nil {
		return nil, &ProviderError{Provider: provider, Err: fmt.Errorf("exchange code: %w", err)}
	}

	account, err := client.GetAccount(ctx, tokens)
	if err != nil {
		return nil, &ProviderError{Provider: provider, Err: fmt.Errorf("fetch account: %w", err)}
	}
	// The engine maps accounts by verified email only.
	if account.Email == nil {
		return nil, ErrEmailUnverified
	}

	user, entry, err := s.oauth.GetOrCreateWithUser(ctx, account.ID, *account.Email, account.Username, *tokens, provider)
	if err != nil {
		return nil, fmt.Errorf("resolve provider account: %w", err)
	}
	if user.Frozen {
		return nil, ErrAccountFrozen
	}

	accessToken := tokens.AccessToken
	if entry.Expired(s.now()) {
		fresh := tokens
		if entry.RefreshToken != nil {
			fresh, err = client.RefreshAccessToken(ctx, *entry.RefreshToken)
			if err != nil {
				return nil, &ProviderError{Provider: provider, Err: fmt.Errorf("refresh access token: %w", err)}
			}
		}
		if _, err := s.oauth.RefreshWithSessions(ctx, user.ID, *fresh, provider); err != nil {
			return nil, fmt.Errorf("store refreshed tokens: %w", err)
		}
		accessToken = fresh.AccessToken
		s.logger.Info("oauth link refreshed",
			zap.String("user_id", user.ID),
			zap.String("provider", string(provider)))
	}

	// Provider logins are always remembered; the provider token outlives a
	// short session anyway.
	session, err := s.sessions.Establish(ctx, user, EstablishOptions{
		Remember:    true,
		AccessToken: &accessToken,
		Provider:    &provider,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("oauth login",
		zap.String("user_id", user.ID),
		zap.String("provider", string(provider)))

	return &AuthenticationSuccess{User: user, Session: session}, nil
}

// RequestAdditionalScopes re-runs the code exchange for a broader scope set
// and stores the upgraded tokens. Every session row the user holds for the
// provider gets the new access token, but only the calling session is
// re-cached; the others fall back to the repository on their next lookup.
func (s *OAuthService) RequestAdditionalScopes(ctx context.Context, session *domain.Session, code string) (*domain.Session, error) {
	if session.Provider == nil {
		return nil, &InvalidTokenError{Kind: domain.TokenKindOAuth}
	}
	provider := *session.Provider

	client, err := s.client(provider)
	if err != nil {
		return nil, err
	}

	tokens, err := client.ExchangeCode(ctx, code)
	if err != nil {
		return nil, &ProviderError{Provider: provider, Err: fmt.Errorf("exchange code: %w", err)}
	}

	if _, err := s.oauth.RefreshWithSessions(ctx, session.UserID, *tokens, provider); err != nil {
		return nil, fmt.Errorf("store upgraded tokens: %w", err)
	}

	session.OAuthToken = &tokens.AccessToken
	s.sessions.CacheSession(ctx, session)

	s.logger.Info("oauth scopes upgraded",
		zap.String("user_id", session.UserID),
		zap.String("provider", string(provider)))

	return session, nil
}

// RefreshTokens trades the stored refresh token for a new access token and
// propagates it the same way RequestAdditionalScopes does.
func (s *OAuthService) RefreshTokens(ctx context.Context, session *domain.Session, refreshToken string) (*domain.Session, error) {
	if session.Provider == nil {
		return nil, &InvalidTokenError{Kind: domain.TokenKindOAuth}
	}
	provider := *session.Provider

	client, err := s.client(provider)
	if err != nil {
		return nil, err
	}

	tokens, err := client.RefreshAccessToken(ctx, refreshToken)
	if err != nil {
		return nil, &ProviderError{Provider: provider, Err: fmt.Errorf("refresh access token: %w", err)}
	}

	if _, err := s.oauth.RefreshWithSessions(ctx, session.UserID, *tokens, provider); err != nil {
		return nil, fmt.Errorf("store refreshed tokens: %w", err)
	}

	session.OAuthToken = &tokens.AccessToken
	s.sessions.CacheSession(ctx, session)

	return session, nil
}

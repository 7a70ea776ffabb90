package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jsantic/authgate/internal/core/domain"
	"github.com/jsantic/authgate/internal/core/port"
	"github.com/jsantic/authgate/internal/infra/config"
	"github.com/jsantic/authgate/internal/repository"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		App: config.AppSettings{Name: "authgate-test"},
		Session: config.SessionSettings{
			TTL:          30 * time.Minute,
			PermanentTTL: 720 * time.Hour,
			CacheTTL:     30 * time.Minute,
		},
		Tokens: config.TokenSettings{
			RegistrationSecret:  "registration-secret",
			RegistrationTTL:     24 * time.Hour,
			PasswordResetSecret: "password-reset-secret",
			PasswordResetTTL:    time.Hour,
			OTPChallengeSecret:  "otp-challenge-secret",
			OTPChallengeTTL:     5 * time.Minute,
		},
		Throttle: config.ThrottleSettings{
			LoginMaxAttempts:    5,
			LoginFreezeAttempts: 10,
			LoginWindow:         5 * time.Minute,
			OTPMaxAttempts:      5,
			OTPWindow:           5 * time.Minute,
			EmailCooldown:       time.Minute,
		},
	}
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserRepo(users ...*domain.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[string]*domain.User)}
	for _, user := range users {
		copied := *user
		repo.users[user.ID] = &copied
	}
	return repo
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return nil, repository.ErrDuplicate
		}
	}
	copied := *user
	r.users[user.ID] = &copied
	out := copied
	return &out, nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[id]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, id string, hash string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	user.Password = &hash
	copied := *user
	return &copied, nil
}

func (r *fakeUserRepo) UpdateEmailVerification(_ context.Context, id string, verifiedAt time.Time) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	user.EmailVerifiedAt = &verifiedAt
	copied := *user
	return &copied, nil
}

func (r *fakeUserRepo) UpdateOTPSecret(_ context.Context, id string, secret string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	user.OTPSecret = &secret
	copied := *user
	return &copied, nil
}

func (r *fakeUserRepo) Freeze(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	user.Frozen = true
	copied := *user
	return &copied, nil
}

var _ port.UserRepository = (*fakeUserRepo)(nil)

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]domain.Session)}
}

func (r *fakeSessionRepo) Create(_ context.Context, session *domain.Session) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = *session
	copied := *session
	return &copied, nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[id]; ok {
		return &session, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeSessionRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *fakeSessionRepo) PurgeForUser(_ context.Context, userID string) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var purged []domain.Session
	for id, session := range r.sessions {
		if session.UserID == userID {
			purged = append(purged, session)
			delete(r.sessions, id)
		}
	}
	return purged, nil
}

func (r *fakeSessionRepo) UpdateAccessTokens(_ context.Context, accessToken, userID string, provider domain.OAuthProvider) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var updated []domain.Session
	for id, session := range r.sessions {
		if session.UserID == userID && session.Provider != nil && *session.Provider == provider {
			token := accessToken
			session.OAuthToken = &token
			r.sessions[id] = session
			updated = append(updated, session)
		}
	}
	return updated, nil
}

var _ port.SessionRepository = (*fakeSessionRepo)(nil)

type fakeCache struct {
	mu            sync.Mutex
	tokens        map[string]string
	sessions      map[string]domain.Session
	attempts      map[string]int64
	emailThrottle map[string]bool

	failSessionWrites bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		tokens:        make(map[string]string),
		sessions:      make(map[string]domain.Session),
		attempts:      make(map[string]int64),
		emailThrottle: make(map[string]bool),
	}
}

func (c *fakeCache) tokenKey(kind domain.TokenKind, key string) string {
	return string(kind) + ":" + key
}

func (c *fakeCache) SetToken(_ context.Context, kind domain.TokenKind, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[c.tokenKey(kind, key)] = value
	return nil
}

func (c *fakeCache) GetToken(_ context.Context, kind domain.TokenKind, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value, ok := c.tokens[c.tokenKey(kind, key)]; ok {
		return value, nil
	}
	return "", repository.ErrNotFound
}

func (c *fakeCache) ConsumeToken(_ context.Context, kind domain.TokenKind, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	full := c.tokenKey(kind, key)
	if value, ok := c.tokens[full]; ok {
		delete(c.tokens, full)
		return value, nil
	}
	return "", repository.ErrNotFound
}

func (c *fakeCache) DeleteToken(_ context.Context, kind domain.TokenKind, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, c.tokenKey(kind, key))
	return nil
}

func (c *fakeCache) SetSession(_ context.Context, session domain.Session, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSessionWrites {
		return errors.New("cache unavailable")
	}
	c.sessions[session.ID] = session
	return nil
}

func (c *fakeCache) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if session, ok := c.sessions[sessionID]; ok {
		return &session, nil
	}
	return nil, repository.ErrNotFound
}

func (c *fakeCache) DeleteSession(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
	return nil
}

func (c *fakeCache) CacheAttempt(_ context.Context, action, identity string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[action+":"+identity]++
	return c.attempts[action+":"+identity], nil
}

func (c *fakeCache) DeleteAttempts(_ context.Context, action, identity string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attempts, action+":"+identity)
	return nil
}

func (c *fakeCache) GetAttempts(_ context.Context, action, identity string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[action+":"+identity], nil
}

func (c *fakeCache) GetEmailThrottle(_ context.Context, identity string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emailThrottle[identity], nil
}

func (c *fakeCache) SetEmailThrottle(_ context.Context, identity string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emailThrottle[identity] = true
	return nil
}

func (c *fakeCache) DeleteEmailThrottle(_ context.Context, identity string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.emailThrottle, identity)
	return nil
}

var _ port.Cache = (*fakeCache)(nil)

type sentEmail struct {
	kind     string
	email    string
	username string
	payload  string
}

type fakeEmailSender struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (s *fakeEmailSender) record(kind, email, username, payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentEmail{kind: kind, email: email, username: username, payload: payload})
}

func (s *fakeEmailSender) SendRegistrationToken(_ context.Context, email, username, token string) error {
	s.record("registration", email, username, token)
	return nil
}

func (s *fakeEmailSender) SendForgotPassword(_ context.Context, email, username, token string) error {
	s.record("forgot_password", email, username, token)
	return nil
}

func (s *fakeEmailSender) SendResetPassword(_ context.Context, email, username, tempPassword string) error {
	s.record("reset_password", email, username, tempPassword)
	return nil
}

func (s *fakeEmailSender) AlertPasswordChange(_ context.Context, email, username, resetToken string) error {
	s.record("password_change_alert", email, username, resetToken)
	return nil
}

func (s *fakeEmailSender) last() *sentEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return nil
	}
	return &s.sent[len(s.sent)-1]
}

var _ port.EmailSender = (*fakeEmailSender)(nil)

type fakeOAuthRepo struct {
	mu       sync.Mutex
	users    *fakeUserRepo
	sessions *fakeSessionRepo
	entries  map[string]*domain.OAuthEntry
	now      func() time.Time
}

func newFakeOAuthRepo(users *fakeUserRepo, sessions *fakeSessionRepo) *fakeOAuthRepo {
	return &fakeOAuthRepo{
		users:    users,
		sessions: sessions,
		entries:  make(map[string]*domain.OAuthEntry),
		now:      time.Now,
	}
}

func (r *fakeOAuthRepo) entryKey(accountID string, provider domain.OAuthProvider) string {
	return string(provider) + ":" + accountID
}

func (r *fakeOAuthRepo) GetOrCreateWithUser(ctx context.Context, accountID, email, username string, tokens domain.OAuthTokens, provider domain.OAuthProvider) (*domain.User, *domain.OAuthEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[r.entryKey(accountID, provider)]; ok {
		user, err := r.users.GetByID(ctx, entry.UserID)
		if err != nil {
			return nil, nil, err
		}
		copied := *entry
		return user, &copied, nil
	}

	user, err := r.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		now := time.Now()
		user, err = r.users.Create(ctx, &domain.User{
			ID:              uuid.NewString(),
			Email:           email,
			Username:        username,
			EmailVerifiedAt: &now,
		})
	}
	if err != nil {
		return nil, nil, err
	}

	entry := &domain.OAuthEntry{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		Provider:     provider,
		AccountID:    accountID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    r.now().Add(tokens.ExpiresIn),
	}
	r.entries[r.entryKey(accountID, provider)] = entry
	copied := *entry
	return user, &copied, nil
}

func (r *fakeOAuthRepo) applyTokens(entry *domain.OAuthEntry, tokens domain.OAuthTokens) {
	entry.AccessToken = tokens.AccessToken
	// A nil refresh token keeps the stored one, like the COALESCE in the
	// real repository.
	if tokens.RefreshToken != nil {
		entry.RefreshToken = tokens.RefreshToken
	}
	entry.ExpiresAt = r.now().Add(tokens.ExpiresIn)
}

func (r *fakeOAuthRepo) Update(_ context.Context, userID string, tokens domain.OAuthTokens, provider domain.OAuthProvider) (*domain.OAuthEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		if entry.UserID == userID && entry.Provider == provider {
			r.applyTokens(entry, tokens)
			copied := *entry
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeOAuthRepo) RefreshWithSessions(ctx context.Context, userID string, tokens domain.OAuthTokens, provider domain.OAuthProvider) (*domain.OAuthEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		if entry.UserID == userID && entry.Provider == provider {
			r.applyTokens(entry, tokens)
			if _, err := r.sessions.UpdateAccessTokens(ctx, tokens.AccessToken, userID, provider); err != nil {
				return nil, err
			}
			copied := *entry
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

var _ port.OAuthRepository = (*fakeOAuthRepo)(nil)

type fakeOAuthClient struct {
	provider domain.OAuthProvider
	tokens   *domain.OAuthTokens
	account  *domain.OAuthAccount

	// refreshResult, when set, is returned by RefreshAccessToken instead of
	// the exchange tokens.
	refreshResult *domain.OAuthTokens
	refreshCalls  int
	lastRefresh   string

	exchangeErr error
	accountErr  error
	refreshErr  error
}

func (c *fakeOAuthClient) ExchangeCode(context.Context, string) (*domain.OAuthTokens, error) {
	if c.exchangeErr != nil {
		return nil, c.exchangeErr
	}
	copied := *c.tokens
	return &copied, nil
}

func (c *fakeOAuthClient) GetAccount(context.Context, *domain.OAuthTokens) (*domain.OAuthAccount, error) {
	if c.accountErr != nil {
		return nil, c.accountErr
	}
	copied := *c.account
	return &copied, nil
}

func (c *fakeOAuthClient) RefreshAccessToken(_ context.Context, refreshToken string) (*domain.OAuthTokens, error) {
	c.refreshCalls++
	c.lastRefresh = refreshToken
	if c.refreshErr != nil {
		return nil, c.refreshErr
	}
	source := c.tokens
	if c.refreshResult != nil {
		source = c.refreshResult
	}
	copied := *source
	return &copied, nil
}

func (c *fakeOAuthClient) ProviderID() domain.OAuthProvider {
	return c.provider
}

var _ port.OAuthClient = (*fakeOAuthClient)(nil)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

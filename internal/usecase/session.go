package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jsantic/authgate/internal/core/domain"
	"github.com/jsantic/authgate/internal/core/port"
	"github.com/jsantic/authgate/internal/infra/config"
	"github.com/jsantic/authgate/internal/infra/security"
	"github.com/jsantic/authgate/internal/infra/telemetry"
	"github.com/jsantic/authgate/internal/repository"
)

const csrfTokenBytes = 32

// EstablishOptions tunes how a session is created.
type EstablishOptions struct {
	// Remember extends the session to the permanent TTL and enables caching.
	Remember bool
	// AccessToken and Provider are set for sessions established through an
	// OAuth provider.
	AccessToken *string
	Provider    *domain.OAuthProvider
}

// SessionService owns session creation, validation, and teardown. The
// repository row is authoritative; the cache copy only accelerates lookups
// and is evicted on every repository change.
type SessionService struct {
	sessions port.SessionRepository
	cache    port.Cache
	cfg      config.SessionSettings
	logger   *zap.Logger
	metrics  *telemetry.AuthMetrics

	now func() time.Time
}

func NewSessionService(sessions port.SessionRepository, cache port.Cache, cfg config.SessionSettings, logger *zap.Logger) *SessionService {
	return &SessionService{
		sessions: sessions,
		cache:    cache,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// WithMetrics attaches the auth flow collectors.
func (s *SessionService) WithMetrics(m *telemetry.AuthMetrics) *SessionService {
	s.metrics = m
	return s
}

// Establish creates a session for the user. The repository write must
// succeed; a cache write failure downgrades to a log entry because the
// repository fallback still serves the session.
func (s *SessionService) Establish(ctx context.Context, user *domain.User, opts EstablishOptions) (*domain.Session, error) {
	csrf, err := security.GenerateSecureToken(csrfTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate csrf token: %w", err)
	}

	ttl := s.cfg.TTL
	if opts.Remember {
		ttl = s.cfg.PermanentTTL
	}

	now := s.now()
	session, err := s.sessions.Create(ctx, &domain.Session{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		CSRFToken:  csrf,
		OAuthToken: opts.AccessToken,
		Provider:   opts.Provider,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	// Only remembered sessions are worth caching; short-lived ones expire
	// before the cache pays off.
	if opts.Remember {
		s.CacheSession(ctx, session)
	}

	if s.metrics != nil {
		s.metrics.SessionsActive.Inc()
	}
	return session, nil
}

// CacheSession writes the session copy to the cache, logging on failure.
func (s *SessionService) CacheSession(ctx context.Context, session *domain.Session) {
	if err := s.cache.SetSession(ctx, *session, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("session cache write failed",
			zap.String("session_id", session.ID),
			zap.Error(err))
	}
}

// Validate resolves the session by id, preferring the cache and falling back
// to the repository. A repository hit missed by the cache is repopulated.
// Expired sessions are reported as not found.
func (s *SessionService) Validate(ctx context.Context, sessionID string) (*domain.Session, error) {
	cached, err := s.cache.GetSession(ctx, sessionID)
	if err == nil {
		if !cached.Valid(s.now()) {
			return nil, ErrSessionNotFound
		}
		return cached, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("session cache read failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !session.Valid(s.now()) {
		return nil, ErrSessionNotFound
	}

	s.CacheSession(ctx, session)
	return session, nil
}

// Invalidate deletes the session from the repository and evicts the cache
// copy.
func (s *SessionService) Invalidate(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("delete session: %w", err)
	}
	if err := s.cache.DeleteSession(ctx, sessionID); err != nil {
		s.logger.Warn("session cache eviction failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.SessionsActive.Dec()
	}
	return nil
}

// PurgeAll deletes every session the user holds and evicts the matching
// cache entries. It returns the number of purged sessions.
func (s *SessionService) PurgeAll(ctx context.Context, userID string) (int, error) {
	purged, err := s.sessions.PurgeForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	for _, session := range purged {
		if err := s.cache.DeleteSession(ctx, session.ID); err != nil {
			s.logger.Warn("session cache eviction failed",
				zap.String("session_id", session.ID),
				zap.Error(err))
		}
	}
	if s.metrics != nil {
		s.metrics.SessionsActive.Sub(float64(len(purged)))
	}
	return len(purged), nil
}

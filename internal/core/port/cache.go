package port

import (
	"context"
	"time"

	"github.com/jsantic/authgate/internal/core/domain"
)

// Cache exposes the ephemeral storage the engine relies on: single-use
// tokens, cached sessions, and throttle counters. Lookups return
// repository.ErrNotFound when the key is absent or expired.
type Cache interface {
	// SetToken maps a (kind, key) pair to a value with the supplied TTL.
	SetToken(ctx context.Context, kind domain.TokenKind, key, value string, ttl time.Duration) error
	GetToken(ctx context.Context, kind domain.TokenKind, key string) (string, error)
	// ConsumeToken atomically reads and deletes the token, guaranteeing
	// at-most-once resolution under concurrent consumers.
	ConsumeToken(ctx context.Context, kind domain.TokenKind, key string) (string, error)
	DeleteToken(ctx context.Context, kind domain.TokenKind, key string) error

	SetSession(ctx context.Context, session domain.Session, ttl time.Duration) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// CacheAttempt atomically increments the counter for the identity within
	// the action's scope and returns the new count. The TTL window is applied
	// when the counter is first created and never extended on increment.
	CacheAttempt(ctx context.Context, action, identity string, window time.Duration) (int64, error)
	DeleteAttempts(ctx context.Context, action, identity string) error
	GetAttempts(ctx context.Context, action, identity string) (int64, error)

	GetEmailThrottle(ctx context.Context, identity string) (bool, error)
	SetEmailThrottle(ctx context.Context, identity string, ttl time.Duration) error
	DeleteEmailThrottle(ctx context.Context, identity string) error
}

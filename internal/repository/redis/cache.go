package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/jsantic/authgate/internal/core/domain"
	"github.com/jsantic/authgate/internal/core/port"
	"github.com/jsantic/authgate/internal/repository"
)

const defaultKeyPrefix = "authgate"

// AuthCache implements port.Cache on top of Redis. Tokens and throttle
// counters rely on Redis atomicity (INCR, GETDEL) rather than in-process
// locking.
type AuthCache struct {
	client *red.Client
	prefix string
}

// NewAuthCache constructs an AuthCache with the provided key prefix.
func NewAuthCache(client *red.Client, keyPrefix string) *AuthCache {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &AuthCache{client: client, prefix: prefix}
}

// SetToken maps a (kind, key) pair to a value with the supplied TTL.
func (c *AuthCache) SetToken(ctx context.Context, kind domain.TokenKind, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.tokenKey(kind, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set token: %w", err)
	}
	return nil
}

// GetToken returns the value behind the token without consuming it.
func (c *AuthCache) GetToken(ctx context.Context, kind domain.TokenKind, key string) (string, error) {
	value, err := c.client.Get(ctx, c.tokenKey(kind, key)).Result()
	if errors.Is(err, red.Nil) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get token: %w", err)
	}
	return value, nil
}

// ConsumeToken atomically reads and deletes the token. When two callers race
// on the same token exactly one of them observes the value; the other gets
// repository.ErrNotFound.
func (c *AuthCache) ConsumeToken(ctx context.Context, kind domain.TokenKind, key string) (string, error) {
	value, err := c.client.GetDel(ctx, c.tokenKey(kind, key)).Result()
	if errors.Is(err, red.Nil) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis getdel token: %w", err)
	}
	return value, nil
}

// DeleteToken removes the token regardless of its value.
func (c *AuthCache) DeleteToken(ctx context.Context, kind domain.TokenKind, key string) error {
	if err := c.client.Del(ctx, c.tokenKey(kind, key)).Err(); err != nil {
		return fmt.Errorf("redis delete token: %w", err)
	}
	return nil
}

// SetSession caches the JSON-serialized session under its id.
func (c *AuthCache) SetSession(ctx context.Context, session domain.Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := c.client.Set(ctx, c.sessionKey(session.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// GetSession returns the cached session or repository.ErrNotFound.
func (c *AuthCache) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	payload, err := c.client.Get(ctx, c.sessionKey(sessionID)).Bytes()
	if errors.Is(err, red.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

// DeleteSession evicts the cached session.
func (c *AuthCache) DeleteSession(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, c.sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

// CacheAttempt increments the counter for the identity/action pair and
// returns the new count. The TTL window starts with the first attempt and is
// never extended afterwards, so the counter resets only by expiry.
func (c *AuthCache) CacheAttempt(ctx context.Context, action, identity string, window time.Duration) (int64, error) {
	key := c.attemptKey(action, identity)

	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr attempts: %w", err)
	}

	if count == 1 && window > 0 {
		if err := c.client.Expire(ctx, key, window).Err(); err != nil {
			return count, fmt.Errorf("redis expire attempts: %w", err)
		}
	}

	return count, nil
}

// GetAttempts returns the current counter value, zero when absent.
func (c *AuthCache) GetAttempts(ctx context.Context, action, identity string) (int64, error) {
	count, err := c.client.Get(ctx, c.attemptKey(action, identity)).Int64()
	if errors.Is(err, red.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get attempts: %w", err)
	}
	return count, nil
}

// DeleteAttempts clears the counter for the identity/action pair.
func (c *AuthCache) DeleteAttempts(ctx context.Context, action, identity string) error {
	if err := c.client.Del(ctx, c.attemptKey(action, identity)).Err(); err != nil {
		return fmt.Errorf("redis delete attempts: %w", err)
	}
	return nil
}

// GetEmailThrottle reports whether the identity is inside an email cooldown.
func (c *AuthCache) GetEmailThrottle(ctx context.Context, identity string) (bool, error) {
	err := c.client.Get(ctx, c.emailThrottleKey(identity)).Err()
	if errors.Is(err, red.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get email throttle: %w", err)
	}
	return true, nil
}

// SetEmailThrottle stamps the cooldown flag for the identity.
func (c *AuthCache) SetEmailThrottle(ctx context.Context, identity string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.emailThrottleKey(identity), "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set email throttle: %w", err)
	}
	return nil
}

// DeleteEmailThrottle clears the cooldown flag.
func (c *AuthCache) DeleteEmailThrottle(ctx context.Context, identity string) error {
	if err := c.client.Del(ctx, c.emailThrottleKey(identity)).Err(); err != nil {
		return fmt.Errorf("redis delete email throttle: %w", err)
	}
	return nil
}

func (c *AuthCache) tokenKey(kind domain.TokenKind, key string) string {
	return fmt.Sprintf("%s:token:%s:%s", c.prefix, kind, key)
}

func (c *AuthCache) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", c.prefix, id)
}

func (c *AuthCache) attemptKey(action, identity string) string {
	return fmt.Sprintf("%s:attempts:%s:%s", c.prefix, action, identity)
}

func (c *AuthCache) emailThrottleKey(identity string) string {
	return fmt.Sprintf("%s:email_throttle:%s", c.prefix, identity)
}

var _ port.Cache = (*AuthCache)(nil)

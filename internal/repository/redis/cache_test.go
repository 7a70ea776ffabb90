package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/jsantic/authgate/internal/core/domain"
	"github.com/jsantic/authgate/internal/repository"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestAuthCache_TokenLifecycle(t *testing.T) {
	client, server := newTestRedis(t)
	cache := NewAuthCache(client, "test")

	ctx := context.Background()
	ttl := 5 * time.Minute

	if err := cache.SetToken(ctx, domain.TokenKindRegistration, "token-abc", "user-1", ttl); err != nil {
		t.Fatalf("SetToken returned error: %v", err)
	}

	value, err := cache.GetToken(ctx, domain.TokenKindRegistration, "token-abc")
	if err != nil {
		t.Fatalf("GetToken returned error: %v", err)
	}
	if value != "user-1" {
		t.Fatalf("expected user-1, got %s", value)
	}

	remaining := server.TTL("test:token:registration:token-abc")
	if remaining <= 0 || remaining > ttl {
		t.Fatalf("expected ttl within (0, %v], got %v", ttl, remaining)
	}

	// Token kinds are separate namespaces.
	if _, err := cache.GetToken(ctx, domain.TokenKindPasswordReset, "token-abc"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound across kinds, got %v", err)
	}
}

func TestAuthCache_ConsumeTokenIsSingleUse(t *testing.T) {
	client, _ := newTestRedis(t)
	cache := NewAuthCache(client, "test")

	ctx := context.Background()

	if err := cache.SetToken(ctx, domain.TokenKindOTPChallenge, "challenge-1", "user-9", time.Minute); err != nil {
		t.Fatalf("SetToken returned error: %v", err)
	}

	value, err := cache.ConsumeToken(ctx, domain.TokenKindOTPChallenge, "challenge-1")
	if err != nil {
		t.Fatalf("ConsumeToken returned error: %v", err)
	}
	if value != "user-9" {
		t.Fatalf("expected user-9, got %s", value)
	}

	if _, err := cache.ConsumeToken(ctx, domain.TokenKindOTPChallenge, "challenge-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second consume, got %v", err)
	}
}

func TestAuthCache_SessionRoundTrip(t *testing.T) {
	client, _ := newTestRedis(t)
	cache := NewAuthCache(client, "test")

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	token := "gho_token"
	provider := domain.OAuthProviderGitHub
	session := domain.Session{
		ID:         "session-1",
		UserID:     "user-1",
		CSRFToken:  "csrf-1",
		OAuthToken: &token,
		Provider:   &provider,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	}

	if err := cache.SetSession(ctx, session, 30*time.Minute); err != nil {
		t.Fatalf("SetSession returned error: %v", err)
	}

	cached, err := cache.GetSession(ctx, "session-1")
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if cached.UserID != session.UserID || cached.CSRFToken != session.CSRFToken {
		t.Fatalf("unexpected cached session: %+v", cached)
	}
	if cached.OAuthToken == nil || *cached.OAuthToken != token {
		t.Fatalf("expected oauth token preserved, got %+v", cached)
	}
	if cached.Provider == nil || *cached.Provider != provider {
		t.Fatalf("expected provider preserved, got %+v", cached)
	}

	if err := cache.DeleteSession(ctx, "session-1"); err != nil {
		t.Fatalf("DeleteSession returned error: %v", err)
	}
	if _, err := cache.GetSession(ctx, "session-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestAuthCache_CacheAttemptWindow(t *testing.T) {
	client, server := newTestRedis(t)
	cache := NewAuthCache(client, "test")

	ctx := context.Background()
	window := 5 * time.Minute

	for want := int64(1); want <= 3; want++ {
		count, err := cache.CacheAttempt(ctx, "login", "alice@example.com", window)
		if err != nil {
			t.Fatalf("CacheAttempt returned error: %v", err)
		}
		if count != want {
			t.Fatalf("expected count %d, got %d", want, count)
		}
	}

	key := "test:attempts:login:alice@example.com"
	remaining := server.TTL(key)
	if remaining <= 0 || remaining > window {
		t.Fatalf("expected ttl within (0, %v], got %v", window, remaining)
	}

	// The window is fixed at first increment; expiry resets the counter.
	server.FastForward(window + time.Second)

	count, err := cache.CacheAttempt(ctx, "login", "alice@example.com", window)
	if err != nil {
		t.Fatalf("CacheAttempt returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected counter reset to 1 after expiry, got %d", count)
	}
}

func TestAuthCache_GetAndDeleteAttempts(t *testing.T) {
	client, _ := newTestRedis(t)
	cache := NewAuthCache(client, "test")

	ctx := context.Background()

	count, err := cache.GetAttempts(ctx, "otp", "user-1")
	if err != nil {
		t.Fatalf("GetAttempts returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected zero attempts for missing key, got %d", count)
	}

	if _, err := cache.CacheAttempt(ctx, "otp", "user-1", time.Minute); err != nil {
		t.Fatalf("CacheAttempt returned error: %v", err)
	}
	if _, err := cache.CacheAttempt(ctx, "otp", "user-1", time.Minute); err != nil {
		t.Fatalf("CacheAttempt returned error: %v", err)
	}

	count, err = cache.GetAttempts(ctx, "otp", "user-1")
	if err != nil {
		t.Fatalf("GetAttempts returned error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected two attempts, got %d", count)
	}

	if err := cache.DeleteAttempts(ctx, "otp", "user-1"); err != nil {
		t.Fatalf("DeleteAttempts returned error: %v", err)
	}
	count, err = cache.GetAttempts(ctx, "otp", "user-1")
	if err != nil {
		t.Fatalf("GetAttempts returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected counter cleared, got %d", count)
	}
}

func TestAuthCache_EmailThrottle(t *testing.T) {
	client, server := newTestRedis(t)
	cache := NewAuthCache(client, "test")

	ctx := context.Background()

	throttled, err := cache.GetEmailThrottle(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetEmailThrottle returned error: %v", err)
	}
	if throttled {
		t.Fatalf("expected no cooldown initially")
	}

	if err := cache.SetEmailThrottle(ctx, "alice@example.com", time.Minute); err != nil {
		t.Fatalf("SetEmailThrottle returned error: %v", err)
	}

	throttled, err = cache.GetEmailThrottle(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetEmailThrottle returned error: %v", err)
	}
	if !throttled {
		t.Fatalf("expected cooldown active")
	}

	server.FastForward(2 * time.Minute)

	throttled, err = cache.GetEmailThrottle(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetEmailThrottle returned error: %v", err)
	}
	if throttled {
		t.Fatalf("expected cooldown expired")
	}
}

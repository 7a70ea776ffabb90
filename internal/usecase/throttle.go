package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jsantic/authgate/internal/core/port"
)

// Throttle action scopes. Counters for different actions never interact even
// for the same identity.
const (
	ActionLogin = "login"
	ActionOTP   = "otp"
)

// Guard enforces per-identity attempt limits on top of the cache's atomic
// counters.
type Guard struct {
	cache  port.Cache
	logger *zap.Logger
}

func NewGuard(cache port.Cache, logger *zap.Logger) *Guard {
	return &Guard{cache: cache, logger: logger}
}

// Check fails with RateLimitError when the identity already reached the limit
// for the action. It does not consume an attempt.
func (g *Guard) Check(ctx context.Context, action, identity string, limit int64) error {
	count, err := g.cache.GetAttempts(ctx, action, identity)
	if err != nil {
		return fmt.Errorf("read attempts: %w", err)
	}
	if count >= limit {
		return &RateLimitError{Action: action, Attempts: count, Limit: limit}
	}
	return nil
}

// Record registers a failed attempt and returns the running count.
func (g *Guard) Record(ctx context.Context, action, identity string, window time.Duration) (int64, error) {
	count, err := g.cache.CacheAttempt(ctx, action, identity, window)
	if err != nil {
		return 0, fmt.Errorf("record attempt: %w", err)
	}
	if g.logger != nil {
		g.logger.Debug("throttle attempt recorded",
			zap.String("action", action),
			zap.Int64("count", count))
	}
	return count, nil
}

// CheckAndRecord registers a failed attempt and fails with RateLimitError
// when the new count reaches the limit.
func (g *Guard) CheckAndRecord(ctx context.Context, action, identity string, limit int64, window time.Duration) (int64, error) {
	count, err := g.Record(ctx, action, identity, window)
	if err != nil {
		return 0, err
	}
	if count >= limit {
		return count, &RateLimitError{Action: action, Attempts: count, Limit: limit}
	}
	return count, nil
}

// Clear wipes the counter for the identity, typically after a successful
// authentication.
func (g *Guard) Clear(ctx context.Context, action, identity string) error {
	if err := g.cache.DeleteAttempts(ctx, action, identity); err != nil {
		return fmt.Errorf("clear attempts: %w", err)
	}
	return nil
}

package port

import (
	"context"

	"github.com/jsantic/authgate/internal/core/domain"
)

// SessionRepository deals with authoritative session storage.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) (*domain.Session, error)
	GetByID(ctx context.Context, sessionID string) (*domain.Session, error)
	Delete(ctx context.Context, sessionID string) error
	// PurgeForUser deletes every session belonging to the user and returns the
	// deleted rows so callers can evict the matching cache entries.
	PurgeForUser(ctx context.Context, userID string) ([]domain.Session, error)
	// UpdateAccessTokens overwrites the OAuth access token on every session
	// the user holds for the given provider and returns the updated rows.
	UpdateAccessTokens(ctx context.Context, accessToken, userID string, provider domain.OAuthProvider) ([]domain.Session, error)
}

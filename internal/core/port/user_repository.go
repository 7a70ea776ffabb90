package port

import (
	"context"
	"time"

	"github.com/jsantic/authgate/internal/core/domain"
)

// UserRepository exposes persistence behavior for users. Mutations return
// the updated row.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash string) (*domain.User, error)
	UpdateEmailVerification(ctx context.Context, id string, verifiedAt time.Time) (*domain.User, error)
	UpdateOTPSecret(ctx context.Context, id string, secret string) (*domain.User, error)
	Freeze(ctx context.Context, id string) (*domain.User, error)
}

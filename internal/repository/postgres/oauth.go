package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jsantic/authgate/internal/core/domain"
	"github.com/jsantic/authgate/internal/core/port"
	"github.com/jsantic/authgate/internal/repository"
)

var oauthColumns = []string{
	"id", "user_id", "provider", "account_id", "access_token", "refresh_token",
	"expires_at", "created_at", "updated_at",
}

// OAuthRepository persists provider linkages in PostgreSQL. One entry exists
// per (user, provider) pair, enforced by a unique constraint.
type OAuthRepository struct {
	exec pgExecutor
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
	now  func() time.Time
}

func NewOAuthRepository(exec pgExecutor) *OAuthRepository {
	r := &OAuthRepository{
		exec: exec,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now:  time.Now,
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		r.pool = pool
	}
	return r
}

// WithTx returns a copy of the repository bound to the transaction.
func (r *OAuthRepository) WithTx(tx pgx.Tx) *OAuthRepository {
	return &OAuthRepository{exec: tx, sb: r.sb, now: r.now}
}

var _ port.OAuthRepository = (*OAuthRepository)(nil)

func (r *OAuthRepository) GetOrCreateWithUser(ctx context.Context, accountID, email, username string, tokens domain.OAuthTokens, provider domain.OAuthProvider) (*domain.User, *domain.OAuthEntry, error) {
	if r.pool == nil {
		return nil, nil, errors.New("oauth repository requires a pool for transactions")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin oauth transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	txRepo := r.WithTx(tx)
	users := NewUserRepository(tx)

	entry, err := txRepo.getByAccount(ctx, accountID, provider)
	switch {
	case err == nil:
		// The stored tokens are returned untouched; the caller decides
		// whether the entry needs a refresh or an overwrite.
		user, err := users.GetByID(ctx, entry.UserID)
		if err != nil {
			return nil, nil, fmt.Errorf("load linked user: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, nil, fmt.Errorf("commit oauth transaction: %w", err)
		}
		return user, entry, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, nil, err
	}

	user, err := users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		verifiedAt := r.now()
		user, err = users.Create(ctx, &domain.User{
			ID:              uuid.NewString(),
			Email:           email,
			Username:        username,
			EmailVerifiedAt: &verifiedAt,
		})
	}
	if err != nil {
		return nil, nil, err
	}
	user, err = users.updateProviderID(ctx, user.ID, provider, accountID)
	if err != nil {
		return nil, nil, err
	}

	entry, err = txRepo.create(ctx, user.ID, accountID, tokens, provider)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit oauth transaction: %w", err)
	}
	return user, entry, nil
}

// Update stores the new access token and expiry. A nil refresh token keeps
// the stored one: providers issue a refresh token only on the first consent,
// and a repeat exchange must not destroy it.
func (r *OAuthRepository) Update(ctx context.Context, userID string, tokens domain.OAuthTokens, provider domain.OAuthProvider) (*domain.OAuthEntry, error) {
	query, args, err := r.sb.Update("oauth").
		Set("access_token", tokens.AccessToken).
		Set("refresh_token", sq.Expr("COALESCE(?, refresh_token)", tokens.RefreshToken)).
		Set("expires_at", r.now().Add(tokens.ExpiresIn)).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"user_id": userID, "provider": provider}).
		Suffix("RETURNING " + joinColumns(oauthColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update oauth entry query: %w", err)
	}

	entry, err := scanOAuthEntry(r.exec.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("update oauth entry: %w", err)
	}
	return entry, nil
}

// RefreshWithSessions stores the refreshed tokens and rewrites the access
// token on every session the user holds for the provider, atomically.
func (r *OAuthRepository) RefreshWithSessions(ctx context.Context, userID string, tokens domain.OAuthTokens, provider domain.OAuthProvider) (*domain.OAuthEntry, error) {
	if r.pool == nil {
		return nil, errors.New("oauth repository requires a pool for transactions")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin refresh transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err := r.WithTx(tx).Update(ctx, userID, tokens, provider)
	if err != nil {
		return nil, err
	}
	if _, err := NewSessionRepository(tx).UpdateAccessTokens(ctx, tokens.AccessToken, userID, provider); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit refresh transaction: %w", err)
	}
	return entry, nil
}

func (r *OAuthRepository) getByAccount(ctx context.Context, accountID string, provider domain.OAuthProvider) (*domain.OAuthEntry, error) {
	query, args, err := r.sb.Select(oauthColumns...).
		From("oauth").
		Where(sq.Eq{"account_id": accountID, "provider": provider}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select oauth entry query: %w", err)
	}

	entry, err := scanOAuthEntry(r.exec.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select oauth entry: %w", err)
	}
	return entry, nil
}

func (r *OAuthRepository) create(ctx context.Context, userID, accountID string, tokens domain.OAuthTokens, provider domain.OAuthProvider) (*domain.OAuthEntry, error) {
	query, args, err := r.sb.Insert("oauth").
		Columns("id", "user_id", "provider", "account_id", "access_token", "refresh_token", "expires_at").
		Values(uuid.NewString(), userID, provider, accountID, tokens.AccessToken,
			tokens.RefreshToken, r.now().Add(tokens.ExpiresIn)).
		Suffix("RETURNING " + joinColumns(oauthColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert oauth entry query: %w", err)
	}

	entry, err := scanOAuthEntry(r.exec.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("insert oauth entry: %w", err)
	}
	return entry, nil
}

func scanOAuthEntry(row pgx.Row) (*domain.OAuthEntry, error) {
	var e domain.OAuthEntry
	if err := row.Scan(
		&e.ID, &e.UserID, &e.Provider, &e.AccountID, &e.AccessToken,
		&e.RefreshToken, &e.ExpiresAt, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

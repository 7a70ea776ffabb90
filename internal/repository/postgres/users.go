package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jsantic/authgate/internal/core/domain"
	"github.com/jsantic/authgate/internal/core/port"
	"github.com/jsantic/authgate/internal/repository"
)

const uniqueViolation = "23505"

var userColumns = []string{
	"id", "email", "username", "password", "otp_secret", "frozen",
	"google_id", "github_id", "email_verified_at", "created_at", "updated_at",
}

// UserRepository persists users in PostgreSQL.
type UserRepository struct {
	exec pgExecutor
	sb   sq.StatementBuilderType
}

// NewUserRepository builds a repository over the given executor, usually a pool.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec: exec,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// WithTx returns a copy of the repository bound to the transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	return &UserRepository{exec: tx, sb: r.sb}
}

var _ port.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	query, args, err := r.sb.Insert("users").
		Columns("id", "email", "username", "password", "otp_secret", "google_id", "github_id", "email_verified_at").
		Values(user.ID, user.Email, user.Username, user.Password, user.OTPSecret,
			user.GoogleID, user.GitHubID, user.EmailVerifiedAt).
		Suffix("RETURNING " + joinColumns(userColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert user query: %w", err)
	}

	created, err := scanUser(r.exec.QueryRow(ctx, query, args...))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, repository.ErrDuplicate
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getBy(ctx, sq.Eq{"id": id})
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getBy(ctx, sq.Eq{"email": email})
}

func (r *UserRepository) getBy(ctx context.Context, pred sq.Eq) (*domain.User, error) {
	query, args, err := r.sb.Select(userColumns...).
		From("users").
		Where(pred).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user query: %w", err)
	}

	user, err := scanUser(r.exec.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id string, hash string) (*domain.User, error) {
	return r.update(ctx, id, sq.Eq{"password": hash})
}

func (r *UserRepository) UpdateEmailVerification(ctx context.Context, id string, verifiedAt time.Time) (*domain.User, error) {
	return r.update(ctx, id, sq.Eq{"email_verified_at": verifiedAt})
}

func (r *UserRepository) UpdateOTPSecret(ctx context.Context, id string, secret string) (*domain.User, error) {
	return r.update(ctx, id, sq.Eq{"otp_secret": secret})
}

func (r *UserRepository) Freeze(ctx context.Context, id string) (*domain.User, error) {
	return r.update(ctx, id, sq.Eq{"frozen": true})
}

func (r *UserRepository) updateProviderID(ctx context.Context, id string, provider domain.OAuthProvider, accountID string) (*domain.User, error) {
	col := "github_id"
	if provider == domain.OAuthProviderGoogle {
		col = "google_id"
	}
	return r.update(ctx, id, sq.Eq{col: accountID})
}

func (r *UserRepository) update(ctx context.Context, id string, set sq.Eq) (*domain.User, error) {
	builder := r.sb.Update("users").
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + joinColumns(userColumns))
	for col, val := range set {
		builder = builder.Set(col, val)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update user query: %w", err)
	}

	user, err := scanUser(r.exec.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.Password, &u.OTPSecret, &u.Frozen,
		&u.GoogleID, &u.GitHubID, &u.EmailVerifiedAt, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}

func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}

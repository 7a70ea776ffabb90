package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/jsantic/authgate/internal/core/domain"
	"github.com/jsantic/authgate/internal/core/port"
	"github.com/jsantic/authgate/internal/repository"
)

var sessionColumns = []string{
	"id", "user_id", "csrf_token", "oauth_token", "provider", "created_at", "expires_at",
}

// SessionRepository persists sessions in PostgreSQL.
type SessionRepository struct {
	exec pgExecutor
	sb   sq.StatementBuilderType
}

func NewSessionRepository(exec pgExecutor) *SessionRepository {
	return &SessionRepository{
		exec: exec,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// WithTx returns a copy of the repository bound to the transaction.
func (r *SessionRepository) WithTx(tx pgx.Tx) *SessionRepository {
	return &SessionRepository{exec: tx, sb: r.sb}
}

var _ port.SessionRepository = (*SessionRepository)(nil)

func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) (*domain.Session, error) {
	query, args, err := r.sb.Insert("sessions").
		Columns("id", "user_id", "csrf_token", "oauth_token", "provider", "expires_at").
		Values(session.ID, session.UserID, session.CSRFToken, session.OAuthToken,
			session.Provider, session.ExpiresAt).
		Suffix("RETURNING " + joinColumns(sessionColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert session query: %w", err)
	}

	created, err := scanSession(r.exec.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return created, nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	query, args, err := r.sb.Select(sessionColumns...).
		From("sessions").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session query: %w", err)
	}

	session, err := scanSession(r.exec.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select session: %w", err)
	}
	return session, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	query, args, err := r.sb.Delete("sessions").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete session query: %w", err)
	}

	tag, err := r.exec.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// PurgeForUser deletes every session belonging to the user and returns
// the deleted rows so callers can evict them from the cache.
func (r *SessionRepository) PurgeForUser(ctx context.Context, userID string) ([]domain.Session, error) {
	query, args, err := r.sb.Delete("sessions").
		Where(sq.Eq{"user_id": userID}).
		Suffix("RETURNING " + joinColumns(sessionColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build purge sessions query: %w", err)
	}

	rows, err := r.exec.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("purge sessions: %w", err)
	}
	defer rows.Close()

	var purged []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purged session: %w", err)
		}
		purged = append(purged, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purged sessions: %w", err)
	}
	return purged, nil
}

// UpdateAccessTokens rewrites the provider access token on every session the
// user holds for that provider and returns the updated rows.
func (r *SessionRepository) UpdateAccessTokens(ctx context.Context, accessToken, userID string, provider domain.OAuthProvider) ([]domain.Session, error) {
	query, args, err := r.sb.Update("sessions").
		Set("oauth_token", accessToken).
		Where(sq.Eq{"user_id": userID, "provider": provider}).
		Suffix("RETURNING " + joinColumns(sessionColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update session tokens query: %w", err)
	}

	rows, err := r.exec.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update session tokens: %w", err)
	}
	defer rows.Close()

	var updated []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan updated session: %w", err)
		}
		updated = append(updated, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate updated sessions: %w", err)
	}
	return updated, nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	if err := row.Scan(
		&s.ID, &s.UserID, &s.CSRFToken, &s.OAuthToken, &s.Provider,
		&s.CreatedAt, &s.ExpiresAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// AuthSession is a persisted access token for one owner (a chat or device).
type AuthSession struct {
	Owner       string
	AccessToken string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// AuthSessionRepository persists access tokens so sign-in survives restarts.
type AuthSessionRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewAuthSessionRepository creates a new AuthSessionRepository.
func NewAuthSessionRepository(d *sql.DB) *AuthSessionRepository {
	return &AuthSessionRepository{db: d, now: time.Now}
}

// Save stores token for owner, replacing any previous one.
func (r *AuthSessionRepository) Save(ctx context.Context, owner, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_sessions (owner, access_token, expires_at, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT(owner) DO UPDATE SET access_token = excluded.access_token, expires_at = excluded.expires_at, created_at = excluded.created_at`,
		owner, token, expiresAt.UTC(), r.now().UTC(),
	)
	if err != nil {
		return classify("save auth session", err)
	}
	return nil
}

// Get returns the non-expired session of owner, or nil.
func (r *AuthSessionRepository) Get(ctx context.Context, owner string) (*AuthSession, error) {
	s := AuthSession{Owner: owner}
	err := r.db.QueryRowContext(ctx,
		`SELECT access_token, expires_at, created_at FROM auth_sessions WHERE owner = ? AND expires_at > ?`,
		owner, r.now().UTC(),
	).Scan(&s.AccessToken, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("get auth session", err)
	}
	return &s, nil
}

// Delete removes the session of owner.
func (r *AuthSessionRepository) Delete(ctx context.Context, owner string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE owner = ?`, owner); err != nil {
		return classify("delete auth session", err)
	}
	return nil
}

// CleanupExpired removes all expired sessions and returns how many were dropped.
func (r *AuthSessionRepository) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE expires_at <= ?`, r.now().UTC())
	if err != nil {
		return 0, classify("cleanup auth sessions", err)
	}
	return res.RowsAffected()
}

// Token returns the live access token of owner.
func (r *AuthSessionRepository) Token(ctx context.Context, owner string) (string, bool, error) {
	s, err := r.Get(ctx, owner)
	if err != nil || s == nil {
		return "", false, err
	}
	return s.AccessToken, true, nil
}

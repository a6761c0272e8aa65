package repository

import (
	"context"
	"database/sql"
	"time"
)

// TokenRepo is the server-side denylist of logged-out session tokens,
// keyed by the token id (jti).  Rows are only needed until the token would
// have expired anyway.
type TokenRepo struct{ db *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{db: db} }

// Revoke records jti until exp.
func (r *TokenRepo) Revoke(ctx context.Context, jti string, exp time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO revoked_tokens (jti, expires_at) VALUES (?,?) ON DUPLICATE KEY UPDATE expires_at = VALUES(expires_at)",
		jti, exp.UTC())
	return err
}

// PurgeExpired drops rows whose token has expired on its own and returns
// how many were removed.
func (r *TokenRepo) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM revoked_tokens WHERE expires_at < UTC_TIMESTAMP(3)")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// IsRevoked reports whether jti was logged out, or whether userID was
// deactivated or re-roled after the token was issued.  Token iat has
// second precision, so a login in the same second as such a change is
// refused as well.
func (r *TokenRepo) IsRevoked(ctx context.Context, jti, userID string, issuedAt time.Time) (bool, error) {
	var revoked bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti = ?)
		     OR EXISTS(SELECT 1 FROM users WHERE id = ? AND sessions_valid_from > ?)`,
		jti, userID, issuedAt.UTC()).Scan(&revoked)
	if err != nil {
		return false, err
	}
	return revoked, nil
}

package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// RefreshSession is a persisted refresh token row.
type RefreshSession struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	ClientID  string    `db:"client_id"`
	ExpiresAt time.Time `db:"expires_at"`
}

type RefreshRepo struct {
	db *sqlx.DB
}

func NewRefreshRepo(db *sqlx.DB) *RefreshRepo {
	return &RefreshRepo{db: db}
}

func (r *RefreshRepo) Save(ctx context.Context, token string, userID int64, clientID string, expiresAt time.Time) (int64, error) {
	query := `INSERT INTO refresh_sessions (token, user_id, client_id, expires_at) VALUES ($1, $2, $3, $4) RETURNING id`
	var id int64
	if err := r.db.QueryRowxContext(ctx, query, token, userID, clientID, expiresAt).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// Find returns the unexpired session for token without consuming it, or
// sql.ErrNoRows.
func (r *RefreshRepo) Find(ctx context.Context, token string, now time.Time) (*RefreshSession, error) {
	query := `SELECT id, user_id, client_id, expires_at FROM refresh_sessions WHERE token = $1 AND expires_at > $2`
	var rs RefreshSession
	if err := r.db.GetContext(ctx, &rs, query, token, now); err != nil {
		return nil, err
	}
	return &rs, nil
}

// Take deletes the session for token and returns it, provided it has not
// expired at now. A token can be taken once; later calls get sql.ErrNoRows.
func (r *RefreshRepo) Take(ctx context.Context, token string, now time.Time) (*RefreshSession, error) {
	query := `DELETE FROM refresh_sessions WHERE token = $1 AND expires_at > $2 RETURNING id, user_id, client_id, expires_at`
	var rs RefreshSession
	if err := r.db.GetContext(ctx, &rs, query, token, now); err != nil {
		return nil, err
	}
	return &rs, nil
}

func (r *RefreshRepo) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE token = $1`, token)
	return err
}

// DeleteForUser drops every refresh session of userID.
func (r *RefreshRepo) DeleteForUser(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE user_id = $1`, userID)
	return err
}

// PurgeExpired removes sessions that expired before now.
func (r *RefreshRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

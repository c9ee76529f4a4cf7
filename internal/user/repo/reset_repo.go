package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/splashops/service-core/internal/user/entity"
	"github.com/ovaphlow/splashops/service-core/pkg/database"
)

// ResetRepo persists password reset tokens.
type ResetRepo struct {
	db *sqlx.DB
}

func NewResetRepo(db *sqlx.DB) *ResetRepo { return &ResetRepo{db: db} }

// Create inserts a new unused token.
func (r *ResetRepo) Create(ctx context.Context, t *entity.ResetToken) error {
	const q = `INSERT INTO password_reset_tokens (id, user_id, token, expires_at, is_used, created_at)
		VALUES ($1, $2, $3, $4, false, $5)`
	_, err := r.db.ExecContext(ctx, q, t.ID, t.UserID, t.Token, t.ExpiresAt, t.CreatedAt)
	return err
}

// FindValid returns the token if it is unused and unexpired at now, or sql.ErrNoRows.
func (r *ResetRepo) FindValid(ctx context.Context, token string, now time.Time) (*entity.ResetToken, error) {
	const q = `SELECT id, user_id, token, expires_at, is_used, created_at
		FROM password_reset_tokens WHERE token=$1 AND is_used=false AND expires_at > $2`
	var t entity.ResetToken
	if err := r.db.GetContext(ctx, &t, q, token, now); err != nil {
		return nil, err
	}
	return &t, nil
}

// Consume flips the token to used and stores the new password hash for its
// owner in one transaction. The conditional update decides the race between
// concurrent consumers: only one sees a returned row. Reports false when the
// token was not (or no longer) valid.
func (r *ResetRepo) Consume(ctx context.Context, token string, now time.Time, passwordHash string) (bool, error) {
	consumed := false
	err := database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		const mark = `UPDATE password_reset_tokens SET is_used=true
			WHERE token=$1 AND is_used=false AND expires_at > $2 RETURNING user_id`
		var userID int64
		if err := tx.GetContext(ctx, &userID, mark, token, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		const rotate = `UPDATE users SET password_hash=$2 WHERE id=$1`
		if _, err := tx.ExecContext(ctx, rotate, userID, passwordHash); err != nil {
			return err
		}
		consumed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return consumed, nil
}

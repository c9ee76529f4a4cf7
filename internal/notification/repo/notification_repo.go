package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/splashops/service-core/internal/notification/entity"
)

const notificationColumns = `id, user_id, title, message, kind, is_read, action_url, created_at`

type NotificationRepo struct {
	db *sqlx.DB
}

func NewNotificationRepo(db *sqlx.DB) *NotificationRepo { return &NotificationRepo{db: db} }

// Insert stores n and fills ID and CreatedAt.
func (r *NotificationRepo) Insert(ctx context.Context, n *entity.Notification) error {
	const q = `INSERT INTO notifications (user_id, title, message, kind, action_url)
		VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`
	return r.db.QueryRowxContext(ctx, q, n.UserID, n.Title, n.Message, n.Kind, n.ActionURL).
		Scan(&n.ID, &n.CreatedAt)
}

// Recent lists the user's newest notifications.
func (r *NotificationRepo) Recent(ctx context.Context, userID int64, limit int) ([]entity.Notification, error) {
	q := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`
	out := []entity.Notification{}
	if err := r.db.SelectContext(ctx, &out, q, userID, limit); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *NotificationRepo) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND is_read=false`, userID)
	return n, err
}

// MarkRead flags one of the user's notifications as read. It reports false
// when id does not belong to userID.
func (r *NotificationRepo) MarkRead(ctx context.Context, userID, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read=true WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkAllRead flags every unread notification of the user and returns how many changed.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read=true WHERE user_id=$1 AND is_read=false`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

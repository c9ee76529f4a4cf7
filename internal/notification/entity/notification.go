package entity

import (
	"fmt"
	"time"
)

// Kinds of notification.
const (
	KindInfo    = "Info"
	KindWarning = "Warning"
	KindAlert   = "Alert"
	KindSuccess = "Success"
)

// Notification is one row of `notifications`.
type Notification struct {
	ID        int64     `db:"id" json:"notificationId"`
	UserID    int64     `db:"user_id" json:"-"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	Kind      string    `db:"kind" json:"type"`
	Read      bool      `db:"is_read" json:"isRead"`
	ActionURL *string   `db:"action_url" json:"actionUrl,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

func IsKind(k string) bool {
	switch k {
	case KindInfo, KindWarning, KindAlert, KindSuccess:
		return true
	}
	return false
}

// TimeAgo renders the age of the notification at now the way the mobile
// app shows it: "Just now", "5m ago", "3h ago", "2d ago", then "Jan 02".
func (n *Notification) TimeAgo(now time.Time) string {
	d := now.Sub(n.CreatedAt)
	switch {
	case d < time.Minute:
		return "Just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return n.CreatedAt.Format("Jan 02")
	}
}

package dashboard

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/splashops/service-core/internal/clock"
	"github.com/ovaphlow/splashops/service-core/internal/session"
	"github.com/ovaphlow/splashops/service-core/pkg/utilities"
)

const dateLayout = "2006-01-02"

// Clock is the part of the clock service the dashboard reads.
type Clock interface {
	Status(ctx context.Context, userID int64) (clock.Status, error)
	ThisWeek(ctx context.Context, userID int64) (clock.Week, error)
}

// Inbox counts unread notifications.
type Inbox interface {
	UnreadCount(ctx context.Context, userID int64) (int, error)
}

var _ Clock = (*clock.Service)(nil)

type Handler struct {
	clock  Clock
	inbox  Inbox
	logger *zap.SugaredLogger
}

func NewHandler(c Clock, inbox Inbox, logger *zap.SugaredLogger) *Handler {
	return &Handler{clock: c, inbox: inbox, logger: logger}
}

type msg map[string]any

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		utilities.WriteJSON(w, http.StatusUnauthorized, msg{"success": false, "message": "Not authenticated"})
		return
	}
	ctx := r.Context()
	st, err := h.clock.Status(ctx, sess.UserID)
	if err != nil {
		h.internal(w, "dashboard clock status failed", err)
		return
	}
	wk, err := h.clock.ThisWeek(ctx, sess.UserID)
	if err != nil {
		h.internal(w, "dashboard weekly hours failed", err)
		return
	}
	unread, err := h.inbox.UnreadCount(ctx, sess.UserID)
	if err != nil {
		h.internal(w, "dashboard unread count failed", err)
		return
	}

	clockStatus := msg{"isClockedIn": false, "clockInTime": nil, "locationId": nil}
	if st.ClockedIn {
		clockStatus = msg{
			"isClockedIn": true,
			"clockInTime": st.Current.ClockInTime,
			"locationId":  st.Current.LocationID,
			"hoursWorked": st.HoursWorked,
		}
	}
	utilities.WriteJSON(w, http.StatusOK, msg{
		"success": true,
		"dashboard": msg{
			"clockStatus": clockStatus,
			"weeklyStats": msg{
				"hoursWorked": wk.TotalHours,
				"weekStart":   wk.Start.Format(dateLayout),
				"weekEnd":     wk.End.Format(dateLayout),
			},
			"notifications": msg{"unreadCount": unread},
		},
	})
}

func (h *Handler) internal(w http.ResponseWriter, what string, err error) {
	h.logger.Errorw(what, "err", err)
	utilities.WriteJSON(w, http.StatusInternalServerError, msg{"success": false, "message": "An internal error occurred"})
}

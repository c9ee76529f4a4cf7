package notification

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/splashops/service-core/internal/notification/entity"
	"github.com/ovaphlow/splashops/service-core/internal/session"
	"github.com/ovaphlow/splashops/service-core/pkg/utilities"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type msg map[string]any

func fail(message string) msg { return msg{"success": false, "message": message} }

// View is the JSON shape of one notification.
type View struct {
	entity.Notification
	TimeAgo string `json:"timeAgo"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		utilities.WriteJSON(w, http.StatusUnauthorized, fail("Not authenticated"))
		return
	}
	inbox, err := h.svc.List(r.Context(), sess.UserID)
	if err != nil {
		h.internal(w, "list notifications failed", err)
		return
	}
	out := make([]View, 0, len(inbox.Items))
	for i := range inbox.Items {
		out = append(out, View{Notification: inbox.Items[i], TimeAgo: inbox.Items[i].TimeAgo(inbox.Now)})
	}
	utilities.WriteJSON(w, http.StatusOK, msg{
		"success":       true,
		"count":         len(out),
		"unreadCount":   inbox.UnreadCount,
		"notifications": out,
	})
}

func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		utilities.WriteJSON(w, http.StatusUnauthorized, fail("Not authenticated"))
		return
	}
	n, err := h.svc.UnreadCount(r.Context(), sess.UserID)
	if err != nil {
		h.internal(w, "unread count failed", err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, msg{"success": true, "unreadCount": n})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		utilities.WriteJSON(w, http.StatusUnauthorized, fail("Not authenticated"))
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		utilities.WriteJSON(w, http.StatusBadRequest, fail("Invalid notification id"))
		return
	}
	if err := h.svc.MarkRead(r.Context(), sess.UserID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			utilities.WriteJSON(w, http.StatusNotFound, fail("Notification not found"))
			return
		}
		h.internal(w, "mark notification read failed", err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, msg{"success": true, "message": "Notification marked as read"})
}

func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		utilities.WriteJSON(w, http.StatusUnauthorized, fail("Not authenticated"))
		return
	}
	n, err := h.svc.MarkAllRead(r.Context(), sess.UserID)
	if err != nil {
		h.internal(w, "mark all notifications read failed", err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, msg{"success": true, "updated": n})
}

func (h *Handler) internal(w http.ResponseWriter, what string, err error) {
	h.logger.Errorw(what, "err", err)
	utilities.WriteJSON(w, http.StatusInternalServerError, fail("An internal error occurred"))
}
